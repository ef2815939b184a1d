package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/elonfeng/skylimit/pkg/quota"
	"github.com/elonfeng/skylimit/pkg/source"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a follow does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence interface.
type Store interface {
	quota.EventReader
	quota.FollowRegistry
	quota.SnapshotSink

	UpsertEvent(ctx context.Context, ev *source.Event) error
	UpsertEvents(ctx context.Context, events []source.Event) error
	CountEventsBySource(ctx context.Context) (map[string]int, error)
	PruneEvents(ctx context.Context, before time.Time) (int64, error)

	UpsertFollow(ctx context.Context, f *source.TrackedSource) error
	GetFollow(ctx context.Context, id string) (*source.TrackedSource, error)
	SetWeight(ctx context.Context, id string, weight float64) error

	CurrentSnapshot(ctx context.Context) (*quota.Snapshot, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertEvent(ctx context.Context, ev *source.Event) error {
	tagsJSON, _ := json.Marshal(ev.Tags)

	// Re-ingesting an event keeps the engaged/dropped flags set downstream.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, source_id, tags, timestamp, repost_of_id, engaged, dropped)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tags = excluded.tags,
			repost_of_id = excluded.repost_of_id
	`, ev.ID, ev.SourceID, string(tagsJSON), ev.Timestamp.UTC(), ev.RepostOfID, ev.Engaged, ev.Dropped)
	if err != nil {
		return fmt.Errorf("upsert event %s: %w", ev.ID, err)
	}
	return nil
}

func (s *SQLiteStore) UpsertEvents(ctx context.Context, events []source.Event) error {
	for i := range events {
		if err := s.UpsertEvent(ctx, &events[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context) ([]source.Event, error) {
	var events []source.Event
	if err := s.db.SelectContext(ctx, &events, "SELECT * FROM events ORDER BY timestamp, id"); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	for i := range events {
		json.Unmarshal([]byte(events[i].TagsJSON), &events[i].Tags)
	}
	return events, nil
}

func (s *SQLiteStore) CountEventsBySource(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT source_id, COUNT(*) as cnt FROM events GROUP BY source_id")
	if err != nil {
		return nil, fmt.Errorf("count events by source: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var src string
		var cnt int
		if err := rows.Scan(&src, &cnt); err != nil {
			return nil, err
		}
		counts[src] = cnt
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE timestamp < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) UpsertFollow(ctx context.Context, f *source.TrackedSource) error {
	topicsJSON, _ := json.Marshal(f.Topics)
	since := f.TrackedSince
	if since.IsZero() {
		since = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO follows (id, handle, feed_url, weight, topics, tracked_since)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			handle = excluded.handle,
			feed_url = excluded.feed_url,
			weight = excluded.weight,
			topics = excluded.topics
	`, f.ID, f.Handle, f.FeedURL, f.Weight, string(topicsJSON), since.UTC())
	if err != nil {
		return fmt.Errorf("upsert follow %s: %w", f.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetFollow(ctx context.Context, id string) (*source.TrackedSource, error) {
	var f source.TrackedSource
	err := s.db.GetContext(ctx, &f, "SELECT * FROM follows WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get follow %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get follow %s: %w", id, err)
	}
	json.Unmarshal([]byte(f.TopicsJSON), &f.Topics)
	return &f, nil
}

func (s *SQLiteStore) ListFollows(ctx context.Context) ([]source.TrackedSource, error) {
	var follows []source.TrackedSource
	if err := s.db.SelectContext(ctx, &follows, "SELECT * FROM follows ORDER BY id"); err != nil {
		return nil, fmt.Errorf("list follows: %w", err)
	}
	for i := range follows {
		json.Unmarshal([]byte(follows[i].TopicsJSON), &follows[i].Topics)
	}
	return follows, nil
}

// SetWeight changes a follow's amplification factor. Weight 0 unfollows
// the source without losing its history.
func (s *SQLiteStore) SetWeight(ctx context.Context, id string, weight float64) error {
	res, err := s.db.ExecContext(ctx, "UPDATE follows SET weight = ? WHERE id = ?", weight, id)
	if err != nil {
		return fmt.Errorf("set weight %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set weight %s: %w", id, ErrNotFound)
	}
	return nil
}

// ReplaceSnapshot swaps the current snapshot in a single statement.
func (s *SQLiteStore) ReplaceSnapshot(ctx context.Context, snap *quota.Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snap.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO current_snapshot (slot, id, quota_number, computed_at, body)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			id = excluded.id,
			quota_number = excluded.quota_number,
			computed_at = excluded.computed_at,
			body = excluded.body
	`, snap.ID, snap.QuotaNumber, snap.ComputedAt.UTC(), string(body))
	if err != nil {
		return fmt.Errorf("replace snapshot %s: %w", snap.ID, err)
	}
	return nil
}

// CurrentSnapshot returns the current snapshot with its ComputedAt
// timestamp, or nil if none has been written yet.
func (s *SQLiteStore) CurrentSnapshot(ctx context.Context) (*quota.Snapshot, error) {
	var body string
	err := s.db.GetContext(ctx, &body, "SELECT body FROM current_snapshot WHERE slot = 1")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	var snap quota.Snapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

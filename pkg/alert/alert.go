package alert

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/elonfeng/skylimit/pkg/quota"
)

// SourceLine is one throttled source in a notification.
type SourceLine struct {
	Name       string  `json:"name"`
	TotalDaily float64 `json:"total_daily"`
	NetProb    float64 `json:"net_prob"`
}

// Notification is the data sent to alert destinations when a snapshot is published.
type Notification struct {
	Title       string       `json:"title"`
	Body        string       `json:"body"`
	SnapshotID  string       `json:"snapshot_id"`
	QuotaNumber float64      `json:"quota_number"`
	Complete    int          `json:"complete_intervals"`
	Expected    int          `json:"expected_intervals"`
	Sources     int          `json:"sources"`
	Loudest     []SourceLine `json:"loudest"`
	ComputedAt  time.Time    `json:"computed_at"`
}

// FromSnapshot summarises a snapshot, listing up to limit of the
// highest-volume sources.
func FromSnapshot(snap *quota.Snapshot, limit int) *Notification {
	entries := make([]quota.UserEntry, len(snap.Entries))
	copy(entries, snap.Entries)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TotalDaily > entries[j].TotalDaily
	})
	if limit > len(entries) {
		limit = len(entries)
	}
	if limit < 0 {
		limit = 0
	}

	n := &Notification{
		Title:       fmt.Sprintf("Skylimit %.1f views/day", snap.QuotaNumber),
		Body:        fmt.Sprintf("%d sources over %.1f days (%d/%d intervals complete)", len(snap.Entries), snap.DayTotal, snap.Intervals.Complete, snap.Intervals.Expected),
		SnapshotID:  snap.ID,
		QuotaNumber: snap.QuotaNumber,
		Complete:    snap.Intervals.Complete,
		Expected:    snap.Intervals.Expected,
		Sources:     len(snap.Entries),
		ComputedAt:  snap.ComputedAt,
	}
	for _, e := range entries[:limit] {
		n.Loudest = append(n.Loudest, SourceLine{Name: e.Name, TotalDaily: e.TotalDaily, NetProb: e.NetProb})
	}
	return n
}

// Notifier delivers alerts to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return len(m.notifiers) > 0
}

// Broadcast sends a notification to all registered notifiers.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

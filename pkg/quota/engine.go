package quota

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/elonfeng/skylimit/pkg/source"
	"github.com/sirupsen/logrus"
)

// EventReader lists every retained event.
type EventReader interface {
	ListEvents(ctx context.Context) ([]source.Event, error)
}

// FollowRegistry lists every tracked source.
type FollowRegistry interface {
	ListFollows(ctx context.Context) ([]source.TrackedSource, error)
}

// SnapshotSink replaces the current snapshot in one write.
type SnapshotSink interface {
	ReplaceSnapshot(ctx context.Context, s *Snapshot) error
}

// run carries the state of a single pipeline pass. Nothing in it outlives
// the pass.
type run struct {
	params   Params
	grouping Grouping
	acc      Accumulation
	oldest   time.Time
	newest   time.Time
}

// Compute runs the full pipeline over events and registry without touching
// any store. It returns ErrNoData when nothing usable was found.
func Compute(p Params, events []source.Event, registry []source.TrackedSource, now time.Time) (*Snapshot, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNoData
	}

	r := &run{params: p}
	r.oldest, r.newest = events[0].Timestamp.UTC(), events[0].Timestamp.UTC()
	for _, ev := range events[1:] {
		ts := ev.Timestamp.UTC()
		if ts.Before(r.oldest) {
			r.oldest = ts
		}
		if ts.After(r.newest) {
			r.newest = ts
		}
	}

	r.grouping = GroupIntervals(events, p.IntervalHours, p.DaysOfData, r.newest)
	if r.grouping.Stats.Complete == 0 {
		return nil, ErrNoData
	}

	r.acc = Accumulate(p, r.grouping, events, registry)
	sources := r.acc.Sorted()
	dayTotal := r.grouping.DayTotal()

	quotaNumber := Allocate(sources, p.ViewsPerDay, dayTotal)

	entries := make([]UserEntry, 0, len(sources))
	for _, a := range sources {
		entries = append(entries, DeriveProbabilities(p, quotaNumber, dayTotal, a))
	}
	if p.Anonymize {
		// Order by alias so the listing does not follow the real ids.
		sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	}

	return assemble(r, quotaNumber, entries, now), nil
}

// Engine reads from the event store and follow registry, computes a
// snapshot and hands it to the sink.
type Engine struct {
	events  EventReader
	follows FollowRegistry
	sink    SnapshotSink
	params  Params
	log     logrus.FieldLogger
	now     func() time.Time
}

// NewEngine creates an engine. Callers must serialize calls to Run.
func NewEngine(events EventReader, follows FollowRegistry, sink SnapshotSink, p Params, log logrus.FieldLogger) *Engine {
	return &Engine{
		events:  events,
		follows: follows,
		sink:    sink,
		params:  p,
		log:     log,
		now:     time.Now,
	}
}

// Run executes one pipeline pass. On ErrNoData or any error the previous
// snapshot is left in place.
func (e *Engine) Run(ctx context.Context) (*Snapshot, error) {
	events, err := e.events.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	registry, err := e.follows.ListFollows(ctx)
	if err != nil {
		return nil, fmt.Errorf("list follows: %w", err)
	}

	snap, err := Compute(e.params, events, registry, e.now())
	if err != nil {
		return nil, err
	}

	if err := e.sink.ReplaceSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("replace snapshot: %w", err)
	}

	e.log.WithFields(logrus.Fields{
		"snapshot":    snap.ID,
		"quota":       snap.QuotaNumber,
		"sources":     len(snap.Entries),
		"complete":    snap.Intervals.Complete,
		"expected":    snap.Intervals.Expected,
		"accumulated": snap.Totals.Accumulated,
		"skipped":     snap.Totals.Skipped,
	}).Info("snapshot computed")

	return snap, nil
}

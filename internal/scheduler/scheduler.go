package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/elonfeng/skylimit/internal/metrics"
	"github.com/elonfeng/skylimit/internal/store"
	"github.com/elonfeng/skylimit/pkg/alert"
	"github.com/elonfeng/skylimit/pkg/quota"
	"github.com/elonfeng/skylimit/pkg/source"
	"github.com/sirupsen/logrus"
)

// ErrBusy is returned when a compute run is already in flight.
var ErrBusy = errors.New("compute already running")

// loudestInAlert is how many sources a snapshot notification lists.
const loudestInAlert = 5

// Scheduler runs periodic ingestion and quota computation.
type Scheduler struct {
	store      store.Store
	collector  source.Collector
	engine     *quota.Engine
	alertMgr   *alert.Manager
	metrics    *metrics.Collector
	log        logrus.FieldLogger
	ingestInt  time.Duration
	computeInt time.Duration
	retention  time.Duration
	now        func() time.Time

	running atomic.Bool
}

// New creates a new scheduler. A nil collector disables ingestion.
func New(
	s store.Store,
	collector source.Collector,
	engine *quota.Engine,
	alertMgr *alert.Manager,
	m *metrics.Collector,
	log logrus.FieldLogger,
	ingestInt, computeInt, retention time.Duration,
) *Scheduler {
	if ingestInt == 0 {
		ingestInt = 15 * time.Minute
	}
	if computeInt == 0 {
		computeInt = time.Hour
	}
	if alertMgr == nil {
		alertMgr = alert.NewManager(nil)
	}
	if m == nil {
		m = metrics.New()
	}
	return &Scheduler{
		store:      s,
		collector:  collector,
		engine:     engine,
		alertMgr:   alertMgr,
		metrics:    m,
		log:        log,
		ingestInt:  ingestInt,
		computeInt: computeInt,
		retention:  retention,
		now:        time.Now,
	}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ingestTicker := time.NewTicker(s.ingestInt)
	computeTicker := time.NewTicker(s.computeInt)
	defer ingestTicker.Stop()
	defer computeTicker.Stop()

	// Run immediately on start.
	s.ingestAndLog(ctx)
	s.computeAndLog(ctx)

	s.log.WithFields(logrus.Fields{
		"ingest_every":  s.ingestInt.String(),
		"compute_every": s.computeInt.String(),
	}).Info("scheduler running")

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return ctx.Err()
		case <-ingestTicker.C:
			s.ingestAndLog(ctx)
		case <-computeTicker.C:
			s.computeAndLog(ctx)
		}
	}
}

// Ingest collects recent events for every followed source, stores them and
// prunes events that fell out of the retention window.
func (s *Scheduler) Ingest(ctx context.Context) (int, error) {
	if s.collector == nil {
		return 0, nil
	}

	follows, err := s.store.ListFollows(ctx)
	if err != nil {
		return 0, fmt.Errorf("list follows: %w", err)
	}

	events, err := s.collector.Collect(ctx, follows)
	if err != nil {
		if len(events) == 0 {
			return 0, fmt.Errorf("collect %s: %w", s.collector.Name(), err)
		}
		s.log.WithError(err).Warn("partial collection, storing what arrived")
	}
	if err := s.store.UpsertEvents(ctx, events); err != nil {
		return 0, fmt.Errorf("store events: %w", err)
	}
	s.metrics.AddIngested(len(events))

	if s.retention > 0 {
		pruned, err := s.store.PruneEvents(ctx, s.now().Add(-s.retention))
		if err != nil {
			return len(events), err
		}
		if pruned > 0 {
			s.log.WithField("pruned", pruned).Debug("old events pruned")
		}
	}

	return len(events), nil
}

// Compute runs the quota engine once and announces the new snapshot.
// Overlapping calls fail fast with ErrBusy.
func (s *Scheduler) Compute(ctx context.Context) (*quota.Snapshot, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer s.running.Store(false)

	start := s.now()
	snap, err := s.engine.Run(ctx)
	s.metrics.ObserveRun(snap, err, s.now().Sub(start))
	if err != nil {
		return nil, err
	}

	if s.alertMgr.HasNotifiers() {
		if err := s.alertMgr.Broadcast(ctx, alert.FromSnapshot(snap, loudestInAlert)); err != nil {
			s.log.WithError(err).Warn("snapshot alert failed")
		}
	}
	return snap, nil
}

func (s *Scheduler) ingestAndLog(ctx context.Context) {
	n, err := s.Ingest(ctx)
	if err != nil {
		s.log.WithError(err).Error("ingest failed")
		return
	}
	s.log.WithField("events", n).Info("ingest finished")
}

func (s *Scheduler) computeAndLog(ctx context.Context) {
	_, err := s.Compute(ctx)
	switch {
	case errors.Is(err, quota.ErrNoData):
		s.log.Info("no complete intervals yet, keeping previous snapshot")
	case errors.Is(err, ErrBusy):
		s.log.Warn("compute skipped, previous run still in flight")
	case err != nil:
		s.log.WithError(err).Error("compute failed, keeping previous snapshot")
	}
}

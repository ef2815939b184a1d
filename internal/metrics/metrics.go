package metrics

import (
	"errors"
	"time"

	"github.com/elonfeng/skylimit/pkg/quota"
	"github.com/prometheus/client_golang/prometheus"
)

// Run results.
const (
	ResultOK     = "ok"
	ResultNoData = "no_data"
	ResultError  = "error"
)

// Collector holds the Prometheus metrics for compute and ingest runs.
type Collector struct {
	registry *prometheus.Registry

	runsTotal         *prometheus.CounterVec
	runDuration       prometheus.Histogram
	quotaNumber       prometheus.Gauge
	trackedSources    prometheus.Gauge
	intervals         *prometheus.GaugeVec
	eventsAccumulated prometheus.Gauge
	eventsSkipped     prometheus.Gauge
	eventsIngested    prometheus.Counter
	lastSnapshot      prometheus.Gauge
}

// New creates a collector on its own registry.
func New() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skylimit_compute_runs_total",
			Help: "Total number of quota computation runs",
		},
		[]string{"result"},
	)
	c.runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "skylimit_compute_duration_seconds",
			Help:    "Quota computation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
	c.quotaNumber = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "skylimit_quota_number",
		Help: "Current global per-unit-weight daily view allowance",
	})
	c.trackedSources = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "skylimit_tracked_sources",
		Help: "Sources in the current snapshot",
	})
	c.intervals = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "skylimit_intervals",
			Help: "Analysis intervals in the current snapshot by state",
		},
		[]string{"state"},
	)
	c.eventsAccumulated = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "skylimit_events_accumulated",
		Help: "Events counted in the current snapshot",
	})
	c.eventsSkipped = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "skylimit_events_skipped",
		Help: "Events from untracked sources in the current snapshot",
	})
	c.eventsIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "skylimit_events_ingested_total",
		Help: "Events written by feed ingestion",
	})
	c.lastSnapshot = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "skylimit_last_snapshot_timestamp_seconds",
		Help: "Unix time of the current snapshot",
	})

	c.registry.MustRegister(
		c.runsTotal,
		c.runDuration,
		c.quotaNumber,
		c.trackedSources,
		c.intervals,
		c.eventsAccumulated,
		c.eventsSkipped,
		c.eventsIngested,
		c.lastSnapshot,
	)
	return c
}

// Registry returns the registry to expose over HTTP.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveRun records the outcome of one compute run. Gauges only move on success.
func (c *Collector) ObserveRun(snap *quota.Snapshot, err error, took time.Duration) {
	c.runDuration.Observe(took.Seconds())

	switch {
	case errors.Is(err, quota.ErrNoData):
		c.runsTotal.WithLabelValues(ResultNoData).Inc()
		return
	case err != nil || snap == nil:
		c.runsTotal.WithLabelValues(ResultError).Inc()
		return
	}

	c.runsTotal.WithLabelValues(ResultOK).Inc()
	c.quotaNumber.Set(snap.QuotaNumber)
	c.trackedSources.Set(float64(len(snap.Entries)))
	c.intervals.WithLabelValues("complete").Set(float64(snap.Intervals.Complete))
	c.intervals.WithLabelValues("incomplete").Set(float64(snap.Intervals.Incomplete))
	c.intervals.WithLabelValues("sparse").Set(float64(snap.Intervals.Sparse))
	c.eventsAccumulated.Set(float64(snap.Totals.Accumulated))
	c.eventsSkipped.Set(float64(snap.Totals.Skipped))
	c.lastSnapshot.Set(float64(snap.ComputedAt.Unix()))
}

// AddIngested counts events written by ingestion.
func (c *Collector) AddIngested(n int) {
	c.eventsIngested.Add(float64(n))
}

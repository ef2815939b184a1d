// Package quota turns a history of per-source content events into a global
// view quota and per-source display probabilities.
//
// The pipeline runs strictly forward: events are bucketed into intervals,
// events in complete intervals are tallied per source, a water-filling pass
// computes the quota number, and each source's category rates are converted
// into bounded probabilities. The result is one immutable Snapshot.
package quota

import (
	"errors"
	"fmt"
)

// ErrNoData is returned when there are no events or no complete intervals.
// No snapshot is produced and the previous one stays authoritative.
var ErrNoData = errors.New("quota: no complete intervals")

// Category is the mutually exclusive bucket an event is counted in.
type Category int

const (
	Top Category = iota
	Priority
	Regular
	Repost
	numCategories
)

func (c Category) String() string {
	switch c {
	case Top:
		return "top"
	case Priority:
		return "priority"
	case Regular:
		return "regular"
	case Repost:
		return "repost"
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// Numeric floors used by the pipeline.
const (
	// minDayTotal is the smallest analysis span, four hours expressed in days.
	minDayTotal = 4.0 / 24.0
	// minRateSpan floors followWeight*dayTotal in the daily rate divisor.
	minRateSpan = 0.1
	// minWeight floors weights used as divisors.
	minWeight = 1e-6
	// topReserve is the always-visible daily allowance for must-show content
	// when a personal budget is under the minimum threshold.
	topReserve = 1.0/7 + 1.0/30
	// sparseFraction marks complete intervals far below the average.
	sparseFraction = 0.10
)

// Params configures one pipeline run.
type Params struct {
	Viewer            string
	ViewsPerDay       float64
	DaysOfData        int
	IntervalHours     int
	SecretKey         string
	Anonymize         bool
	MinWeight         float64
	MaxWeight         float64
	MinQuotaThreshold float64
	MustShowTags      []string
	PriorityTag       string
}

// DefaultParams returns the documented defaults.
func DefaultParams() Params {
	return Params{
		ViewsPerDay:       500,
		DaysOfData:        30,
		IntervalHours:     2,
		MinWeight:         0.125,
		MaxWeight:         8,
		MinQuotaThreshold: 1,
		MustShowTags:      []string{"pinned"},
		PriorityTag:       "priority",
	}
}

// Validate reports parameter combinations the pipeline cannot run with.
func (p Params) Validate() error {
	if p.IntervalHours <= 0 || 24%p.IntervalHours != 0 {
		return fmt.Errorf("interval hours %d must divide 24", p.IntervalHours)
	}
	if p.DaysOfData <= 0 {
		return fmt.Errorf("days of data must be positive, got %d", p.DaysOfData)
	}
	if !(p.ViewsPerDay > 0) {
		return fmt.Errorf("views per day must be positive, got %v", p.ViewsPerDay)
	}
	if !(p.MinWeight > 0) || p.MinWeight > p.MaxWeight {
		return fmt.Errorf("weight bounds [%v, %v] are invalid", p.MinWeight, p.MaxWeight)
	}
	return nil
}

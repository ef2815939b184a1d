package quota

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Snapshot is the immutable output of one successful run.
type Snapshot struct {
	ID          string        `json:"id"`
	QuotaNumber float64       `json:"quota_number"`
	ViewsPerDay float64       `json:"views_per_day"`
	DayTotal    float64       `json:"day_total"`
	Totals      Totals        `json:"totals"`
	Intervals   IntervalStats `json:"intervals"`
	OldestEvent time.Time     `json:"oldest_event"`
	NewestEvent time.Time     `json:"newest_event"`
	ComputedAt  time.Time     `json:"computed_at"`
	Entries     []UserEntry   `json:"entries"`
}

// Entry returns the entry for a source id.
func (s *Snapshot) Entry(id string) (UserEntry, bool) {
	for _, e := range s.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return UserEntry{}, false
}

// assemble builds a snapshot from a finished run. Entries keep the order
// they are given in.
func assemble(r *run, quotaNumber float64, entries []UserEntry, now time.Time) *Snapshot {
	now = now.UTC()
	return &Snapshot{
		ID:          ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		QuotaNumber: Finite(quotaNumber),
		ViewsPerDay: r.params.ViewsPerDay,
		DayTotal:    r.grouping.DayTotal(),
		Totals:      r.acc.Totals,
		Intervals:   r.grouping.Stats,
		OldestEvent: r.oldest,
		NewestEvent: r.newest,
		ComputedAt:  now,
		Entries:     entries,
	}
}

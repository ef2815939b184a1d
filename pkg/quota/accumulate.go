package quota

import (
	"sort"
	"strings"
	"time"

	"github.com/elonfeng/skylimit/pkg/source"
)

// Accumulator holds one source's running totals for a single run.
type Accumulator struct {
	ID           string
	Handle       string
	Alias        string
	Self         bool
	Weight       float64
	FollowWeight float64
	Topics       []string
	Counts       [numCategories]int
	Engaged      int

	// Filled in by Allocate.
	DailyRate      float64
	NormalizedRate float64
}

// Total is the number of categorized events, engagement excluded.
func (a *Accumulator) Total() int {
	n := 0
	for _, c := range a.Counts {
		n += c
	}
	return n
}

// Totals are global counters over the accumulated events.
type Totals struct {
	Posts       int `json:"posts"`
	Reposts     int `json:"reposts"`
	Originals   int `json:"originals"`
	Top         int `json:"top"`
	Priority    int `json:"priority"`
	Regular     int `json:"regular"`
	Engaged     int `json:"engaged"`
	Dropped     int `json:"dropped"`
	Accumulated int `json:"accumulated"`
	Skipped     int `json:"skipped"`
}

// Accumulation is the per-source tally of one run.
type Accumulation struct {
	Sources map[string]*Accumulator
	Totals  Totals
}

// Sorted returns the accumulators ordered by source id.
func (a Accumulation) Sorted() []*Accumulator {
	out := make([]*Accumulator, 0, len(a.Sources))
	for _, acc := range a.Sources {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Categorize returns the bucket an event falls in for a source with the
// given topics. Reposts win over tags; must-show tags win over priority.
func Categorize(ev source.Event, p Params, topics []string) Category {
	switch {
	case ev.IsRepost():
		return Repost
	case source.MatchesAny(ev.Tags, p.MustShowTags):
		return Top
	case p.PriorityTag != "" && source.MatchesAny(ev.Tags, []string{p.PriorityTag}):
		return Priority
	case source.MatchesAny(ev.Tags, topics):
		return Priority
	}
	return Regular
}

// Accumulate tallies events that fall in complete intervals per tracked
// source. Events from sources missing in the registry are skipped. The
// viewer is seeded up front so self-authored events always count.
func Accumulate(p Params, g Grouping, events []source.Event, registry []source.TrackedSource) Accumulation {
	known := make(map[string]source.TrackedSource, len(registry))
	for _, ts := range registry {
		known[ts.ID] = ts
	}

	acc := Accumulation{Sources: make(map[string]*Accumulator)}
	first := make(map[string]time.Time)

	if p.Viewer != "" {
		self, ok := known[p.Viewer]
		if !ok {
			self = source.TrackedSource{ID: p.Viewer, Handle: p.Viewer, Weight: source.DefaultWeight}
		}
		a := newAccumulator(p, self)
		a.Self = true
		if a.Weight == 0 {
			a.Weight = Clamp(source.DefaultWeight, p.MinWeight, p.MaxWeight)
		}
		acc.Sources[p.Viewer] = a
	}

	for _, ev := range events {
		if !g.IsComplete(ev.Timestamp) {
			continue
		}

		a, ok := acc.Sources[ev.SourceID]
		if !ok {
			ts, registered := known[ev.SourceID]
			if !registered {
				acc.Totals.Skipped++
				continue
			}
			a = newAccumulator(p, ts)
			acc.Sources[ev.SourceID] = a
		}
		if f, seen := first[ev.SourceID]; !seen || ev.Timestamp.Before(f) {
			first[ev.SourceID] = ev.Timestamp
		}

		cat := Categorize(ev, p, a.Topics)
		a.Counts[cat]++
		if ev.Engaged {
			a.Engaged++
			acc.Totals.Engaged++
		}

		acc.Totals.Accumulated++
		acc.Totals.Posts++
		switch cat {
		case Repost:
			acc.Totals.Reposts++
		case Top:
			acc.Totals.Top++
		case Priority:
			acc.Totals.Priority++
		case Regular:
			acc.Totals.Regular++
		}
		if ev.Dropped {
			acc.Totals.Dropped++
		}
	}
	acc.Totals.Originals = acc.Totals.Posts - acc.Totals.Reposts

	for id, a := range acc.Sources {
		if a.Self {
			a.FollowWeight = 1
			continue
		}
		a.FollowWeight = followWeight(g, known[id].TrackedSince, first[id])
	}

	return acc
}

func newAccumulator(p Params, ts source.TrackedSource) *Accumulator {
	topics := make([]string, 0, len(ts.Topics))
	for _, t := range ts.Topics {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}

	handle := ts.Handle
	if handle == "" {
		handle = ts.ID
	}

	return &Accumulator{
		ID:           ts.ID,
		Handle:       handle,
		Alias:        Alias(p.SecretKey, ts.ID),
		Weight:       source.ClampWeight(ts.Weight, p.MinWeight, p.MaxWeight),
		Topics:       topics,
	}
}

// followWeight is the share of complete intervals covered by the source's
// history. Coverage starts at trackedSince or at the interval holding the
// first counted event, whichever is earlier, so backfilled history is
// spread over the span it was posted in.
func followWeight(g Grouping, trackedSince, firstEvent time.Time) float64 {
	if trackedSince.IsZero() || g.Stats.Complete == 0 {
		return 1
	}
	since := trackedSince
	if start, ok := g.IntervalStart(firstEvent); ok && start.Before(since) {
		since = start
	}
	return Clamp(float64(g.CompleteSince(since))/float64(g.Stats.Complete), 0, 1)
}

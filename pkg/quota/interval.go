package quota

import (
	"time"

	"github.com/elonfeng/skylimit/pkg/source"
)

// intervalKeyLayout sorts lexically in chronological order.
const intervalKeyLayout = "2006-01-02T15"

// Interval is one fixed-width analysis window.
type Interval struct {
	Key      string    `json:"key"`
	Start    time.Time `json:"start"`
	Count    int       `json:"count"`
	Complete bool      `json:"complete"`
}

// IntervalStats describes how much of the lookback range was usable.
type IntervalStats struct {
	Expected          int     `json:"expected"`
	ProcessedNonEmpty int     `json:"processed_non_empty"`
	Complete          int     `json:"complete"`
	Incomplete        int     `json:"incomplete"`
	AvgPerComplete    float64 `json:"avg_per_complete"`
	MaxPerComplete    int     `json:"max_per_complete"`
	Sparse            int     `json:"sparse"`
}

// Grouping is the result of bucketing events into intervals.
type Grouping struct {
	Intervals []Interval
	Stats     IntervalStats
	oldest    time.Time
	width     time.Duration
}

// ClassifyCounts marks which positions of a chronological count series are
// complete: non-empty, not the first or last position, and with non-empty
// neighbors on both sides.
func ClassifyCounts(counts []int) []bool {
	complete := make([]bool, len(counts))
	for i := 1; i < len(counts)-1; i++ {
		complete[i] = counts[i] > 0 && counts[i-1] > 0 && counts[i+1] > 0
	}
	return complete
}

// GroupIntervals buckets events into windows of intervalHours covering
// daysOfData days and ending with the window that contains latest.
// A repost is counted at its own timestamp.
func GroupIntervals(events []source.Event, intervalHours, daysOfData int, latest time.Time) Grouping {
	width := time.Duration(intervalHours) * time.Hour
	newest := latest.UTC().Truncate(width).Add(width)
	oldest := newest.Add(-time.Duration(daysOfData) * 24 * time.Hour)
	n := daysOfData * 24 / intervalHours

	counts := make([]int, n)
	for _, ev := range events {
		ts := ev.Timestamp.UTC()
		if ts.Before(oldest) || !ts.Before(newest) {
			continue
		}
		counts[int(ts.Sub(oldest)/width)]++
	}

	complete := ClassifyCounts(counts)
	g := Grouping{
		Intervals: make([]Interval, n),
		oldest:    oldest,
		width:     width,
	}
	g.Stats.Expected = n

	total := 0
	for i := range counts {
		start := oldest.Add(time.Duration(i) * width)
		g.Intervals[i] = Interval{
			Key:      start.Format(intervalKeyLayout),
			Start:    start,
			Count:    counts[i],
			Complete: complete[i],
		}
		if counts[i] > 0 {
			g.Stats.ProcessedNonEmpty++
		}
		if complete[i] {
			g.Stats.Complete++
			total += counts[i]
			if counts[i] > g.Stats.MaxPerComplete {
				g.Stats.MaxPerComplete = counts[i]
			}
		}
	}
	g.Stats.Incomplete = n - g.Stats.Complete

	if g.Stats.Complete > 0 {
		g.Stats.AvgPerComplete = float64(total) / float64(g.Stats.Complete)
		for _, iv := range g.Intervals {
			if iv.Complete && float64(iv.Count) < sparseFraction*g.Stats.AvgPerComplete {
				g.Stats.Sparse++
			}
		}
	}

	return g
}

// IsComplete reports whether ts falls inside a complete interval.
func (g Grouping) IsComplete(ts time.Time) bool {
	i, ok := g.index(ts)
	return ok && g.Intervals[i].Complete
}

// IntervalStart returns the start of the interval containing ts.
func (g Grouping) IntervalStart(ts time.Time) (time.Time, bool) {
	i, ok := g.index(ts)
	if !ok {
		return time.Time{}, false
	}
	return g.Intervals[i].Start, true
}

// CompleteSince counts complete intervals starting at or after t.
func (g Grouping) CompleteSince(t time.Time) int {
	n := 0
	for _, iv := range g.Intervals {
		if iv.Complete && !iv.Start.Before(t) {
			n++
		}
	}
	return n
}

// DayTotal is the number of days covered by complete intervals, never less
// than four hours.
func (g Grouping) DayTotal() float64 {
	days := float64(g.Stats.Complete) * g.width.Hours() / 24
	if days < minDayTotal {
		return minDayTotal
	}
	return days
}

func (g Grouping) index(ts time.Time) (int, bool) {
	if g.width <= 0 {
		return 0, false
	}
	ts = ts.UTC()
	if ts.Before(g.oldest) {
		return 0, false
	}
	i := int(ts.Sub(g.oldest) / g.width)
	if i >= len(g.Intervals) {
		return 0, false
	}
	return i, true
}

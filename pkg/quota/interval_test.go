package quota

import (
	"testing"
	"time"

	"github.com/elonfeng/skylimit/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyCounts(t *testing.T) {
	tests := []struct {
		name   string
		counts []int
		want   []bool
	}{
		{"gap in the middle", []int{5, 0, 5}, []bool{false, false, false}},
		{"all populated", []int{3, 7, 8, 6, 2}, []bool{false, true, true, true, false}},
		{"empty neighbor", []int{3, 7, 0, 6, 2}, []bool{false, false, false, false, false}},
		{"zero never complete", []int{1, 1, 0, 1, 1, 1}, []bool{false, false, false, false, true, false}},
		{"single", []int{9}, []bool{false}},
		{"none", nil, []bool{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyCounts(tt.counts))
		})
	}
}

func TestGroupIntervals(t *testing.T) {
	events := steadyEvents("alice")
	events = append(events, post("extra", "alice", at(5, 30)))

	g := GroupIntervals(events, 2, 1, at(23, 0))

	require.Len(t, g.Intervals, 12)
	assert.Equal(t, "2026-10-19T00", g.Intervals[0].Key)
	assert.Equal(t, "2026-10-19T22", g.Intervals[11].Key)
	assert.False(t, g.Intervals[0].Complete)
	assert.False(t, g.Intervals[11].Complete)
	for i := 1; i <= 10; i++ {
		assert.True(t, g.Intervals[i].Complete, "interval %d", i)
	}
	assert.Equal(t, 2, g.Intervals[2].Count)

	assert.Equal(t, IntervalStats{
		Expected:          12,
		ProcessedNonEmpty: 12,
		Complete:          10,
		Incomplete:        2,
		AvgPerComplete:    1.1,
		MaxPerComplete:    2,
		Sparse:            0,
	}, g.Stats)
	assert.InDelta(t, 20.0/24.0, g.DayTotal(), 1e-12)
}

func TestGroupIntervalsIgnoresOutOfRange(t *testing.T) {
	events := steadyEvents("alice")
	events = append(events, post("old", "alice", day.Add(-3*24*time.Hour)))

	g := GroupIntervals(events, 2, 1, at(23, 0))
	total := 0
	for _, iv := range g.Intervals {
		total += iv.Count
	}
	assert.Equal(t, 12, total)
}

func TestGroupIntervalsRepostUsesOwnTime(t *testing.T) {
	events := []source.Event{
		post("a", "alice", at(1, 0)),
		post("b", "alice", at(3, 0)),
		repost("c", "alice", at(5, 0), "ancient-post"),
	}
	g := GroupIntervals(events, 2, 1, at(5, 0))

	// The range ends with the 04:00 window; the repost lands there.
	last := g.Intervals[len(g.Intervals)-1]
	assert.Equal(t, "2026-10-19T04", last.Key)
	assert.Equal(t, 1, last.Count)
	assert.True(t, g.IsComplete(at(3, 15)))
	assert.False(t, g.IsComplete(at(5, 0)))
}

func TestGroupIntervalsSparse(t *testing.T) {
	var events []source.Event
	// 20 events per window except one window with a single event.
	for h := 0; h < 24; h += 2 {
		n := 20
		if h == 10 {
			n = 1
		}
		for i := 0; i < n; i++ {
			events = append(events, post("", "alice", at(h, i)))
		}
	}
	g := GroupIntervals(events, 2, 1, at(23, 0))
	assert.Equal(t, 10, g.Stats.Complete)
	assert.Equal(t, 1, g.Stats.Sparse)
	assert.Equal(t, 20, g.Stats.MaxPerComplete)
}

func TestDayTotalFloor(t *testing.T) {
	g := GroupIntervals(nil, 2, 1, at(23, 0))
	assert.Equal(t, 0, g.Stats.Complete)
	assert.InDelta(t, 4.0/24.0, g.DayTotal(), 1e-12)
}

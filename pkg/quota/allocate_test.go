package quota

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weightedUse(demands []Demand, level float64) float64 {
	used := 0.0
	for _, d := range demands {
		if d.Weight > 0 {
			used += math.Min(Finite(d.Rate), level) * d.Weight
		}
	}
	return used
}

func TestWaterFillTwoSources(t *testing.T) {
	demands := []Demand{
		{ID: "a", Rate: 10, Weight: 1},
		{ID: "b", Rate: 4, Weight: 2},
	}

	level := WaterFill(demands, 9)

	// Fair share 9/3 = 3 is below b's rate, so b is capped at 3 (using 6)
	// and a gets the remaining 3.
	assert.InDelta(t, 3.0, level, 1e-12)
	assert.InDelta(t, 9.0, weightedUse(demands, level), 1e-9)
}

func TestWaterFillLowDemandSatisfiedFirst(t *testing.T) {
	demands := []Demand{
		{ID: "small", Rate: 1, Weight: 1},
		{ID: "mid", Rate: 5, Weight: 1},
		{ID: "big", Rate: 100, Weight: 1},
	}

	level := WaterFill(demands, 30)

	// small takes 1, mid takes 5, big gets 24.
	assert.InDelta(t, 24.0, level, 1e-12)
	assert.InDelta(t, 30.0, weightedUse(demands, level), 1e-9)
}

func TestWaterFillBudgetNeverExhausted(t *testing.T) {
	demands := []Demand{
		{ID: "a", Rate: 2, Weight: 1},
		{ID: "b", Rate: 3, Weight: 1},
	}
	assert.Equal(t, 3.0, WaterFill(demands, 500))
}

func TestWaterFillSkipsUnweighted(t *testing.T) {
	demands := []Demand{
		{ID: "a", Rate: 10, Weight: 1},
		{ID: "gone", Rate: 1000, Weight: 0},
	}
	assert.InDelta(t, 6.0, WaterFill(demands, 6), 1e-12)
	assert.Zero(t, WaterFill(nil, 6))
	assert.Zero(t, WaterFill([]Demand{{ID: "gone", Rate: 3}}, 6))
}

func TestWaterFillNeverExceedsBudget(t *testing.T) {
	demands := []Demand{
		{ID: "a", Rate: 0.5, Weight: 0.25},
		{ID: "b", Rate: 3, Weight: 1},
		{ID: "c", Rate: 3, Weight: 4},
		{ID: "d", Rate: 17.2, Weight: 1.5},
		{ID: "e", Rate: 40, Weight: 8},
		{ID: "f", Rate: math.NaN(), Weight: 1},
		{ID: "g", Rate: 0, Weight: 2},
	}

	for _, budget := range []float64{0, 0.1, 1, 9, 25, 60, 150, 400, 10000} {
		level := WaterFill(demands, budget)
		require.False(t, math.IsNaN(level) || math.IsInf(level, 0))
		assert.GreaterOrEqual(t, level, 0.0)
		assert.LessOrEqual(t, weightedUse(demands, level), budget+1e-9, "budget %v", budget)
	}
}

func TestAllocate(t *testing.T) {
	sources := []*Accumulator{
		{ID: "a", Weight: 1, FollowWeight: 1, Counts: [numCategories]int{Regular: 20}},
		{ID: "b", Weight: 2, FollowWeight: 1, Counts: [numCategories]int{Regular: 8, Repost: 8}},
		{ID: "gone", Weight: 0, FollowWeight: 1, Counts: [numCategories]int{Regular: 50}},
	}

	// Two days of data: a=10/day, b=8/day normalized to 4, gone=25/day.
	q := Allocate(sources, 9, 2)

	assert.InDelta(t, 10.0, sources[0].DailyRate, 1e-12)
	assert.InDelta(t, 10.0, sources[0].NormalizedRate, 1e-12)
	assert.InDelta(t, 8.0, sources[1].DailyRate, 1e-12)
	assert.InDelta(t, 4.0, sources[1].NormalizedRate, 1e-12)
	assert.InDelta(t, 25.0, sources[2].NormalizedRate, 1e-12)
	assert.InDelta(t, 3.0, q, 1e-12)
}

func TestAllocateFloorsRateSpan(t *testing.T) {
	sources := []*Accumulator{
		{ID: "late", Weight: 1, FollowWeight: 0, Counts: [numCategories]int{Regular: 3}},
	}
	Allocate(sources, 100, 0)

	// followWeight 0 floors the span at 0.1 days.
	assert.InDelta(t, 30.0, sources[0].DailyRate, 1e-9)
}

package quota

import (
	"math"
	"sort"
)

// Demand is one weighted source's normalized daily rate.
type Demand struct {
	ID     string
	Rate   float64
	Weight float64
}

// WaterFill returns the level at which the weighted demands, each capped at
// that level, use up budget. Sources are visited in ascending rate order; a
// source below the current fair share is satisfied in full and its unused
// share flows to the sources after it. If the budget is never exhausted the
// level is the highest demand.
func WaterFill(demands []Demand, budget float64) float64 {
	sorted := make([]Demand, 0, len(demands))
	remainingWeight := 0.0
	for _, d := range demands {
		if !(d.Weight > 0) {
			continue
		}
		d.Rate = math.Max(Finite(d.Rate), 0)
		sorted = append(sorted, d)
		remainingWeight += d.Weight
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Rate != sorted[j].Rate {
			return sorted[i].Rate < sorted[j].Rate
		}
		return sorted[i].ID < sorted[j].ID
	})

	remainingBudget := math.Max(Finite(budget), 0)
	level := 0.0
	for _, d := range sorted {
		share := math.Max(SafeDiv(remainingBudget, remainingWeight, minWeight), 0)
		candidate := math.Min(d.Rate, share)
		level = math.Max(level, candidate)
		remainingBudget -= candidate * d.Weight
		remainingWeight -= d.Weight
	}
	return Finite(level)
}

// Allocate fills in each accumulator's daily and normalized rates and
// returns the quota number. Unfollowed sources (weight 0) get rates for
// display but take no part in the allocation.
func Allocate(sources []*Accumulator, viewsPerDay, dayTotal float64) float64 {
	if dayTotal < minDayTotal {
		dayTotal = minDayTotal
	}

	demands := make([]Demand, 0, len(sources))
	for _, a := range sources {
		a.DailyRate = SafeDiv(float64(a.Total()), a.FollowWeight*dayTotal, minRateSpan)
		if a.Weight <= 0 {
			a.NormalizedRate = a.DailyRate
			continue
		}
		a.NormalizedRate = SafeDiv(a.DailyRate, a.Weight, minWeight)
		demands = append(demands, Demand{ID: a.ID, Rate: a.NormalizedRate, Weight: a.Weight})
	}

	return WaterFill(demands, viewsPerDay)
}

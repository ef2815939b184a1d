package quota

import "math"

// UserEntry is the persisted per-source result of a run.
type UserEntry struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Alias    string   `json:"alias"`
	Self     bool     `json:"self,omitempty"`
	Followed bool     `json:"followed"`
	Weight   float64  `json:"weight"`
	Topics   []string `json:"topics,omitempty"`

	TopDaily       float64 `json:"top_daily"`
	PriorityDaily  float64 `json:"priority_daily"`
	RegularDaily   float64 `json:"regular_daily"`
	RepostDaily    float64 `json:"repost_daily"`
	EngagedDaily   float64 `json:"engaged_daily"`
	TotalDaily     float64 `json:"total_daily"`
	NormalizedRate float64 `json:"normalized_rate"`

	NetProb      float64 `json:"net_prob"`
	PriorityProb float64 `json:"priority_prob"`
	RegularProb  float64 `json:"regular_prob"`
}

// SplitBudget divides an available daily budget between priority and
// regular content. Priority content is served first; regular content (which
// includes reposts) only gets what is left.
func SplitBudget(available, priorityRate, regularRate float64) (priorityProb, regularProb float64) {
	switch {
	case !(available > 0):
		return 0, 0
	case priorityRate >= available:
		return Prob(SafeDiv(available, priorityRate, minWeight)), 0
	default:
		return 1, Prob(SafeDiv(available-priorityRate, regularRate, 1))
	}
}

// DeriveProbabilities converts an allocated accumulator into its entry.
func DeriveProbabilities(p Params, quotaNumber, dayTotal float64, a *Accumulator) UserEntry {
	if dayTotal < minDayTotal {
		dayTotal = minDayTotal
	}
	span := a.FollowWeight * dayTotal
	daily := func(n int) float64 {
		return SafeDiv(float64(n), span, minRateSpan)
	}

	e := UserEntry{
		ID:             a.ID,
		Name:           a.Handle,
		Alias:          a.Alias,
		Self:           a.Self,
		Followed:       a.Weight > 0,
		Weight:         a.Weight,
		Topics:         a.Topics,
		TopDaily:       daily(a.Counts[Top]),
		PriorityDaily:  daily(a.Counts[Priority]),
		RegularDaily:   daily(a.Counts[Regular]),
		RepostDaily:    daily(a.Counts[Repost]),
		EngagedDaily:   daily(a.Engaged),
		TotalDaily:     Finite(a.DailyRate),
		NormalizedRate: Finite(a.NormalizedRate),
	}
	if p.Anonymize {
		e.ID = a.Alias
		e.Name = a.Alias
	}

	netCount := e.NormalizedRate
	if a.Self {
		netCount = e.TotalDaily
	}
	e.NetProb = Prob(SafeDiv(quotaNumber, netCount, 1))

	weight := a.Weight
	if weight <= 0 {
		weight = 1
	}
	sourceQuota := Finite(quotaNumber * weight)

	reserve := e.TopDaily
	if sourceQuota < p.MinQuotaThreshold {
		reserve = math.Min(e.TopDaily, topReserve)
	}

	e.PriorityProb, e.RegularProb = SplitBudget(sourceQuota-reserve, e.PriorityDaily, e.RegularDaily+e.RepostDaily)
	return e
}

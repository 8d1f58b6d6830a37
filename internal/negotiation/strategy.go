package negotiation

import "strings"

// Strategy governs how quickly counter offers approach the floor.
type Strategy string

const (
	StrategyConciliatory Strategy = "conciliatory"
	StrategyModerate     Strategy = "moderate"
	StrategyAggressive   Strategy = "aggressive"
)

// DefaultStrategy applies when a shop has not chosen one.
const DefaultStrategy = StrategyModerate

// concessionSchedule maps a round (1-based) to the share of the gap conceded.
type concessionSchedule func(round int) float64

var schedules = map[Strategy]concessionSchedule{
	StrategyConciliatory: stepSchedule(0.50, 0.80, 1.00),
	StrategyModerate:     stepSchedule(0.30, 0.60, 1.00),
	StrategyAggressive:   aggressiveSchedule,
}

// ParseStrategy maps a stored label onto the closed set, defaulting to moderate.
func ParseStrategy(label string) Strategy {
	s := Strategy(strings.ToLower(strings.TrimSpace(label)))
	if _, ok := schedules[s]; ok {
		return s
	}
	return DefaultStrategy
}

// Valid reports whether the strategy has a concession schedule.
func (s Strategy) Valid() bool {
	_, ok := schedules[s]
	return ok
}

// Concession returns the fraction of the gap between list price and floor conceded
// in the given round. The result is within [0, 1].
func Concession(strategy Strategy, round int) float64 {
	schedule, ok := schedules[strategy]
	if !ok {
		schedule = schedules[DefaultStrategy]
	}
	if round < 1 {
		round = 1
	}
	pct := schedule(round)
	if pct < 0 {
		return 0
	}
	if pct > 1 {
		return 1
	}
	return pct
}

func stepSchedule(steps ...float64) concessionSchedule {
	return func(round int) float64 {
		if round > len(steps) {
			return steps[len(steps)-1]
		}
		return steps[round-1]
	}
}

const aggressiveCap = 0.80

func aggressiveSchedule(round int) float64 {
	switch round {
	case 1:
		return 0.10
	case 2:
		return 0.25
	case 3:
		return 0.40
	}
	pct := 0.50 + 0.10*float64(round-3)
	if pct > aggressiveCap {
		return aggressiveCap
	}
	return pct
}

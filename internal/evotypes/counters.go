package evotypes

import "time"

// UTCDayString formats t as the UTC calendar date used to key Counters.
// Every day-rollover check in the engine (State Store, Rate Governor) goes
// through this function so the two stay in lockstep.
func UTCDayString(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Counters tracks the daily budgets the Rate Governor and State Store
// enforce together. Day is a UTC calendar date ("2006-01-02") - all
// rollover arithmetic in the engine is done in UTC so both collections
// roll over at the same instant.
type Counters struct {
	Day string `json:"day"`

	ProposalsApplied   int `json:"proposalsApplied"`
	AutomaticRollbacks int `json:"automaticRollbacks"`
	ManualRollbacks    int `json:"manualRollbacks"`
	Escalations        int `json:"escalations"`
}

// MetricsSnapshot is a point-in-time read of the signals the Self-Healing
// Monitor compares against its degradation thresholds.
type MetricsSnapshot struct {
	Category         ProposalCategory `json:"category"`
	WindowStart      time.Time        `json:"windowStart"`
	WindowEnd        time.Time        `json:"windowEnd"`
	SuccessRate      float64          `json:"successRate"`
	AverageCostUSD   float64          `json:"averageCostUsd"`
	AverageDurationMs int64           `json:"averageDurationMs"`
	SampleSize       int              `json:"sampleSize"`
}

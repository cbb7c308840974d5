package evotypes

import "time"

// SignalKind is the source that produced a Signal. The Evolution Engine
// does not interpret signal payloads beyond category/kind - synthesis of
// proposals from signals is out of scope.
type SignalKind string

const (
	SignalUserFeedback   SignalKind = "user-feedback"
	SignalTaskOutcome    SignalKind = "task-outcome"
	SignalErrorPattern   SignalKind = "error-pattern"
	SignalManualSubmit   SignalKind = "manual-submission"
)

// Signal is a single raw observation recorded in the signals ring buffer,
// feeding the historical-success-rate factor of the Risk Scorer.
type Signal struct {
	ID        string                 `json:"id"`
	Kind      SignalKind             `json:"kind"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

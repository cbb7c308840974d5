package evotypes

import "time"

// DecisionOutcome is what the Decision Policy returns for a Proposal.
type DecisionOutcome string

const (
	DecisionApprove  DecisionOutcome = "approved"
	DecisionDefer    DecisionOutcome = "deferred"
	DecisionEscalate DecisionOutcome = "escalated"
	DecisionReject   DecisionOutcome = "rejected"
)

// Decision records a single Decision Policy evaluation. Like Assessment, it
// is returned to the caller and not persisted: the application log records
// only each proposal's category and final status.
type Decision struct {
	ProposalID string          `json:"proposalId"`
	Outcome    DecisionOutcome `json:"outcome"`
	Reason     string          `json:"reason"`

	// MatchedRule is the name of the custom rule that produced this outcome,
	// empty when the outcome came from the built-in autonomy/confidence checks.
	MatchedRule string `json:"matchedRule,omitempty"`

	AssessmentRiskLevel RiskLevel `json:"assessmentRiskLevel"`
	Confidence          float64   `json:"confidence"`
	Timestamp           time.Time `json:"timestamp"`
}

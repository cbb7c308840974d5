package evotypes

import "time"

// Factor is one named weighted input to a risk Assessment.
type Factor struct {
	Name        string  `json:"name"`
	Weight      float64 `json:"weight"`
	Value       float64 `json:"value"` // normalized to [0,1]; 1.0 is riskiest
	Explanation string  `json:"explanation"`
}

// Assessment is the Risk Scorer's pure output for a Proposal. Never stored
// long-term - it is regenerated from history on every call.
type Assessment struct {
	ProposalID  string    `json:"proposalId"`
	RiskLevel   RiskLevel `json:"riskLevel"`
	RiskScore   float64   `json:"riskScore"`
	Confidence  float64   `json:"confidence"`
	Factors     []Factor  `json:"factors"`
	Timestamp   time.Time `json:"timestamp"`

	// Recommendations are heuristic suggestions surfaced to humans; they do
	// not influence the Decision Policy.
	Recommendations []string `json:"recommendations,omitempty"`
}

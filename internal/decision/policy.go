// Package decision implements the Decision Policy: the ordered set of
// checks that turns a risk Assessment into an approve/defer/escalate/reject
// outcome. The check order and early-exit structure runs a sequence of
// independent veto checks and returns on the first one that fires rather
// than scoring everything and combining afterward.
package decision

import (
	"context"
	"fmt"
	"time"

	"github.com/codenerd-labs/evolution-engine/internal/config"
	"github.com/codenerd-labs/evolution-engine/internal/evotypes"
	"github.com/codenerd-labs/evolution-engine/internal/logging"
)

// CouncilOracle is consulted when a proposal is too risky for flat
// autonomous approval - it casts the deciding vote between approve and
// reject. Errors from the oracle (or no oracle being configured) are never
// fatal to the decision: the policy downgrades them to escalated instead.
type CouncilOracle interface {
	// Consult returns true if the council approves applying p given a.
	Consult(ctx context.Context, p *evotypes.Proposal, a *evotypes.Assessment) (bool, error)
}

// Policy evaluates proposals against an EngineConfig. Oracle may be nil, in
// which case any decision that would consult it escalates instead.
type Policy struct {
	Config *config.EngineConfig
	Oracle CouncilOracle
}

// New builds a Policy. oracle may be nil.
func New(cfg *config.EngineConfig, oracle CouncilOracle) *Policy {
	return &Policy{Config: cfg, Oracle: oracle}
}

// Decide runs the ordered checks from spec §4.3 against p and a, returning
// the first one that fires. Decide never fails: an oracle error becomes an
// escalated decision rather than a returned error.
func (pol *Policy) Decide(ctx context.Context, p *evotypes.Proposal, a *evotypes.Assessment) *evotypes.Decision {
	d := &evotypes.Decision{
		ProposalID:          p.ID,
		AssessmentRiskLevel: a.RiskLevel,
		Confidence:          a.Confidence,
	}

	// 1. Engine disabled.
	if !pol.Config.Enabled {
		return pol.finish(d, evotypes.DecisionDefer, "", "evolution engine is disabled")
	}

	// 2. Dry-run mode: the engine still decides but never lets anything
	// through to application.
	if pol.Config.DryRun {
		return pol.finish(d, evotypes.DecisionDefer, "", "dry-run mode: decisions are recorded but never applied")
	}

	// 3. Custom rules, evaluated in priority order; first match wins.
	for _, rule := range pol.Config.SortedCustomRules() {
		if ruleMatches(rule, p, a) {
			return pol.finish(d, rule.Action, rule.Name, fmt.Sprintf("matched custom rule %q", rule.Name))
		}
	}

	// 4. Autonomy envelope.
	if outcome, rule, reason, ok := pol.autonomyCheck(ctx, p, a); ok {
		return pol.finish(d, outcome, rule, reason)
	}

	// 5. Confidence floor.
	if a.Confidence < pol.Config.MinConfidence {
		return pol.finish(d, evotypes.DecisionDefer, "",
			fmt.Sprintf("confidence %.2f below configured minimum %.2f", a.Confidence, pol.Config.MinConfidence))
	}

	return pol.finish(d, evotypes.DecisionApprove, "", "passed all autonomy and confidence checks")
}

// autonomyCheck applies spec §4.3 step 4. ok is false when none of the
// autonomy rules apply and evaluation should fall through to the confidence
// floor check.
func (pol *Policy) autonomyCheck(ctx context.Context, p *evotypes.Proposal, a *evotypes.Assessment) (outcome evotypes.DecisionOutcome, rule, reason string, ok bool) {
	switch pol.Config.AutonomyLevel {
	case config.AutonomyManual:
		return evotypes.DecisionDefer, "", "autonomy level is manual: every proposal requires human review", true

	case config.AutonomyAssisted:
		if a.RiskLevel == evotypes.RiskLow {
			return "", "", "", false // fall through to confidence floor
		}
		return evotypes.DecisionDefer, "", fmt.Sprintf("assisted autonomy requires review for %s-risk proposals", a.RiskLevel), true

	case config.AutonomyAuto:
		switch {
		case a.RiskLevel == evotypes.RiskLow:
			return "", "", "", false // fall through to confidence floor
		case a.RiskLevel == evotypes.RiskMedium && !pol.Config.RequireCouncil:
			return "", "", "", false // fall through to confidence floor
		default:
			// High risk always consults the council when available; medium
			// risk only does when RequireCouncil is set.
			return pol.consultCouncil(ctx, p, a)
		}

	default:
		return evotypes.DecisionDefer, "", fmt.Sprintf("unrecognized autonomy level %d", pol.Config.AutonomyLevel), true
	}
}

func (pol *Policy) consultCouncil(ctx context.Context, p *evotypes.Proposal, a *evotypes.Assessment) (evotypes.DecisionOutcome, string, string, bool) {
	if pol.Oracle == nil {
		return evotypes.DecisionEscalate, "", fmt.Sprintf("%s-risk proposal requires council review but no oracle is configured", a.RiskLevel), true
	}

	approved, err := pol.Oracle.Consult(ctx, p, a)
	if err != nil {
		logging.DecisionDebug("council oracle failed for proposal %s, escalating: %v", p.ID, err)
		return evotypes.DecisionEscalate, "", fmt.Sprintf("council oracle unavailable: %v", err), true
	}
	if approved {
		return evotypes.DecisionApprove, "", "council approved", true
	}
	return evotypes.DecisionReject, "", "council declined to approve", true
}

// ruleMatches reports whether every populated field of rule constrains and
// is satisfied by p/a. Zero-value fields (empty slice, "" risk, 0 int) are
// treated as unconstrained.
func ruleMatches(rule config.CustomRule, p *evotypes.Proposal, a *evotypes.Assessment) bool {
	if len(rule.AllowedCategories) > 0 {
		found := false
		for _, c := range rule.AllowedCategories {
			if c == p.Category {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if rule.MaxRiskLevel != "" && a.RiskLevel.Exceeds(rule.MaxRiskLevel) {
		return false
	}
	if rule.MinConfidence > 0 && a.Confidence < rule.MinConfidence {
		return false
	}
	if rule.MaxAffectedTargets > 0 && len(p.Payload.AffectedTargets()) > rule.MaxAffectedTargets {
		return false
	}
	if rule.Scope != "" && p.Payload.Scope() != rule.Scope {
		return false
	}
	return true
}

func (pol *Policy) finish(d *evotypes.Decision, outcome evotypes.DecisionOutcome, matchedRule, reason string) *evotypes.Decision {
	d.Outcome = outcome
	d.MatchedRule = matchedRule
	d.Reason = reason
	d.Timestamp = time.Now()
	logging.Decision("proposal %s -> %s (%s)", d.ProposalID, d.Outcome, d.Reason)
	return d
}

// Package risk implements the Risk Scorer: a pure function of a Proposal
// and a read-only history view that produces an Assessment. Weighted-factor
// scoring combines several named, independently-weighted signals into one
// clamped [0,1] score.
package risk

import (
	"fmt"
	"time"

	"github.com/codenerd-labs/evolution-engine/internal/evotypes"
	"github.com/codenerd-labs/evolution-engine/internal/logging"
)

// Weights are the default per-factor weights from spec §4.2. They sum to 1.0
// so the weighted average and the plain weighted sum coincide; the scorer
// still divides by the weight sum defensively in case a caller customizes
// them per deployment.
const (
	weightCategory         = 0.30
	weightScope            = 0.20
	weightAffectedTargets  = 0.20
	weightHistoricalSucces = 0.15
	weightOverrideRate     = 0.15
)

// categoryBaseRisk is the static per-category risk table (spec §4.2: "static
// table per category"). skill-creation and config-update carry more
// intrinsic risk since they create new artifacts or touch settings wiring;
// rule-add and mode-instruction are additive text changes.
var categoryBaseRisk = map[evotypes.ProposalCategory]float64{
	evotypes.CategoryRuleAdd:          0.2,
	evotypes.CategoryModeInstruction:  0.3,
	evotypes.CategoryPromptRefinement: 0.3,
	evotypes.CategoryConfigUpdate:     0.6,
	evotypes.CategorySkillCreation:    0.7,
}

// affectedTargetSafeCount is the threshold above which the affected-target
// factor starts rising (spec §4.2: "risk rises stepwise above a safe-count
// threshold").
const affectedTargetSafeCount = 2

// HistoryProvider supplies the read-only history snapshot the Risk Scorer
// needs. Implementations must treat fewer than 3 samples as "neutral"
// (spec §4.2), never as an error - the Scorer itself never fails.
type HistoryProvider interface {
	// SuccessRate returns the historical success rate for category and the
	// sample count it was computed from.
	SuccessRate(category evotypes.ProposalCategory) (rate float64, samples int)
	// OverrideRate returns the user override rate for category over the
	// last 30 days, and the sample count.
	OverrideRate(category evotypes.ProposalCategory) (rate float64, samples int)
}

// NeutralHistory is a HistoryProvider with no data, used when a caller has
// no history view available (e.g. scoring a proposal before any store is
// wired up).
type NeutralHistory struct{}

func (NeutralHistory) SuccessRate(evotypes.ProposalCategory) (float64, int)  { return 0.5, 0 }
func (NeutralHistory) OverrideRate(evotypes.ProposalCategory) (float64, int) { return 0.5, 0 }

// Score produces an Assessment for p using history. Deterministic and never
// fails (spec §4.2 Failure: "Deterministic; does not fail").
func Score(p *evotypes.Proposal, history HistoryProvider, minConfidence float64) *evotypes.Assessment {
	if history == nil {
		history = NeutralHistory{}
	}

	factors := []evotypes.Factor{
		categoryFactor(p.Category),
		scopeFactor(p.Payload.Scope()),
		affectedTargetsFactor(len(p.Payload.AffectedTargets())),
	}

	successRate, successSamples := history.SuccessRate(p.Category)
	factors = append(factors, evotypes.Factor{
		Name:        "historical-success-rate",
		Weight:      weightHistoricalSucces,
		Value:       1 - successRate, // higher past success -> lower risk value
		Explanation: fmt.Sprintf("category success rate %.2f over %d samples", successRate, successSamples),
	})

	overrideRate, overrideSamples := history.OverrideRate(p.Category)
	factors = append(factors, evotypes.Factor{
		Name:        "user-override-rate",
		Weight:      weightOverrideRate,
		Value:       overrideRate,
		Explanation: fmt.Sprintf("user override rate %.2f over %d samples (30d)", overrideRate, overrideSamples),
	})

	var weightedSum, weightTotal float64
	for _, f := range factors {
		weightedSum += f.Weight * f.Value
		weightTotal += f.Weight
	}
	riskScore := 0.0
	if weightTotal > 0 {
		riskScore = weightedSum / weightTotal
	}

	assessment := &evotypes.Assessment{
		ProposalID: p.ID,
		RiskScore:  riskScore,
		RiskLevel:  riskLevelFor(riskScore),
		Confidence: confidenceFor(successSamples, factors, minConfidence),
		Factors:    factors,
		Timestamp:  time.Now(),
	}
	assessment.Recommendations = recommendationsFor(factors)

	logging.RiskDebug("scored proposal %s: level=%s score=%.3f confidence=%.3f",
		p.ID, assessment.RiskLevel, assessment.RiskScore, assessment.Confidence)
	return assessment
}

func categoryFactor(category evotypes.ProposalCategory) evotypes.Factor {
	value, ok := categoryBaseRisk[category]
	if !ok {
		value = 0.5 // unknown category: treat as medium risk rather than failing
	}
	return evotypes.Factor{
		Name:        "category",
		Weight:      weightCategory,
		Value:       value,
		Explanation: fmt.Sprintf("base risk for category %q", category),
	}
}

func scopeFactor(scope evotypes.Scope) evotypes.Factor {
	value := 0.3
	if scope == evotypes.ScopeGlobal {
		value = 0.8
	}
	return evotypes.Factor{
		Name:        "scope",
		Weight:      weightScope,
		Value:       value,
		Explanation: fmt.Sprintf("scope=%s", scope),
	}
}

func affectedTargetsFactor(count int) evotypes.Factor {
	value := 0.2
	if count > affectedTargetSafeCount {
		extra := count - affectedTargetSafeCount
		value = 0.2 + float64(extra)*0.15
		if value > 1.0 {
			value = 1.0
		}
	}
	return evotypes.Factor{
		Name:        "affected-target-count",
		Weight:      weightAffectedTargets,
		Value:       value,
		Explanation: fmt.Sprintf("%d affected target(s)", count),
	}
}

// riskLevelFor applies the fixed thresholds from spec §4.2.
func riskLevelFor(score float64) evotypes.RiskLevel {
	switch {
	case score <= 0.33:
		return evotypes.RiskLow
	case score <= 0.66:
		return evotypes.RiskMedium
	default:
		return evotypes.RiskHigh
	}
}

// confidenceFor implements spec §4.2's formula: 0.7 base, bumped for more
// historical samples and for low variance among factor values, capped at
// 0.95 and floored at the configured minimum.
func confidenceFor(samples int, factors []evotypes.Factor, minConfidence float64) float64 {
	confidence := 0.7
	switch {
	case samples >= 10:
		confidence += 0.15
	case samples >= 5:
		confidence += 0.10
	case samples >= 3:
		confidence += 0.05
	}

	if lowVariance(factors) {
		if samples >= 5 {
			confidence += 0.10
		} else {
			confidence += 0.05
		}
	}

	if confidence > 0.95 {
		confidence = 0.95
	}
	if confidence < minConfidence {
		confidence = minConfidence
	}
	return confidence
}

// lowVariance reports whether the factor values cluster tightly, a signal
// that the assessment is unusually stable.
func lowVariance(factors []evotypes.Factor) bool {
	if len(factors) == 0 {
		return false
	}
	var sum float64
	for _, f := range factors {
		sum += f.Value
	}
	mean := sum / float64(len(factors))

	var variance float64
	for _, f := range factors {
		d := f.Value - mean
		variance += d * d
	}
	variance /= float64(len(factors))

	return variance < 0.02
}

// recommendationsFor surfaces simple heuristic suggestions to humans; they
// never feed back into the Decision Policy (spec §4.2).
func recommendationsFor(factors []evotypes.Factor) []string {
	var out []string
	for _, f := range factors {
		if f.Name == "affected-target-count" && f.Value > 0.6 {
			out = append(out, "consider smaller batches: this proposal touches many targets")
		}
		if f.Name == "scope" && f.Value >= 0.8 {
			out = append(out, "global-scope change: review carefully before auto-approval")
		}
	}
	return out
}

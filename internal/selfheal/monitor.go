// Package selfheal implements the Self-Healing Monitor: it watches applied
// proposals registered through WatchApplication, compares a later
// post-metrics snapshot against the pre-metrics snapshot taken at apply
// time, recommends a rollback when degradation crosses a threshold, and
// runs rollbacks through the Applicator when ApplyRollback is called.
// Nothing else in the engine registers applied proposals or calls
// ApplyRollback on a rollback verdict, and the configured monitoring
// period (MonitoringPeriodMs) is not consulted. The bounded-concurrency evaluation sweep fans
// independent units of work out through an errgroup with a shared context
// instead of a hand-rolled WaitGroup.
package selfheal

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codenerd-labs/evolution-engine/internal/applicator"
	"github.com/codenerd-labs/evolution-engine/internal/config"
	"github.com/codenerd-labs/evolution-engine/internal/eventbus"
	"github.com/codenerd-labs/evolution-engine/internal/evoerrors"
	"github.com/codenerd-labs/evolution-engine/internal/evotypes"
	"github.com/codenerd-labs/evolution-engine/internal/governor"
	"github.com/codenerd-labs/evolution-engine/internal/logging"
	"github.com/codenerd-labs/evolution-engine/internal/store"
)

// hysteresisMarginPct is added on top of each configured threshold before a
// crossing recommends rollback, so a metric hovering a point or two over
// the line doesn't flap between ignore and rollback on every sweep.
const hysteresisMarginPct = 5.0

// maxConcurrentEvaluations bounds the errgroup fan-out in EvaluateAll.
const maxConcurrentEvaluations = 4

// Recommendation is the Monitor's verdict for one watched application.
type Recommendation string

const (
	RecommendIgnore          Recommendation = "ignore"
	RecommendRollback        Recommendation = "rollback"
	RecommendInsufficientData Recommendation = "insufficient-data"
)

// Verdict is the result of evaluating one MonitoredApplication.
type Verdict struct {
	ProposalID     string
	Recommendation Recommendation
	Severity       float64 // max relative magnitude across the three signals
	Reason         string
}

// Monitor evaluates watched applications and, when degradation is severe
// enough, drives a rollback through the Applicator.
type Monitor struct {
	store      *store.Store
	applicator *applicator.Applicator
	governor   *governor.Governor
	bus        *eventbus.Bus
	cfg        *config.SelfHealConfig
	now        func() time.Time
}

// New builds a Monitor.
func New(s *store.Store, app *applicator.Applicator, gov *governor.Governor, bus *eventbus.Bus, cfg *config.SelfHealConfig) *Monitor {
	return &Monitor{store: s, applicator: app, governor: gov, bus: bus, cfg: cfg, now: time.Now}
}

// WatchApplication begins monitoring a freshly applied proposal, capturing
// the pre-metrics snapshot the caller observed at apply time.
func (m *Monitor) WatchApplication(proposalID string, affectedTargets []string, pre evotypes.MetricsSnapshot) error {
	if !m.cfg.Enabled {
		return nil
	}
	return m.store.PutMonitoredApplication(&evotypes.MonitoredApplication{
		ID:              proposalID,
		ProposalID:      proposalID,
		AffectedTargets: affectedTargets,
		PreMetrics:      pre,
		Status:          evotypes.MonitoringWatching,
		CreatedAt:       m.now(),
	})
}

// RecordPostMetrics attaches the later-arriving post-application snapshot
// to an existing watch record; it may be called from a subsystem other
// than the one that created the watch.
func (m *Monitor) RecordPostMetrics(proposalID string, post evotypes.MetricsSnapshot) error {
	return m.store.SetPostMetrics(proposalID, post)
}

// Evaluate applies the degradation predicate to one watched application. It
// does not itself decide to roll back - callers that want the Monitor to
// act on a RecommendRollback verdict call ApplyRollback.
func (m *Monitor) Evaluate(proposalID string) (*Verdict, error) {
	watch, err := m.store.GetMonitoredApplication(proposalID)
	if err != nil {
		return nil, err
	}
	return m.evaluateWatch(watch), nil
}

func (m *Monitor) evaluateWatch(watch *evotypes.MonitoredApplication) *Verdict {
	v := &Verdict{ProposalID: watch.ProposalID}

	if watch.PostMetrics == nil {
		v.Recommendation = RecommendInsufficientData
		v.Reason = "no post-metrics recorded yet"
		return v
	}
	if watch.PostMetrics.SampleSize < m.cfg.MinTasksForEvaluation {
		v.Recommendation = RecommendInsufficientData
		v.Reason = fmt.Sprintf("only %d task(s) observed, need %d", watch.PostMetrics.SampleSize, m.cfg.MinTasksForEvaluation)
		return v
	}

	pre, post := watch.PreMetrics, *watch.PostMetrics

	successRateDropPct := (pre.SuccessRate - post.SuccessRate) * 100
	costIncreasePct := percentIncrease(pre.AverageCostUSD, post.AverageCostUSD)
	durationIncreasePct := percentIncrease(float64(pre.AverageDurationMs), float64(post.AverageDurationMs))

	// Severity is the max raw percentage-point/percentage magnitude across
	// the three signals, not normalized against their thresholds - it
	// reports how bad the regression is, independent of how sensitive the
	// configured thresholds happen to be.
	severity := maxf(maxf(successRateDropPct, costIncreasePct), durationIncreasePct)

	var crossed bool
	var reasons []string
	if successRateDropPct >= m.cfg.SuccessRateDropPct {
		crossed = crossed || ratio(successRateDropPct, m.cfg.SuccessRateDropPct) >= 1+hysteresisMarginPct/100
		reasons = append(reasons, fmt.Sprintf("success rate dropped %.1f points", successRateDropPct))
	}
	if costIncreasePct >= m.cfg.CostIncreasePct {
		crossed = crossed || ratio(costIncreasePct, m.cfg.CostIncreasePct) >= 1+hysteresisMarginPct/100
		reasons = append(reasons, fmt.Sprintf("average cost rose %.1f%%", costIncreasePct))
	}
	if durationIncreasePct >= m.cfg.DurationIncreasePct {
		crossed = crossed || ratio(durationIncreasePct, m.cfg.DurationIncreasePct) >= 1+hysteresisMarginPct/100
		reasons = append(reasons, fmt.Sprintf("average duration rose %.1f%%", durationIncreasePct))
	}

	v.Severity = severity
	if len(reasons) == 0 {
		v.Recommendation = RecommendIgnore
		v.Reason = "no threshold crossed"
		return v
	}

	// A crossing within the hysteresis margin still surfaces as a reason but
	// doesn't yet recommend rollback - it needs to clear the threshold by a
	// visible margin so a metric hovering near the line doesn't flap.
	if !crossed {
		v.Recommendation = RecommendIgnore
		v.Reason = "threshold crossed within hysteresis margin: " + joinReasons(reasons)
		return v
	}

	v.Recommendation = RecommendRollback
	v.Reason = joinReasons(reasons)
	return v
}

// ratio expresses how far value has cleared threshold, as a multiple of
// threshold (1.0 == exactly at threshold); used only for the hysteresis
// crossing check, never for Severity.
func ratio(value, threshold float64) float64 {
	return value / max1(threshold)
}

// EvaluateAll sweeps every application still in the watching state (those
// without post-metrics yield insufficient-data verdicts) and evaluates them
// concurrently, bounded by maxConcurrentEvaluations.
func (m *Monitor) EvaluateAll(ctx context.Context) ([]*Verdict, error) {
	watching := m.store.ListWatching()

	eg, _ := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrentEvaluations)

	verdicts := make([]*Verdict, len(watching))
	for i, w := range watching {
		i, w := i, w
		eg.Go(func() error {
			verdicts[i] = m.evaluateWatch(w)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make([]*Verdict, 0, len(verdicts))
	for _, v := range verdicts {
		if v != nil {
			out = append(out, v)
		}
	}
	return out, nil
}

// ApplyRollback executes the rollback for proposalID through the
// Applicator. Automatic rollbacks are rate-limited by the Governor's
// maxDailyRollbacks cap; manual rollbacks bypass that cap. Both kinds are
// audit-logged via MarkRolledBack.
func (m *Monitor) ApplyRollback(ctx context.Context, proposalID string, auto bool, reason string) error {
	if d := m.governor.AllowRollback(auto); !d.Allowed {
		return governor.Err("selfheal.ApplyRollback", d)
	}

	record, err := m.store.GetRollbackRecord(proposalID)
	if err != nil {
		return evoerrors.Wrapf(evoerrors.KindTargetMissing, "selfheal.ApplyRollback", err, "proposal %s", proposalID)
	}

	triggeredBy := "manual"
	if auto {
		triggeredBy = "auto-heal"
	}
	m.bus.Emit(evotypes.ApplicationEvent{
		Kind: evotypes.EventRollbackStarted, ProposalID: proposalID, Timestamp: m.now(),
		Detail: map[string]interface{}{"triggeredBy": triggeredBy, "reason": reason},
	})

	if err := m.applicator.Rollback(ctx, record); err != nil {
		return evoerrors.Wrapf(evoerrors.KindInternalAssertion, "selfheal.ApplyRollback", err, "proposal %s", proposalID)
	}

	if err := m.store.MarkRolledBack(proposalID, triggeredBy, reason); err != nil {
		return err
	}
	if err := m.store.UpdateProposalStatus(proposalID, evotypes.StatusRolledBack, nil); err != nil {
		return err
	}
	if err := m.governor.RecordRollback(auto); err != nil {
		logging.SelfHeal("failed to record rollback counter for %s: %v", proposalID, err)
	}
	if err := m.store.UpdateMonitoringStatus(proposalID, evotypes.MonitoringRolledBack); err != nil {
		logging.SelfHeal("failed to update monitoring status for %s: %v", proposalID, err)
	}

	m.bus.Emit(evotypes.ApplicationEvent{
		Kind: evotypes.EventRollbackCompleted, ProposalID: proposalID, Timestamp: m.now(),
		Detail: map[string]interface{}{"triggeredBy": triggeredBy, "reason": reason},
	})
	logging.SelfHeal("rolled back proposal %s (%s): %s", proposalID, triggeredBy, reason)
	return nil
}

func percentIncrease(pre, post float64) float64 {
	if pre <= 0 {
		if post > 0 {
			return 100
		}
		return 0
	}
	return (post - pre) / pre * 100
}

func maxf(a, b float64) float64 {
	if b > a {
		return b
	}
	return a
}

// max1 guards against a zero-configured threshold turning the hysteresis
// ratio into a division by zero.
func max1(v float64) float64 {
	if v < 1 {
		return 1
	}
	return v
}

func joinReasons(reasons []string) string {
	out := reasons[0]
	for _, r := range reasons[1:] {
		out += "; " + r
	}
	return out
}

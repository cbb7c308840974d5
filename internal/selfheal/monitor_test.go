package selfheal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/codenerd-labs/evolution-engine/internal/applicator"
	"github.com/codenerd-labs/evolution-engine/internal/config"
	"github.com/codenerd-labs/evolution-engine/internal/decision"
	"github.com/codenerd-labs/evolution-engine/internal/eventbus"
	"github.com/codenerd-labs/evolution-engine/internal/evotypes"
	"github.com/codenerd-labs/evolution-engine/internal/executor"
	"github.com/codenerd-labs/evolution-engine/internal/fscap"
	"github.com/codenerd-labs/evolution-engine/internal/governor"
	"github.com/codenerd-labs/evolution-engine/internal/store"
)

// applyOneProposal runs a real proposal through the Executor so the store
// ends up with a genuine RollbackRecord and an Applied proposal, the same
// precondition the Self-Healing Monitor expects.
func applyOneProposal(t *testing.T, s *store.Store, app *applicator.Applicator, cfg *config.EngineConfig, id string) {
	t.Helper()
	bus := eventbus.New()
	pol := decision.New(cfg, nil)
	gov := governor.New(s, cfg.DailyLimit, cfg.SelfHeal.MaxDailyRollbacks)
	ex := executor.New(s, pol, app, bus, gov, cfg, nil)

	p := &evotypes.Proposal{
		ID:       id,
		Category: evotypes.CategoryRuleAdd,
		Status:   evotypes.StatusPending,
		Payload: evotypes.RuleAddPayload{
			ScopeValue: evotypes.ScopeProject,
			TargetPath: "rules/" + id + ".md",
			RuleText:   "x",
		},
	}
	require.NoError(t, s.PutProposal(p))
	result, err := ex.RunOne(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, evotypes.StatusApplied, result.Status)
}

func newTestMonitor(t *testing.T, cfg *config.EngineConfig) (*Monitor, *store.Store, *applicator.Applicator, *eventbus.Bus) {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	fs := fscap.NewMemFS()
	app := applicator.New(fs, cfg, "/ws", nil)
	gov := governor.New(s, cfg.DailyLimit, cfg.SelfHeal.MaxDailyRollbacks)
	bus := eventbus.New()
	mon := New(s, app, gov, bus, &cfg.SelfHeal)
	return mon, s, app, bus
}

func baseSelfHealConfig() *config.EngineConfig {
	cfg := config.DefaultConfig()
	cfg.AutonomyLevel = config.AutonomyAssisted
	cfg.SelfHeal.MinTasksForEvaluation = 3
	cfg.SelfHeal.SuccessRateDropPct = 30
	cfg.SelfHeal.CostIncreasePct = 100
	cfg.SelfHeal.DurationIncreasePct = 100
	return cfg
}

func TestEvaluateIgnoresWithoutPostMetrics(t *testing.T) {
	cfg := baseSelfHealConfig()
	mon, s, app, _ := newTestMonitor(t, cfg)

	applyOneProposal(t, s, app, cfg, "p1")
	require.NoError(t, mon.WatchApplication("p1", []string{"rules/p1.md"}, evotypes.MetricsSnapshot{SuccessRate: 0.9, SampleSize: 10}))

	verdict, err := mon.Evaluate("p1")
	require.NoError(t, err)
	require.Equal(t, RecommendInsufficientData, verdict.Recommendation)
}

func TestEvaluateRecommendsRollbackOnSteepSuccessRateDrop(t *testing.T) {
	cfg := baseSelfHealConfig()
	mon, s, app, _ := newTestMonitor(t, cfg)

	applyOneProposal(t, s, app, cfg, "p2")
	require.NoError(t, mon.WatchApplication("p2", []string{"rules/p2.md"}, evotypes.MetricsSnapshot{SuccessRate: 0.95, SampleSize: 20}))
	require.NoError(t, mon.RecordPostMetrics("p2", evotypes.MetricsSnapshot{SuccessRate: 0.40, SampleSize: 20}))

	verdict, err := mon.Evaluate("p2")
	require.NoError(t, err)
	require.Equal(t, RecommendRollback, verdict.Recommendation)
	require.Greater(t, verdict.Severity, 50.0)
}

// S5 — self-heal rollback after degradation. Matches the scenario's
// literal numbers: successRate 0.92 -> 0.60 (drop 32 points), cost and
// duration both roughly doubling, against default 30/100/100 thresholds.
func TestEvaluateSeverityMatchesDegradationScenario(t *testing.T) {
	cfg := baseSelfHealConfig()
	mon, s, app, _ := newTestMonitor(t, cfg)

	applyOneProposal(t, s, app, cfg, "p2b")
	require.NoError(t, mon.WatchApplication("p2b", []string{"rules/p2b.md"}, evotypes.MetricsSnapshot{
		SuccessRate:       0.92,
		AverageCostUSD:    1.0,
		AverageDurationMs: 1000,
		SampleSize:        20,
	}))
	require.NoError(t, mon.RecordPostMetrics("p2b", evotypes.MetricsSnapshot{
		SuccessRate:       0.60,
		AverageCostUSD:    2.0,
		AverageDurationMs: 2400,
		SampleSize:        20,
	}))

	verdict, err := mon.Evaluate("p2b")
	require.NoError(t, err)
	require.Equal(t, RecommendRollback, verdict.Recommendation)
	require.InDelta(t, 140.0, verdict.Severity, 0.01)
	require.Greater(t, verdict.Severity, 50.0)
}

func TestEvaluateIgnoresMinorDrop(t *testing.T) {
	cfg := baseSelfHealConfig()
	mon, s, app, _ := newTestMonitor(t, cfg)

	applyOneProposal(t, s, app, cfg, "p3")
	require.NoError(t, mon.WatchApplication("p3", []string{"rules/p3.md"}, evotypes.MetricsSnapshot{SuccessRate: 0.90, SampleSize: 10}))
	require.NoError(t, mon.RecordPostMetrics("p3", evotypes.MetricsSnapshot{SuccessRate: 0.88, SampleSize: 10}))

	verdict, err := mon.Evaluate("p3")
	require.NoError(t, err)
	require.Equal(t, RecommendIgnore, verdict.Recommendation)
}

func TestApplyRollbackTransitionsProposalAndCountsAutomatic(t *testing.T) {
	cfg := baseSelfHealConfig()
	mon, s, app, bus := newTestMonitor(t, cfg)

	var gotCompleted bool
	bus.Subscribe(func(e evotypes.ApplicationEvent) {
		if e.Kind == evotypes.EventRollbackCompleted {
			gotCompleted = true
		}
	})

	applyOneProposal(t, s, app, cfg, "p4")
	require.NoError(t, mon.WatchApplication("p4", []string{"rules/p4.md"}, evotypes.MetricsSnapshot{SuccessRate: 0.95, SampleSize: 20}))

	require.NoError(t, mon.ApplyRollback(context.Background(), "p4", true, "degradation detected"))
	require.True(t, gotCompleted)

	got, err := s.GetProposal("p4")
	require.NoError(t, err)
	require.Equal(t, evotypes.StatusRolledBack, got.Status)

	record, err := s.GetRollbackRecord("p4")
	require.NoError(t, err)
	require.True(t, record.RolledBack)
	require.Equal(t, "auto-heal", record.RollbackTriggeredBy)

	watch, err := s.GetMonitoredApplication("p4")
	require.NoError(t, err)
	require.Equal(t, evotypes.MonitoringRolledBack, watch.Status)
}

func TestApplyRollbackRespectsAutomaticDailyCap(t *testing.T) {
	cfg := baseSelfHealConfig()
	cfg.SelfHeal.MaxDailyRollbacks = 1
	mon, s, app, _ := newTestMonitor(t, cfg)

	applyOneProposal(t, s, app, cfg, "p5")
	applyOneProposal(t, s, app, cfg, "p6")
	require.NoError(t, mon.WatchApplication("p5", nil, evotypes.MetricsSnapshot{SuccessRate: 0.9, SampleSize: 5}))
	require.NoError(t, mon.WatchApplication("p6", nil, evotypes.MetricsSnapshot{SuccessRate: 0.9, SampleSize: 5}))

	require.NoError(t, mon.ApplyRollback(context.Background(), "p5", true, "first auto rollback"))
	err := mon.ApplyRollback(context.Background(), "p6", true, "second auto rollback")
	require.Error(t, err, "second automatic rollback this day should be refused by the governor")

	// A manual rollback always bypasses the automatic cap.
	require.NoError(t, mon.ApplyRollback(context.Background(), "p6", false, "operator requested"))
}

func TestEvaluateAllSweepsConcurrently(t *testing.T) {
	cfg := baseSelfHealConfig()
	mon, s, app, _ := newTestMonitor(t, cfg)

	for _, id := range []string{"a", "b", "c"} {
		applyOneProposal(t, s, app, cfg, id)
		require.NoError(t, mon.WatchApplication(id, nil, evotypes.MetricsSnapshot{SuccessRate: 0.9, SampleSize: 10}))
	}
	require.NoError(t, mon.RecordPostMetrics("a", evotypes.MetricsSnapshot{SuccessRate: 0.1, SampleSize: 10}))
	require.NoError(t, mon.RecordPostMetrics("b", evotypes.MetricsSnapshot{SuccessRate: 0.88, SampleSize: 10}))
	// "c" has no post-metrics yet.

	verdicts, err := mon.EvaluateAll(context.Background())
	require.NoError(t, err)
	require.Len(t, verdicts, 3)

	byID := make(map[string]*Verdict)
	for _, v := range verdicts {
		byID[v.ProposalID] = v
	}
	require.Equal(t, RecommendRollback, byID["a"].Recommendation)
	require.Equal(t, RecommendIgnore, byID["b"].Recommendation)
	require.Equal(t, RecommendInsufficientData, byID["c"].Recommendation)
}

// TestEvaluateAllLeavesNoGoroutinesRunning guards the errgroup-bounded fan
// out in EvaluateAll: once it returns, none of its worker goroutines should
// still be alive.
func TestEvaluateAllLeavesNoGoroutinesRunning(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := baseSelfHealConfig()
	mon, s, app, _ := newTestMonitor(t, cfg)
	defer s.Close() // runs before the leak check, so the store's own goroutines are gone too

	for _, id := range []string{"x", "y"} {
		applyOneProposal(t, s, app, cfg, id)
		require.NoError(t, mon.WatchApplication(id, nil, evotypes.MetricsSnapshot{SuccessRate: 0.9, SampleSize: 10}))
		require.NoError(t, mon.RecordPostMetrics(id, evotypes.MetricsSnapshot{SuccessRate: 0.85, SampleSize: 10}))
	}

	_, err := mon.EvaluateAll(context.Background())
	require.NoError(t, err)
}

package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codenerd-labs/evolution-engine/internal/applicator"
	"github.com/codenerd-labs/evolution-engine/internal/config"
	"github.com/codenerd-labs/evolution-engine/internal/decision"
	"github.com/codenerd-labs/evolution-engine/internal/eventbus"
	"github.com/codenerd-labs/evolution-engine/internal/evotypes"
	"github.com/codenerd-labs/evolution-engine/internal/fscap"
	"github.com/codenerd-labs/evolution-engine/internal/governor"
	"github.com/codenerd-labs/evolution-engine/internal/store"
)

func newHarness(t *testing.T, cfg *config.EngineConfig) (*Executor, *store.Store, *eventbus.Bus) {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	fs := fscap.NewMemFS()
	app := applicator.New(fs, cfg, "/ws", nil)
	pol := decision.New(cfg, nil)
	gov := governor.New(s, cfg.DailyLimit, cfg.SelfHeal.MaxDailyRollbacks)
	bus := eventbus.New()

	return New(s, pol, app, bus, gov, cfg, nil), s, bus
}

func ruleAddProposal(id string) *evotypes.Proposal {
	return &evotypes.Proposal{
		ID:       id,
		Category: evotypes.CategoryRuleAdd,
		Status:   evotypes.StatusPending,
		Payload: evotypes.RuleAddPayload{
			ScopeValue: evotypes.ScopeProject,
			TargetPath: "rules/x.md",
			RuleText:   "prefer early returns",
		},
	}
}

// S1 — low-risk auto-apply at autonomy level 1.
func TestRunOneLowRiskAutoApplies(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AutonomyLevel = config.AutonomyAssisted
	cfg.MinConfidence = 0.5
	cfg.RollbackOnFailure = true
	cfg.CreateBackups = false

	ex, s, bus := newHarness(t, cfg)

	var completed []evotypes.ApplicationEvent
	bus.Subscribe(func(e evotypes.ApplicationEvent) { completed = append(completed, e) })

	p := ruleAddProposal("s1")
	require.NoError(t, s.PutProposal(p))

	result, err := ex.RunOne(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, evotypes.RiskLow, result.Assessment.RiskLevel)
	require.Equal(t, evotypes.DecisionApprove, result.Decision.Outcome)
	require.Equal(t, evotypes.StatusApplied, result.Status)

	snap := ex.Snapshot()
	require.Equal(t, 1, snap.SuccessesToday)
	require.NotEmpty(t, completed)

	got, err := s.GetProposal(p.ID)
	require.NoError(t, err)
	require.Equal(t, evotypes.StatusApplied, got.Status)
	require.NotEmpty(t, got.RollbackRecordID)
}

// S2 — medium-risk proposal with no council oracle escalates.
func TestRunOneMediumRiskNoCouncilEscalates(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AutonomyLevel = config.AutonomyAuto
	cfg.MinConfidence = 0.5
	cfg.RequireCouncil = true

	ex, s, _ := newHarness(t, cfg)

	p := &evotypes.Proposal{
		ID:       "s2",
		Category: evotypes.CategoryConfigUpdate,
		Status:   evotypes.StatusPending,
		Payload: evotypes.ConfigUpdatePayload{
			ScopeValue:  evotypes.ScopeGlobal,
			SettingsKey: "k",
			SettingsTo:  "v",
		},
	}
	require.NoError(t, s.PutProposal(p))

	result, err := ex.RunOne(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, evotypes.DecisionEscalate, result.Decision.Outcome)
	require.Equal(t, evotypes.StatusPending, result.Status)

	got, err := s.GetProposal(p.ID)
	require.NoError(t, err)
	require.Equal(t, evotypes.StatusPending, got.Status, "escalated proposals stay pending")
}

// S3 — daily execution limit.
func TestRunBatchStopsAtDailyLimit(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AutonomyLevel = config.AutonomyAssisted
	cfg.MinConfidence = 0.5
	cfg.DailyLimit = 1

	ex, s, _ := newHarness(t, cfg)

	p1 := ruleAddProposal("a")
	p2 := ruleAddProposal("b")
	p2.Payload = evotypes.RuleAddPayload{ScopeValue: evotypes.ScopeProject, TargetPath: "rules/y.md", RuleText: "x"}
	require.NoError(t, s.PutProposal(p1))
	require.NoError(t, s.PutProposal(p2))

	summary, err := ex.RunBatch(context.Background(), []*evotypes.Proposal{p1, p2})
	require.NoError(t, err)
	require.Equal(t, 1, summary.SuccessCount)

	got2, err := s.GetProposal(p2.ID)
	require.NoError(t, err)
	require.Equal(t, evotypes.StatusPending, got2.Status, "second proposal never ran: daily limit hit after the first")
}

func TestRunOneRejectedTransitionsToRejected(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.CustomRules = []config.CustomRule{
		{Name: "reject-skills", Priority: 1, AllowedCategories: []evotypes.ProposalCategory{evotypes.CategorySkillCreation}, Action: evotypes.DecisionReject},
	}

	ex, s, _ := newHarness(t, cfg)
	p := &evotypes.Proposal{
		ID:       "rej-1",
		Category: evotypes.CategorySkillCreation,
		Status:   evotypes.StatusPending,
		Payload: evotypes.SkillCreationPayload{
			ScopeValue: evotypes.ScopeProject, ScopeDir: "skills", SkillName: "x",
			MetadataDescriptor: "{}", ImplementationBody: "package main",
		},
	}
	require.NoError(t, s.PutProposal(p))

	result, err := ex.RunOne(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, evotypes.StatusRejected, result.Status)
}

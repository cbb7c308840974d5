package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codenerd-labs/evolution-engine/internal/config"
	"github.com/codenerd-labs/evolution-engine/internal/evotypes"
)

func TestOpenWiresEveryComponentAndAppliesAProposal(t *testing.T) {
	dir := t.TempDir()

	e, err := Open(dir, "", nil, nil)
	require.NoError(t, err)
	defer e.Close()

	require.NotNil(t, e.Store)
	require.NotNil(t, e.Bus)
	require.NotNil(t, e.Governor)
	require.NotNil(t, e.Policy)
	require.NotNil(t, e.Applicator)
	require.NotNil(t, e.Executor)
	require.NotNil(t, e.Scheduler)
	require.NotNil(t, e.SelfHeal)

	// Default config is fully manual (every proposal defers to a human);
	// loosen it so a low-risk rule-add auto-applies for this round trip.
	e.Config.AutonomyLevel = config.AutonomyAssisted

	p := &evotypes.Proposal{
		ID:       "p1",
		Category: evotypes.CategoryRuleAdd,
		Status:   evotypes.StatusPending,
		Payload: evotypes.RuleAddPayload{
			ScopeValue: evotypes.ScopeProject,
			TargetPath: "rules/always-test.md",
			RuleText:   "always write a test",
		},
	}
	require.NoError(t, e.Store.PutProposal(p))

	result, err := e.Apply(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, evotypes.StatusApplied, result.Status)

	status := e.Status()
	require.Equal(t, 1, status.Executor.ExecutionsToday)
	require.Equal(t, 1, status.Executor.SuccessesToday)
	require.Equal(t, 0, status.PendingCount)

	open := e.OpenPaths()
	require.NotNil(t, open.LatestApplicationEvent)
	require.Equal(t, "p1", open.LatestApplicationEvent.ProposalID)
}

func TestOpenDefaultsConfigWhenNoFileExists(t *testing.T) {
	dir := t.TempDir()

	e, err := Open(dir, dir+"/does-not-exist.yaml", nil, nil)
	require.NoError(t, err)
	defer e.Close()

	require.True(t, e.Config.Enabled)
	require.Equal(t, 20, e.Config.DailyLimit)
}

func TestStartStopIsIdempotentThroughTheEngine(t *testing.T) {
	dir := t.TempDir()

	e, err := Open(dir, "", nil, nil)
	require.NoError(t, err)
	defer e.Close()

	e.Start()
	e.Start()
	e.Stop()
	e.Stop()
}

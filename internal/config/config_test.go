package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codenerd-labs/evolution-engine/internal/evotypes"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	cfg := DefaultConfig()
	cfg.AutonomyLevel = AutonomyAuto
	cfg.BatchSize = 7
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, AutonomyAuto, loaded.AutonomyLevel)
	require.Equal(t, 7, loaded.BatchSize)
}

func TestValidateRejectsBadAutonomyLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutonomyLevel = 5
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsBadPriorityOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PriorityOrder = "alphabetical"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsBadCustomRuleAction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CustomRules = []CustomRule{{Name: "bogus", Action: "maybe"}}
	require.Error(t, cfg.Validate())
}

func TestSortedCustomRulesOrdersByPriorityStable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CustomRules = []CustomRule{
		{Name: "c", Priority: 2, Action: evotypes.DecisionApprove},
		{Name: "a", Priority: 1, Action: evotypes.DecisionDefer},
		{Name: "b", Priority: 1, Action: evotypes.DecisionReject},
	}
	sorted := cfg.SortedCustomRules()
	require.Equal(t, []string{"a", "b", "c"}, []string{sorted[0].Name, sorted[1].Name, sorted[2].Name})
}

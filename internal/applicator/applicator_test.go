package applicator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codenerd-labs/evolution-engine/internal/config"
	"github.com/codenerd-labs/evolution-engine/internal/evotypes"
	"github.com/codenerd-labs/evolution-engine/internal/fscap"
)

func testConfig() *config.EngineConfig {
	cfg := config.DefaultConfig()
	cfg.CreateBackups = false
	cfg.RollbackOnFailure = true
	cfg.ApplicationTimeoutMs = 0
	return cfg
}

func TestApplyRuleAddCreatesTargetAndAppendsBlock(t *testing.T) {
	fs := fscap.NewMemFS()
	a := New(fs, testConfig(), "/ws", nil)

	p := &evotypes.Proposal{
		ID:       "p1",
		Category: evotypes.CategoryRuleAdd,
		Payload: evotypes.RuleAddPayload{
			ScopeValue: evotypes.ScopeProject,
			TargetPath: "rules/style.md",
			RuleText:   "prefer early returns",
		},
	}

	res, err := a.Apply(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, 1, res.AppliedCount)
	require.Equal(t, 0, res.FailedCount)
	require.NotNil(t, res.RollbackRecord)
	require.Len(t, res.RollbackRecord.Inverse, 1)
	require.Equal(t, "remove-file", res.RollbackRecord.Inverse[0].Kind, "target didn't exist before, inverse removes it")

	data, exists, err := fs.ReadFile("/ws/rules/style.md")
	require.NoError(t, err)
	require.True(t, exists)
	require.Contains(t, string(data), "prefer early returns")
}

func TestApplyThenRollbackRestoresPriorContent(t *testing.T) {
	fs := fscap.NewMemFS()
	require.NoError(t, fs.WriteFile("/ws/rules/style.md", []byte("original rules\n")))

	a := New(fs, testConfig(), "/ws", nil)
	p := &evotypes.Proposal{
		ID:       "p2",
		Category: evotypes.CategoryRuleAdd,
		Payload: evotypes.RuleAddPayload{
			ScopeValue: evotypes.ScopeProject,
			TargetPath: "rules/style.md",
			RuleText:   "new rule",
		},
	}

	res, err := a.Apply(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, 1, res.AppliedCount)

	mutated, _, _ := fs.ReadFile("/ws/rules/style.md")
	require.Contains(t, string(mutated), "new rule")

	require.NoError(t, a.Rollback(context.Background(), res.RollbackRecord))

	restored, exists, err := fs.ReadFile("/ws/rules/style.md")
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, "original rules\n", string(restored))
}

func TestModeInstructionUpsertsEntry(t *testing.T) {
	fs := fscap.NewMemFS()
	a := New(fs, testConfig(), "/ws", nil)

	p := &evotypes.Proposal{
		ID:       "p3",
		Category: evotypes.CategoryModeInstruction,
		Payload: evotypes.ModeInstructionPayload{
			ScopeValue:      evotypes.ScopeProject,
			ModesTarget:     "modes.json",
			ModeSlug:        "reviewer",
			InstructionText: "be terse",
		},
	}

	res, err := a.Apply(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, 1, res.AppliedCount)

	data, exists, _ := fs.ReadFile("/ws/modes.json")
	require.True(t, exists)
	require.Contains(t, string(data), "be terse")
	require.Contains(t, string(data), "reviewer")
}

func TestPromptRefinementReducesToModeInstruction(t *testing.T) {
	fs := fscap.NewMemFS()
	a := New(fs, testConfig(), "/ws", nil)

	p := &evotypes.Proposal{
		ID:       "p4",
		Category: evotypes.CategoryPromptRefinement,
		Payload: evotypes.PromptRefinementPayload{
			ScopeValue:     evotypes.ScopeProject,
			ModesTarget:    "modes.json",
			ModeSlug:       "coder",
			RefinementText: "prefer composition",
		},
	}

	res, err := a.Apply(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, 1, res.AppliedCount)
	data, _, _ := fs.ReadFile("/ws/modes.json")
	require.Contains(t, string(data), "prefer composition")
}

func TestSkillCreationWritesTwoArtifacts(t *testing.T) {
	fs := fscap.NewMemFS()
	a := New(fs, testConfig(), "/ws", nil)

	p := &evotypes.Proposal{
		ID:       "p5",
		Category: evotypes.CategorySkillCreation,
		Payload: evotypes.SkillCreationPayload{
			ScopeValue:          evotypes.ScopeProject,
			ScopeDir:            "skills",
			SkillName:           "lint-fixer",
			MetadataDescriptor:  `{"name":"lint-fixer"}`,
			ImplementationBody:  "package main",
		},
	}

	res, err := a.Apply(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, 2, res.AppliedCount)

	meta, exists, _ := fs.ReadFile("/ws/skills/lint-fixer.meta")
	require.True(t, exists)
	require.Contains(t, string(meta), "lint-fixer")

	impl, exists, _ := fs.ReadFile("/ws/skills/lint-fixer.impl")
	require.True(t, exists)
	require.Equal(t, "package main", string(impl))
}

// fakeSink records Apply/Revert calls for config-update proposals.
type fakeSink struct {
	applied []evotypes.ConfigUpdatePayload
	reverted []evotypes.ConfigUpdatePayload
}

func (f *fakeSink) Apply(_ context.Context, p evotypes.ConfigUpdatePayload) error {
	f.applied = append(f.applied, p)
	return nil
}

func (f *fakeSink) Revert(_ context.Context, p evotypes.ConfigUpdatePayload) error {
	f.reverted = append(f.reverted, p)
	return nil
}

func TestConfigUpdateDelegatesToSinkAndRecordsOnly(t *testing.T) {
	fs := fscap.NewMemFS()
	sink := &fakeSink{}
	a := New(fs, testConfig(), "/ws", sink)

	p := &evotypes.Proposal{
		ID:       "p6",
		Category: evotypes.CategoryConfigUpdate,
		Payload: evotypes.ConfigUpdatePayload{
			ScopeValue:   evotypes.ScopeGlobal,
			SettingsKey:  "max_tokens",
			SettingsFrom: 4096,
			SettingsTo:   8192,
		},
	}

	res, err := a.Apply(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, 1, res.AppliedCount)
	require.Len(t, sink.applied, 1)
	require.Equal(t, "max_tokens", sink.applied[0].SettingsKey)

	require.False(t, fs.Exists("max_tokens"), "config-update never touches the filesystem")

	require.NoError(t, a.Rollback(context.Background(), res.RollbackRecord))
	require.Len(t, sink.reverted, 1)
}

// failingFS wraps a MemFS and fails writes to a specific path, used to
// exercise the partial-failure rollback path.
type failingFS struct {
	*fscap.MemFS
	failPath string
}

func (f *failingFS) WriteFile(path string, data []byte) error {
	if path == f.failPath {
		return errors.New("simulated disk full")
	}
	return f.MemFS.WriteFile(path, data)
}

func TestPartialFailureTriggersRollbackOfSuccesses(t *testing.T) {
	base := fscap.NewMemFS()
	require.NoError(t, base.WriteFile("/ws/skills/a.meta", []byte("old-meta")))
	require.NoError(t, base.WriteFile("/ws/skills/a.impl", []byte("old-impl")))
	fs := &failingFS{MemFS: base, failPath: "/ws/skills/a.impl"}

	cfg := testConfig()
	a := New(fs, cfg, "/ws", nil)

	p := &evotypes.Proposal{
		ID:       "p7",
		Category: evotypes.CategorySkillCreation,
		Payload: evotypes.SkillCreationPayload{
			ScopeValue:         evotypes.ScopeProject,
			ScopeDir:           "skills",
			SkillName:          "a",
			MetadataDescriptor: "new-meta",
			ImplementationBody: "new-impl",
		},
	}

	res, err := a.Apply(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, 1, res.AppliedCount)
	require.Equal(t, 1, res.FailedCount)
	require.True(t, res.RolledBackNow)

	meta, _, _ := fs.ReadFile("/ws/skills/a.meta")
	require.Equal(t, "old-meta", string(meta), "the successful mutation was reverted")
}

func TestBackupSnapshotsResolveUnderWorkspaceAndLatestBackupDirReportsNewest(t *testing.T) {
	fs := fscap.NewMemFS()
	require.NoError(t, fs.WriteFile("/ws/rules/style.md", []byte("original rules\n")))

	cfg := testConfig()
	cfg.CreateBackups = true
	cfg.BackupDir = "backups"
	cfg.MaxBackups = 10
	a := New(fs, cfg, "/ws", nil)

	p := &evotypes.Proposal{
		ID:       "p9",
		Category: evotypes.CategoryRuleAdd,
		Payload: evotypes.RuleAddPayload{
			ScopeValue: evotypes.ScopeProject,
			TargetPath: "rules/style.md",
			RuleText:   "new rule",
		},
	}

	res, err := a.Apply(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, 1, res.AppliedCount)

	latest := a.LatestBackupDir()
	require.NotEmpty(t, latest, "a pre-existing target should have been snapshotted before mutation")
	require.Contains(t, latest, "/ws/.evolution/backups/backup-")

	backedUp, exists, err := fs.ReadFile(latest + "/file-0")
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, "original rules\n", string(backedUp), "backup must capture the pre-mutation content from the resolved workspace path")
}

func TestApplicationTimeoutFailsRemainingOps(t *testing.T) {
	fs := fscap.NewMemFS()
	cfg := testConfig()
	cfg.ApplicationTimeoutMs = 1
	a := New(fs, cfg, "/ws", nil)
	a.now = time.Now

	p := &evotypes.Proposal{
		ID:       "p8",
		Category: evotypes.CategoryRuleAdd,
		Payload: evotypes.RuleAddPayload{
			ScopeValue: evotypes.ScopeProject,
			TargetPath: "rules/late.md",
			RuleText:   "x",
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // already-cancelled context simulates a blown timeout
	res, err := a.Apply(ctx, p)
	require.NoError(t, err)
	require.Equal(t, 1, res.FailedCount)
	require.Equal(t, "timeout", res.FailedChanges[0].Error)
}

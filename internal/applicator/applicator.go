// Package applicator implements the Change Applicator: it turns an
// approved Proposal's payload into an ordered list of forward mutations
// against external targets, tracks which succeeded, and - on partial
// failure with rollback-on-failure configured - reverses the ones that did
// before returning. Translation dispatch is a simple switch keyed on
// proposal category, one forward-op builder per category.
package applicator

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/codenerd-labs/evolution-engine/internal/config"
	"github.com/codenerd-labs/evolution-engine/internal/evoerrors"
	"github.com/codenerd-labs/evolution-engine/internal/evotypes"
	"github.com/codenerd-labs/evolution-engine/internal/fscap"
	"github.com/codenerd-labs/evolution-engine/internal/logging"
)

// SettingsSink is the external settings collaborator a config-update
// proposal is wired to. The Applicator never mutates settings in place
//; it calls Apply/Revert on this interface
// and otherwise just records what happened.
type SettingsSink interface {
	Apply(ctx context.Context, p evotypes.ConfigUpdatePayload) error
	Revert(ctx context.Context, p evotypes.ConfigUpdatePayload) error
}

// NoopSettingsSink is used when no external settings collaborator is wired
// up; config-update proposals are still recorded and reversible, they just
// have nothing live to apply.
type NoopSettingsSink struct{}

func (NoopSettingsSink) Apply(context.Context, evotypes.ConfigUpdatePayload) error  { return nil }
func (NoopSettingsSink) Revert(context.Context, evotypes.ConfigUpdatePayload) error { return nil }

// AppliedChange records one forward mutation that succeeded.
type AppliedChange struct {
	TargetPath string `json:"targetPath"`
	Kind       string `json:"kind"`
}

// FailedChange records one forward mutation that failed.
type FailedChange struct {
	TargetPath string `json:"targetPath"`
	Kind       string `json:"kind"`
	Error      string `json:"error"`
}

// Result is the Applicator's return value for one Apply call.
type Result struct {
	ApplicationID   string
	AppliedCount    int
	FailedCount     int
	AppliedChanges  []AppliedChange
	FailedChanges   []FailedChange
	RollbackRecord  *evotypes.RollbackRecord
	RolledBackNow   bool // true if a partial-failure rollback already ran
}

// Applicator executes proposal payload translations against fs, optionally
// snapshotting well-known targets into timestamped backups first and
// reversing already-applied changes on partial failure.
type Applicator struct {
	fs        fscap.FileSystem
	cfg       *config.EngineConfig
	workspace string
	sink      SettingsSink
	now       func() time.Time
}

// New builds an Applicator. sink may be nil (uses NoopSettingsSink).
func New(fs fscap.FileSystem, cfg *config.EngineConfig, workspace string, sink SettingsSink) *Applicator {
	if sink == nil {
		sink = NoopSettingsSink{}
	}
	return &Applicator{fs: fs, cfg: cfg, workspace: workspace, sink: sink, now: time.Now}
}

// Apply translates p's payload into forward ops, attempts all of them
// (even after one fails - failures are expected alongside successes in
// the same batch, not an early abort), snapshots backups
// first if configured, and reverses successes when any op failed and
// rollback-on-failure is set.
func (a *Applicator) Apply(ctx context.Context, p *evotypes.Proposal) (*Result, error) {
	if a.cfg.ApplicationTimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(a.cfg.ApplicationTimeoutMs)*time.Millisecond)
		defer cancel()
	}

	ops, err := translate(p)
	if err != nil {
		return nil, evoerrors.Wrapf(evoerrors.KindTargetMissing, "applicator.Apply", err, "proposal %s", p.ID)
	}

	if a.cfg.CreateBackups {
		if err := a.snapshotTargets(ops); err != nil {
			logging.Applicator("backup snapshot failed for proposal %s, continuing without it: %v", p.ID, err)
		}
	}

	res := &Result{ApplicationID: uuid.NewString()}
	var inverse []evotypes.InverseOperation

	for _, op := range ops {
		select {
		case <-ctx.Done():
			res.FailedChanges = append(res.FailedChanges, FailedChange{TargetPath: op.TargetPath, Kind: op.Kind, Error: "timeout"})
			res.FailedCount++
			continue
		default:
		}

		inv, err := a.applyOne(ctx, op)
		if err != nil {
			logging.Applicator("mutation failed for proposal %s target %s: %v", p.ID, op.TargetPath, err)
			res.FailedChanges = append(res.FailedChanges, FailedChange{TargetPath: op.TargetPath, Kind: op.Kind, Error: err.Error()})
			res.FailedCount++
			continue
		}
		res.AppliedChanges = append(res.AppliedChanges, AppliedChange{TargetPath: op.TargetPath, Kind: op.Kind})
		res.AppliedCount++
		inverse = append(inverse, inv)
	}

	if res.FailedCount > 0 && a.cfg.RollbackOnFailure && len(inverse) > 0 {
		logging.Applicator("proposal %s: %d of %d mutations failed, reverting %d successful change(s)",
			p.ID, res.FailedCount, len(ops), len(inverse))
		if err := a.applyInverses(ctx, inverse); err != nil {
			logging.Applicator("partial-failure rollback itself failed for proposal %s: %v", p.ID, err)
		} else {
			res.RolledBackNow = true
		}
	}

	if res.AppliedCount > 0 {
		res.RollbackRecord = &evotypes.RollbackRecord{
			ID:         uuid.NewString(),
			ProposalID: p.ID,
			Category:   p.Category,
			Inverse:    inverse,
			AppliedAt:  a.now(),
			RolledBack: res.RolledBackNow,
		}
		if res.RolledBackNow {
			now := a.now()
			res.RollbackRecord.RolledBackAt = &now
			res.RollbackRecord.RollbackTriggeredBy = "automatic"
			res.RollbackRecord.RollbackReason = "partial-apply-failure"
		}
	}

	return res, nil
}

// resolve joins a proposal-relative target path onto the workspace root, so
// translate() can keep emitting the plain paths a proposal's payload
// describes (e.g. "rules/style.md") while disk I/O always lands under the
// workspace, the same join backup.go already does for backup directories.
// Absolute paths (test doubles, or an operator-supplied absolute target)
// pass through unchanged.
func (a *Applicator) resolve(path string) string {
	if filepath.IsAbs(path) || a.workspace == "" {
		return path
	}
	return filepath.Join(a.workspace, path)
}

// applyOne performs a single forward op and returns the InverseOperation
// needed to undo it.
func (a *Applicator) applyOne(ctx context.Context, op forwardOp) (evotypes.InverseOperation, error) {
	if !op.IsFileOp {
		if op.ConfigPayload != nil {
			if err := a.sink.Apply(ctx, *op.ConfigPayload); err != nil {
				return evotypes.InverseOperation{}, err
			}
		}
		return evotypes.InverseOperation{
			Kind:       op.InverseKind,
			TargetPath: op.TargetPath,
			PriorValue: op.PriorValueForInverse,
		}, nil
	}

	resolved := a.resolve(op.TargetPath)
	prior, existed, err := a.fs.ReadFile(resolved)
	if err != nil {
		return evotypes.InverseOperation{}, evoerrors.Wrap(evoerrors.KindTargetMissing, "applicator.applyOne", err)
	}

	newContent, err := op.Mutate(prior, existed)
	if err != nil {
		return evotypes.InverseOperation{}, err
	}

	if err := a.fs.WriteFile(resolved, newContent); err != nil {
		return evotypes.InverseOperation{}, err
	}

	if existed {
		return evotypes.InverseOperation{
			Kind:       "restore-file",
			TargetPath: op.TargetPath,
			PriorValue: string(prior),
		}, nil
	}
	return evotypes.InverseOperation{
		Kind:       "remove-file",
		TargetPath: op.TargetPath,
	}, nil
}

// Rollback executes record's inverse operations in reverse application
// order, restoring prior target contents or removing targets that were
// newly created.
func (a *Applicator) Rollback(ctx context.Context, record *evotypes.RollbackRecord) error {
	return a.applyInverses(ctx, record.Inverse)
}

func (a *Applicator) applyInverses(ctx context.Context, inverse []evotypes.InverseOperation) error {
	for i := len(inverse) - 1; i >= 0; i-- {
		if err := a.applyInverse(ctx, inverse[i]); err != nil {
			return fmt.Errorf("inverse %s on %s: %w", inverse[i].Kind, inverse[i].TargetPath, err)
		}
	}
	return nil
}

func (a *Applicator) applyInverse(ctx context.Context, op evotypes.InverseOperation) error {
	switch op.Kind {
	case "restore-file":
		prior, _ := op.PriorValue.(string)
		return a.fs.WriteFile(a.resolve(op.TargetPath), []byte(prior))
	case "remove-file":
		return a.fs.Remove(a.resolve(op.TargetPath))
	case "restore-settings":
		payload := evotypes.ConfigUpdatePayload{SettingsKey: op.TargetPath, SettingsTo: op.PriorValue}
		return a.sink.Revert(ctx, payload)
	default:
		return evoerrors.New(evoerrors.KindInternalAssertion, "applicator.applyInverse", "unknown inverse kind "+op.Kind)
	}
}

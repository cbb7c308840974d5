// Package engine wires every Evolution Engine component into the single
// struct the host CLI drives. The wiring order - store, then the
// collaborators that read it, then the Scheduler that ties them together -
// builds the kernel and stores first and hands them to the orchestrator
// last.
package engine

import (
	"context"
	"time"

	"github.com/codenerd-labs/evolution-engine/internal/applicator"
	"github.com/codenerd-labs/evolution-engine/internal/config"
	"github.com/codenerd-labs/evolution-engine/internal/decision"
	"github.com/codenerd-labs/evolution-engine/internal/eventbus"
	"github.com/codenerd-labs/evolution-engine/internal/evoerrors"
	"github.com/codenerd-labs/evolution-engine/internal/evotypes"
	"github.com/codenerd-labs/evolution-engine/internal/executor"
	"github.com/codenerd-labs/evolution-engine/internal/fscap"
	"github.com/codenerd-labs/evolution-engine/internal/governor"
	"github.com/codenerd-labs/evolution-engine/internal/logging"
	"github.com/codenerd-labs/evolution-engine/internal/risk"
	"github.com/codenerd-labs/evolution-engine/internal/scheduler"
	"github.com/codenerd-labs/evolution-engine/internal/selfheal"
	"github.com/codenerd-labs/evolution-engine/internal/store"
)

// Engine owns one workspace's worth of Evolution Engine state and every
// component that operates on it. It is the thing `cmd/evolution` talks to.
type Engine struct {
	Workspace string
	Config    *config.EngineConfig

	Store      *store.Store
	Bus        *eventbus.Bus
	Governor   *governor.Governor
	Policy     *decision.Policy
	Applicator *applicator.Applicator
	Executor   *executor.Executor
	Scheduler  *scheduler.Scheduler
	SelfHeal   *selfheal.Monitor
}

// Open builds an Engine rooted at workspace, loading (or defaulting)
// EngineConfig from configPath. history and oracle may be nil; a nil
// oracle makes council-gated decisions always escalate.
func Open(workspace, configPath string, history risk.HistoryProvider, oracle decision.CouncilOracle) (*Engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if err := logging.Initialize(workspace, cfg.Logging); err != nil {
		logging.Boot("file logging unavailable, continuing with stderr only: %v", err)
	}

	s, err := store.Open(workspace)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	gov := governor.New(s, cfg.DailyLimit, cfg.SelfHeal.MaxDailyRollbacks)
	pol := decision.New(cfg, oracle)
	app := applicator.New(fscap.NewRealFS(), cfg, workspace, nil)
	ex := executor.New(s, pol, app, bus, gov, cfg, history)
	sched := scheduler.New(s, ex, bus, cfg)
	heal := selfheal.New(s, app, gov, bus, &cfg.SelfHeal)

	e := &Engine{
		Workspace:  workspace,
		Config:     cfg,
		Store:      s,
		Bus:        bus,
		Governor:   gov,
		Policy:     pol,
		Applicator: app,
		Executor:   ex,
		Scheduler:  sched,
		SelfHeal:   heal,
	}
	logging.Boot("engine opened at %s", workspace)
	return e, nil
}

// Close stops the Scheduler if running and releases the State Store.
func (e *Engine) Close() error {
	e.Scheduler.Stop()
	return e.Store.Close()
}

// Start begins the Scheduler's ticker loop.
func (e *Engine) Start() {
	e.Scheduler.Start()
	logging.Boot("scheduler started (interval=%dms)", e.Config.IntervalMs)
}

// Stop halts the Scheduler's ticker loop.
func (e *Engine) Stop() {
	e.Scheduler.Stop()
	logging.Boot("scheduler stopped")
}

// Status is the snapshot behind "evolution:status".
type Status struct {
	SchedulerState scheduler.State
	NextRun        time.Time
	Executor       executor.Snapshot
	Counters       evotypes.Counters
	PendingCount   int
}

// Status reports the Scheduler's state, counters, and next-run time.
func (e *Engine) Status() Status {
	return Status{
		SchedulerState: e.Scheduler.State(),
		NextRun:        e.Scheduler.NextRun(),
		Executor:       e.Executor.Snapshot(),
		Counters:       e.Store.LoadCounters(),
		PendingCount:   len(e.Store.ListPending()),
	}
}

// Apply forces a single-proposal run, equivalent to an Executor entry point.
func (e *Engine) Apply(ctx context.Context, proposalID string) (*executor.OneResult, error) {
	p, err := e.Store.GetProposal(proposalID)
	if err != nil {
		return nil, evoerrors.Wrap(evoerrors.KindTargetMissing, "engine.Apply", err)
	}
	return e.Executor.RunOne(ctx, p)
}

// Rollback requests a rollback through the Self-Healing Monitor.
func (e *Engine) Rollback(ctx context.Context, proposalID string, auto bool, reason string) error {
	return e.SelfHeal.ApplyRollback(ctx, proposalID, auto, reason)
}

// OpenPaths reports the paths "evolution:open" surfaces: the latest
// application event, the latest rollback-log entry, and the latest backup
// directory.
type OpenPaths struct {
	LatestApplicationEvent *evotypes.ApplicationEvent
	LatestRollbackEntry    *evotypes.RollbackRecord
	LatestBackupDir        string
}

// OpenPaths reports the most recent artifacts on disk for operator inspection.
func (e *Engine) OpenPaths() OpenPaths {
	var out OpenPaths

	recent := e.Store.ListRecentApplicationEvents(1)
	if len(recent) > 0 {
		ev := recent[len(recent)-1]
		out.LatestApplicationEvent = &ev
	}

	var latest *evotypes.RollbackRecord
	for _, r := range e.Store.ListRollbackRecords() {
		if latest == nil || r.AppliedAt.After(latest.AppliedAt) {
			latest = r
		}
	}
	out.LatestRollbackEntry = latest

	out.LatestBackupDir = e.Applicator.LatestBackupDir()
	return out
}

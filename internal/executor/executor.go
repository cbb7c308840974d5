// Package executor implements the Autonomous Executor: the single-proposal
// lifecycle (score -> decide -> apply -> record -> emit) used directly by
// operators and by the Scheduler's batch dispatch. Lifecycle shape is a
// mutex-guarded "is this already running" flag plus a thin batch loop
// around the one-item entry point.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codenerd-labs/evolution-engine/internal/applicator"
	"github.com/codenerd-labs/evolution-engine/internal/config"
	"github.com/codenerd-labs/evolution-engine/internal/decision"
	"github.com/codenerd-labs/evolution-engine/internal/eventbus"
	"github.com/codenerd-labs/evolution-engine/internal/evotypes"
	"github.com/codenerd-labs/evolution-engine/internal/governor"
	"github.com/codenerd-labs/evolution-engine/internal/logging"
	"github.com/codenerd-labs/evolution-engine/internal/risk"
	"github.com/codenerd-labs/evolution-engine/internal/store"
)

// HealthStatus buckets the Executor's recent run of executions, consulted
// by the Scheduler to decide whether to auto-pause.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// OneResult is what RunOne produces for a single proposal.
type OneResult struct {
	ProposalID string
	Decision   *evotypes.Decision
	Assessment *evotypes.Assessment
	Status     evotypes.ProposalStatus
	Reason     string
	DurationMs int64
}

// BatchSummary is RunBatch's return value.
type BatchSummary struct {
	SuccessCount   int
	FailureCount   int
	EscalatedCount int
	TotalTimeMs    int64
}

// aggregates are the Executor's own process-local day counters used for
// the health bucket and for Snapshot's CLI status view. The durable, restart-safe
// rate-limit counters live in the Governor/State Store instead - see
// DESIGN.md for why these are not persisted.
type aggregates struct {
	day             string
	executionsToday int
	successesToday  int
	failuresToday   int
	rollbacksToday  int
	totalDurationMs int64
}

// Executor wires together everything a single proposal's lifecycle needs.
type Executor struct {
	store      *store.Store
	policy     *decision.Policy
	applicator *applicator.Applicator
	bus        *eventbus.Bus
	governor   *governor.Governor
	cfg        *config.EngineConfig
	history    risk.HistoryProvider

	mu         sync.Mutex
	processing bool
	agg        aggregates
	now        func() time.Time
}

// New builds an Executor. history may be nil (falls back to neutral
// history, same as the Risk Scorer's own default).
func New(s *store.Store, pol *decision.Policy, app *applicator.Applicator, bus *eventbus.Bus, gov *governor.Governor, cfg *config.EngineConfig, history risk.HistoryProvider) *Executor {
	if history == nil {
		history = risk.NeutralHistory{}
	}
	return &Executor{store: s, policy: pol, applicator: app, bus: bus, governor: gov, cfg: cfg, history: history, now: time.Now}
}

// IsProcessing reports whether an execution is currently in flight - the
// flag the Scheduler gates on.
func (e *Executor) IsProcessing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.processing
}

// Health buckets recent execution behavior into a coarse status.
func (e *Executor) Health() HealthStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.healthLocked()
}

func (e *Executor) healthLocked() HealthStatus {
	e.rolloverLocked()
	successRate := 1.0
	if e.agg.executionsToday > 0 {
		successRate = float64(e.agg.successesToday) / float64(e.agg.executionsToday)
	}
	switch {
	case e.agg.failuresToday >= 5 || successRate < 0.5:
		return HealthUnhealthy
	case e.agg.failuresToday >= 2 || successRate < 0.8:
		return HealthDegraded
	default:
		return HealthHealthy
	}
}

// rolloverLocked zeroes the day-local aggregates when the UTC calendar day
// has changed since the last call. Must be
// called with e.mu held.
func (e *Executor) rolloverLocked() {
	today := evotypes.UTCDayString(e.now())
	if e.agg.day != today {
		e.agg = aggregates{day: today}
	}
}

// RunOne executes the full score -> decide -> apply -> record -> emit
// lifecycle for a single proposal.
func (e *Executor) RunOne(ctx context.Context, p *evotypes.Proposal) (*OneResult, error) {
	e.mu.Lock()
	e.processing = true
	e.rolloverLocked()
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.processing = false
		e.mu.Unlock()
	}()

	start := e.now()

	if d := e.governor.AllowApply(); !d.Allowed {
		e.bus.Emit(evotypes.ApplicationEvent{
			Kind:       evotypes.EventExecutionComplete,
			ProposalID: p.ID,
			Timestamp:  e.now(),
			Detail:     map[string]interface{}{"skipped": true, "outcome": "deferred", "reason": d.Reason},
		})
		logging.Executor("proposal %s skipped: %s", p.ID, d.Reason)
		return &OneResult{ProposalID: p.ID, Status: evotypes.StatusPending, Reason: d.Reason}, nil
	}

	e.bus.Emit(evotypes.ApplicationEvent{
		Kind: evotypes.EventExecutionStarted, ProposalID: p.ID, Timestamp: e.now(),
	})

	assessment := risk.Score(p, e.history, e.cfg.MinConfidence)
	dec := e.policy.Decide(ctx, p, assessment)

	result := &OneResult{ProposalID: p.ID, Decision: dec, Assessment: assessment}

	switch dec.Outcome {
	case evotypes.DecisionApprove:
		if err := e.store.UpdateProposalStatus(p.ID, evotypes.StatusApproved, nil); err != nil {
			result.Status = evotypes.StatusFailed
			result.Reason = err.Error()
			break
		}
		e.runApproved(ctx, p, dec, result)
	case evotypes.DecisionEscalate:
		result.Status = evotypes.StatusPending
		result.Reason = dec.Reason
		_ = e.governor.RecordEscalation()
		e.bus.Emit(evotypes.ApplicationEvent{
			Kind: evotypes.EventApprovalRequired, ProposalID: p.ID, Timestamp: e.now(),
			Detail: map[string]interface{}{"outcome": "escalated", "reason": dec.Reason},
		})
	case evotypes.DecisionDefer:
		result.Status = evotypes.StatusPending
		result.Reason = dec.Reason
		e.bus.Emit(evotypes.ApplicationEvent{
			Kind: evotypes.EventApprovalRequired, ProposalID: p.ID, Timestamp: e.now(),
			Detail: map[string]interface{}{"outcome": "deferred", "reason": dec.Reason},
		})
	case evotypes.DecisionReject:
		if err := e.store.UpdateProposalStatus(p.ID, evotypes.StatusRejected, nil); err != nil {
			return result, err
		}
		result.Status = evotypes.StatusRejected
		result.Reason = dec.Reason
	}

	result.DurationMs = e.now().Sub(start).Milliseconds()
	e.updateAggregates(result)
	e.emitFinalEvent(p, result)
	return result, nil
}

func (e *Executor) runApproved(ctx context.Context, p *evotypes.Proposal, dec *evotypes.Decision, result *OneResult) {
	appResult, err := e.applicator.Apply(ctx, p)
	if err != nil {
		result.Status = evotypes.StatusFailed
		result.Reason = err.Error()
		_ = e.store.UpdateProposalStatus(p.ID, evotypes.StatusFailed, func(pr *evotypes.Proposal) { pr.Notes = err.Error() })
		return
	}

	if appResult.FailedCount > 0 {
		reason := applicatorFailureReason(appResult)
		result.Status = evotypes.StatusFailed
		result.Reason = reason
		_ = e.store.UpdateProposalStatus(p.ID, evotypes.StatusFailed, func(pr *evotypes.Proposal) { pr.Notes = reason })
		return
	}

	if appResult.RollbackRecord == nil {
		// No-op application (e.g. a category with nothing to mutate); treat
		// as a structural failure rather than a silent no-op "success".
		_ = e.store.UpdateProposalStatus(p.ID, evotypes.StatusFailed, func(pr *evotypes.Proposal) { pr.Notes = "no changes were applied" })
		result.Status = evotypes.StatusFailed
		result.Reason = "no changes were applied"
		return
	}

	if err := e.store.PutRollbackRecord(appResult.RollbackRecord); err != nil {
		result.Status = evotypes.StatusFailed
		result.Reason = err.Error()
		return
	}
	if err := e.store.UpdateProposalStatus(p.ID, evotypes.StatusApplied, func(pr *evotypes.Proposal) {
		pr.RollbackRecordID = appResult.RollbackRecord.ID
	}); err != nil {
		result.Status = evotypes.StatusFailed
		result.Reason = err.Error()
		return
	}
	_ = e.governor.RecordApply()
	result.Status = evotypes.StatusApplied
	result.Reason = dec.Reason
}

func applicatorFailureReason(r *applicator.Result) string {
	if r.RolledBackNow {
		return fmt.Sprintf("%d of %d changes applied and reverted; proposal marked failed", r.AppliedCount, r.AppliedCount+r.FailedCount)
	}
	return "one or more mutations failed; proposal marked failed"
}

func (e *Executor) emitFinalEvent(p *evotypes.Proposal, result *OneResult) {
	kind := evotypes.EventExecutionComplete
	if result.Status == evotypes.StatusFailed {
		kind = evotypes.EventExecutionFailed
	}
	e.bus.Emit(evotypes.ApplicationEvent{
		Kind: kind, ProposalID: p.ID, Timestamp: e.now(),
		Detail: map[string]interface{}{"status": string(result.Status), "reason": result.Reason, "durationMs": result.DurationMs},
	})
	if err := e.store.RecordApplicationEvent(evotypes.ApplicationEvent{
		Kind: kind, ProposalID: p.ID, Timestamp: e.now(),
		Detail: map[string]interface{}{"category": string(p.Category), "status": string(result.Status)},
	}); err != nil {
		logging.Executor("failed to record terminal application event for %s: %v", p.ID, err)
	}
}

func (e *Executor) updateAggregates(result *OneResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rolloverLocked()
	e.agg.executionsToday++
	e.agg.totalDurationMs += result.DurationMs
	switch result.Status {
	case evotypes.StatusApplied:
		e.agg.successesToday++
	case evotypes.StatusFailed, evotypes.StatusRejected:
		e.agg.failuresToday++
	}
}

// Snapshot reports the Executor's current day-local aggregates for CLI
// status output.
type Snapshot struct {
	ExecutionsToday   int
	SuccessesToday    int
	FailuresToday     int
	RemainingToday    int
	AvgExecutionTimeMs int64
	SuccessRate       float64
	Health            HealthStatus
}

func (e *Executor) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rolloverLocked()

	avg := int64(0)
	successRate := 1.0
	if e.agg.executionsToday > 0 {
		avg = e.agg.totalDurationMs / int64(e.agg.executionsToday)
		successRate = float64(e.agg.successesToday) / float64(e.agg.executionsToday)
	}
	remaining := e.cfg.DailyLimit - e.agg.executionsToday
	if remaining < 0 {
		remaining = 0
	}
	return Snapshot{
		ExecutionsToday:    e.agg.executionsToday,
		SuccessesToday:     e.agg.successesToday,
		FailuresToday:      e.agg.failuresToday,
		RemainingToday:     remaining,
		AvgExecutionTimeMs: avg,
		SuccessRate:        successRate,
		Health:             e.healthLocked(),
	}
}

// RunBatch runs proposals through RunOne in priority order, stopping early
// once the daily budget is exhausted. Dispatch goes through an errgroup
// capped at one live call - the Executor only ever processes one proposal
// at a time (IsProcessing gates the Scheduler), but routing the loop
// through errgroup rather than a bare for-loop keeps the concurrency bound
// configurable in one place and gives the dispatch idiomatic cancellation
// propagation via the group's context.
func (e *Executor) RunBatch(ctx context.Context, proposals []*evotypes.Proposal) (BatchSummary, error) {
	start := e.now()
	var summary BatchSummary
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(1)

	for _, p := range proposals {
		if d := e.governor.AllowApply(); !d.Allowed {
			logging.Executor("batch stopping early: %s", d.Reason)
			break
		}
		p := p
		g.Go(func() error {
			result, err := e.RunOne(gctx, p)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.FailureCount++
				return nil
			}
			switch result.Status {
			case evotypes.StatusApplied:
				summary.SuccessCount++
			case evotypes.StatusFailed, evotypes.StatusRejected:
				summary.FailureCount++
			case evotypes.StatusPending:
				if result.Decision != nil && result.Decision.Outcome == evotypes.DecisionEscalate {
					summary.EscalatedCount++
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	summary.TotalTimeMs = e.now().Sub(start).Milliseconds()
	return summary, nil
}

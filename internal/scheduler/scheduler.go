// Package scheduler implements the Scheduler: a ticker-driven loop that
// periodically batches pending proposals to the Executor. The
// start/stop/pause lifecycle is a stop/done-channel goroutine guarded by a
// small state machine, generalized from "one long-running job" to "one
// recurring tick."
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/codenerd-labs/evolution-engine/internal/config"
	"github.com/codenerd-labs/evolution-engine/internal/eventbus"
	"github.com/codenerd-labs/evolution-engine/internal/evotypes"
	"github.com/codenerd-labs/evolution-engine/internal/executor"
	"github.com/codenerd-labs/evolution-engine/internal/logging"
	"github.com/codenerd-labs/evolution-engine/internal/store"
)

// State is one of the Scheduler's four lifecycle states.
type State string

const (
	StateStopped    State = "stopped"
	StateRunning    State = "running"
	StatePaused     State = "paused"
	StateQuietHours State = "quiet-hours"
)

// TickResult reports what a single tick did; Tick and ForceTick return it.
type TickResult struct {
	Skipped    bool
	Reason     string
	State      State
	BatchSize  int
	Escalated  int
	Summary    executor.BatchSummary
	AutoPaused bool
}

// Scheduler periodically asks the State Store for pending proposals and
// dispatches a priority-ordered batch to the Executor.
type Scheduler struct {
	store *store.Store
	exec  *executor.Executor
	bus   *eventbus.Bus
	cfg   *config.EngineConfig
	now   func() time.Time

	mu          sync.Mutex
	state       State
	stop        chan struct{}
	done        chan struct{}
	ticksRun    int
	lastTick    time.Time
	lastSummary executor.BatchSummary
}

// New builds a Scheduler in the stopped state.
func New(s *store.Store, exec *executor.Executor, bus *eventbus.Bus, cfg *config.EngineConfig) *Scheduler {
	return &Scheduler{store: s, exec: exec, bus: bus, cfg: cfg, state: StateStopped, now: time.Now}
}

// Start begins the ticker loop. Idempotent: a second Start on an
// already-running Scheduler is a no-op and does not double-schedule.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	s.stop = stop
	s.done = done
	s.state = StateRunning
	s.mu.Unlock()

	logging.Scheduler("starting: interval=%dms batchSize=%d priority=%s", s.cfg.IntervalMs, s.cfg.BatchSize, s.cfg.PriorityOrder)
	go s.loop(stop, done)
}

// Stop halts the ticker loop and waits (briefly) for the goroutine to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop := s.stop
	done := s.done
	s.stop = nil
	s.done = nil
	s.state = StateStopped
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	if done != nil {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	}
	logging.Scheduler("stopped")
}

// Pause moves a running (or quiet-hours) Scheduler to paused; ticks are
// skipped until Resume. A no-op if already stopped or paused.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning || s.state == StateQuietHours {
		s.state = StatePaused
		logging.Scheduler("paused")
	}
}

// Resume moves a paused Scheduler back to running.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StatePaused {
		s.state = StateRunning
		logging.Scheduler("resumed")
	}
}

// State reports the Scheduler's current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// NextRun estimates the next scheduled tick from the last observed one.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastTick.IsZero() {
		return s.now().Add(time.Duration(s.cfg.IntervalMs) * time.Millisecond)
	}
	return s.lastTick.Add(time.Duration(s.cfg.IntervalMs) * time.Millisecond)
}

func (s *Scheduler) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(time.Duration(s.cfg.IntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Tick(context.Background())
		}
	}
}

// Tick runs one scheduling pass, respecting the state gate and quiet hours.
func (s *Scheduler) Tick(ctx context.Context) TickResult {
	return s.runTick(ctx, false)
}

// ForceTick bypasses the running/paused/stopped gate but still honors quiet
// hours and the executor-busy check.
func (s *Scheduler) ForceTick(ctx context.Context) TickResult {
	return s.runTick(ctx, true)
}

func (s *Scheduler) runTick(ctx context.Context, forced bool) TickResult {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	// Step 1: state gate.
	if !forced && state != StateRunning && state != StateQuietHours {
		return s.skip(state, "scheduler is "+string(state))
	}

	// Step 2: quiet hours. Only a non-forced tick mutates the persisted
	// state, so a force-tick during quiet hours still skips without leaving
	// the Scheduler parked in quiet-hours afterward.
	if inQuietHours(s.cfg.QuietHours, s.now()) {
		if !forced {
			s.mu.Lock()
			s.state = StateQuietHours
			s.mu.Unlock()
		}
		return s.skip(StateQuietHours, "within configured quiet hours")
	}
	if state == StateQuietHours && !forced {
		s.mu.Lock()
		s.state = StateRunning
		s.mu.Unlock()
		state = StateRunning
	}

	// Step 3: executor busy.
	if s.exec.IsProcessing() {
		return s.skip(state, "executor is currently processing")
	}

	// Step 4-5: fetch and order pending proposals.
	pending := s.store.ListPending()
	ordered := orderProposals(pending, s.cfg.PriorityOrder)
	escalated := s.escalateStale(ordered)

	// Step 6: dispatch the first batchSize entries.
	batchSize := s.cfg.BatchSize
	if batchSize > len(ordered) {
		batchSize = len(ordered)
	}
	batch := ordered[:batchSize]

	s.mu.Lock()
	s.lastTick = s.now()
	s.ticksRun++
	s.mu.Unlock()

	if len(batch) == 0 {
		s.emitTick(0, 0, executor.BatchSummary{})
		return TickResult{State: state, BatchSize: 0, Escalated: escalated}
	}

	summary, err := s.exec.RunBatch(ctx, batch)
	if err != nil {
		logging.Scheduler("batch dispatch returned an error: %v", err)
	}
	s.mu.Lock()
	s.lastSummary = summary
	s.mu.Unlock()
	s.emitTick(len(batch), escalated, summary)

	// Step 7: auto-pause on unhealthy executor.
	result := TickResult{State: state, BatchSize: len(batch), Escalated: escalated, Summary: summary}
	if s.exec.Health() == executor.HealthUnhealthy {
		s.mu.Lock()
		s.state = StatePaused
		s.mu.Unlock()
		result.AutoPaused = true
		result.State = StatePaused
		s.bus.Emit(evotypes.ApplicationEvent{
			Kind: evotypes.EventHealthCheck, Timestamp: s.now(),
			Detail: map[string]interface{}{"outcome": "auto-paused", "health": string(executor.HealthUnhealthy)},
		})
		logging.Scheduler("auto-paused: executor reported unhealthy, manual resume required")
	}
	return result
}

func (s *Scheduler) skip(state State, reason string) TickResult {
	s.bus.Emit(evotypes.ApplicationEvent{
		Kind: evotypes.EventSchedulerTick, Timestamp: s.now(),
		Detail: map[string]interface{}{"skipped": true, "reason": reason, "state": string(state)},
	})
	logging.Scheduler("tick skipped: %s", reason)
	return TickResult{Skipped: true, Reason: reason, State: state}
}

func (s *Scheduler) emitTick(batchSize, escalated int, summary executor.BatchSummary) {
	s.bus.Emit(evotypes.ApplicationEvent{
		Kind: evotypes.EventSchedulerTick, Timestamp: s.now(),
		Detail: map[string]interface{}{
			"batchSize":      batchSize,
			"escalated":      escalated,
			"successCount":   summary.SuccessCount,
			"failureCount":   summary.FailureCount,
			"escalatedCount": summary.EscalatedCount,
		},
	})
}

// escalateStale emits proposal-escalated for every proposal older than
// MaxAgeMs. This is an observability signal only, not a status change.
func (s *Scheduler) escalateStale(ordered []*evotypes.Proposal) int {
	if s.cfg.MaxAgeMs <= 0 {
		return 0
	}
	count := 0
	now := s.now()
	for _, p := range ordered {
		if now.Sub(p.CreatedAt).Milliseconds() > s.cfg.MaxAgeMs {
			count++
			s.bus.Emit(evotypes.ApplicationEvent{
				Kind: evotypes.EventProposalEscalated, ProposalID: p.ID, Timestamp: now,
				Detail: map[string]interface{}{"ageMs": now.Sub(p.CreatedAt).Milliseconds()},
			})
		}
	}
	return count
}

// inQuietHours treats start > end as a wrap-around across midnight;
// comparison uses the hour component only.
func inQuietHours(qh config.QuietHours, t time.Time) bool {
	if !qh.Enabled {
		return false
	}
	h := t.Local().Hour()
	if qh.StartHour <= qh.EndHour {
		return h >= qh.StartHour && h < qh.EndHour
	}
	return h >= qh.StartHour || h < qh.EndHour
}

// orderProposals sorts a copy of pending by the configured priority
//, always tie-breaking by age.
func orderProposals(pending []*evotypes.Proposal, order config.PriorityOrder) []*evotypes.Proposal {
	sorted := make([]*evotypes.Proposal, len(pending))
	copy(sorted, pending)

	byAge := func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) }

	switch order {
	case config.PriorityImpact:
		sort.SliceStable(sorted, func(i, j int) bool {
			ri, rj := sorted[i].DeclaredRisk.Rank(), sorted[j].DeclaredRisk.Rank()
			if ri != rj {
				return ri < rj // lower risk first
			}
			return byAge(i, j)
		})
	case config.PriorityRisk:
		sort.SliceStable(sorted, func(i, j int) bool {
			ri, rj := sorted[i].DeclaredRisk.Rank(), sorted[j].DeclaredRisk.Rank()
			if ri != rj {
				return ri > rj // higher risk first
			}
			return byAge(i, j)
		})
	default: // config.PriorityAge and anything unrecognized
		sort.SliceStable(sorted, byAge)
	}
	return sorted
}

// Package governor enforces the daily budgets the Executor and
// Self-Healing Monitor must respect: a cap on proposals applied per day and
// a separate cap on automatic rollbacks per day. It reuses the State
// Store's Counters/UTCDayString convention so the two stay in lockstep on
// day rollover, and reports refusals as evoerrors.KindRateLimited the same
// way every other bounded resource in this engine does.
package governor

import (
	"fmt"
	"time"

	"github.com/codenerd-labs/evolution-engine/internal/evoerrors"
	"github.com/codenerd-labs/evolution-engine/internal/evotypes"
	"github.com/codenerd-labs/evolution-engine/internal/store"
)

// Decision describes whether an action is currently allowed and, if not,
// why - so callers can surface a structured reason instead of a bare bool.
type Decision struct {
	Allowed bool
	Reason  string
}

// Governor tracks daily counters via a *store.Store so budgets survive
// restarts.
type Governor struct {
	store             *store.Store
	dailyLimit        int
	maxDailyRollbacks int
}

// New builds a Governor. dailyLimit bounds proposals applied per UTC day;
// maxDailyRollbacks bounds automatic (self-healing) rollbacks per UTC day.
// Manual rollbacks are never rate-limited (spec §4.8).
func New(s *store.Store, dailyLimit, maxDailyRollbacks int) *Governor {
	return &Governor{store: s, dailyLimit: dailyLimit, maxDailyRollbacks: maxDailyRollbacks}
}

// AllowApply reports whether another proposal may be applied today.
func (g *Governor) AllowApply() Decision {
	counters := g.store.LoadCounters()
	if g.dailyLimit > 0 && counters.ProposalsApplied >= g.dailyLimit {
		return Decision{Allowed: false, Reason: fmt.Sprintf("daily application limit (%d) reached; resets at 00:00 UTC", g.dailyLimit)}
	}
	return Decision{Allowed: true}
}

// AllowRollback reports whether a rollback may proceed. Manual rollbacks
// (auto=false) are always allowed; automatic ones are capped.
func (g *Governor) AllowRollback(auto bool) Decision {
	if !auto {
		return Decision{Allowed: true}
	}

	counters := g.store.LoadCounters()
	if g.maxDailyRollbacks > 0 && counters.AutomaticRollbacks >= g.maxDailyRollbacks {
		return Decision{Allowed: false, Reason: fmt.Sprintf("daily automatic rollback limit (%d) reached; resets at 00:00 UTC", g.maxDailyRollbacks)}
	}
	return Decision{Allowed: true}
}

// Err converts a refused Decision into a rate-limited evoerrors.Error, or
// nil if the decision allowed the action.
func Err(op string, d Decision) error {
	if d.Allowed {
		return nil
	}
	return evoerrors.New(evoerrors.KindRateLimited, op, d.Reason)
}

// RecordApply increments today's applied-proposal counter.
func (g *Governor) RecordApply() error {
	return g.bump(func(c *evotypes.Counters) { c.ProposalsApplied++ })
}

// RecordRollback increments today's automatic- or manual-rollback counter.
func (g *Governor) RecordRollback(auto bool) error {
	return g.bump(func(c *evotypes.Counters) {
		if auto {
			c.AutomaticRollbacks++
		} else {
			c.ManualRollbacks++
		}
	})
}

// RecordEscalation increments today's escalation counter, purely for
// observability - escalations are never rate-limited.
func (g *Governor) RecordEscalation() error {
	return g.bump(func(c *evotypes.Counters) { c.Escalations++ })
}

func (g *Governor) bump(mutate func(*evotypes.Counters)) error {
	counters := g.store.LoadCounters()
	counters.Day = evotypes.UTCDayString(time.Now())
	mutate(&counters)
	return g.store.SaveCounters(counters)
}

package risk

import (
	"time"

	"github.com/codenerd-labs/evolution-engine/internal/evotypes"
	"github.com/codenerd-labs/evolution-engine/internal/store"
)

// historyWindow is how far back StoreHistory looks for both the success
// rate and the override rate (spec §4.2: "last 30 days" for overrides; the
// success-rate window is unspecified, so the same window is reused for
// both - documented in DESIGN.md).
const historyWindow = 30 * 24 * time.Hour

// categoryDetailKey is the ApplicationEvent.Detail key the Executor sets so
// history queries can be grouped by category without re-reading proposals.
const categoryDetailKey = "category"

// StoreHistory adapts a *store.Store into a risk.HistoryProvider by
// scanning recent application events and rollback records. With fewer than
// 3 samples a rate is reported as the neutral 0.5, alongside the real
// sample count.
type StoreHistory struct {
	Store *store.Store
}

func (h StoreHistory) SuccessRate(category evotypes.ProposalCategory) (float64, int) {
	events := h.recentEventsForCategory(category)
	if len(events) < 3 {
		return 0.5, len(events)
	}

	successes := 0
	for _, e := range events {
		if e.Kind == evotypes.EventExecutionComplete {
			successes++
		}
	}
	return float64(successes) / float64(len(events)), len(events)
}

func (h StoreHistory) OverrideRate(category evotypes.ProposalCategory) (float64, int) {
	events := h.recentEventsForCategory(category)
	applied := 0
	for _, e := range events {
		if e.Kind == evotypes.EventExecutionComplete {
			applied++
		}
	}
	if applied < 3 {
		return 0.5, applied
	}

	cutoff := time.Now().Add(-historyWindow)
	manualRollbacks := 0
	for proposalID, record := range h.Store.ListRollbackRecords() {
		if record.RollbackTriggeredBy != "manual" || record.RolledBackAt == nil || record.RolledBackAt.Before(cutoff) {
			continue
		}
		p, err := h.Store.GetProposal(proposalID)
		if err != nil || p.Category != category {
			continue
		}
		manualRollbacks++
	}
	return float64(manualRollbacks) / float64(applied), applied
}

func (h StoreHistory) recentEventsForCategory(category evotypes.ProposalCategory) []evotypes.ApplicationEvent {
	cutoff := time.Now().Add(-historyWindow)
	var out []evotypes.ApplicationEvent
	for _, e := range h.Store.ListRecentApplicationEvents(0) {
		if e.Timestamp.Before(cutoff) {
			continue
		}
		if cat, ok := e.Detail[categoryDetailKey].(string); !ok || evotypes.ProposalCategory(cat) != category {
			continue
		}
		out = append(out, e)
	}
	return out
}

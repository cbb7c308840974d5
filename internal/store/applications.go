package store

import (
	"encoding/json"

	"github.com/codenerd-labs/evolution-engine/internal/evoerrors"
	"github.com/codenerd-labs/evolution-engine/internal/evotypes"
)

func (s *Store) loadRecentEvents() error {
	var all []evotypes.ApplicationEvent
	err := readJSONLines(s.path(appLogFile), func(line []byte) error {
		var e evotypes.ApplicationEvent
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		all = append(all, e)
		return nil
	})
	if err != nil {
		return err
	}
	if len(all) > recentEventsCap {
		all = all[len(all)-recentEventsCap:]
	}
	s.recentEvents = all
	return nil
}

// RecordApplicationEvent appends an event to applications/log.jsonl and
// keeps the in-memory recent-events ring in sync. Always flushed
// synchronously: this is the audit trail.
func (s *Store) RecordApplicationEvent(e evotypes.ApplicationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := appendJSONLine(s.path(appLogFile), e); err != nil {
		return evoerrors.Wrapf(evoerrors.KindUnavailable, "store.RecordApplicationEvent", err, "proposal %s", e.ProposalID)
	}

	s.recentEvents = append(s.recentEvents, e)
	if len(s.recentEvents) > recentEventsCap {
		s.recentEvents = s.recentEvents[len(s.recentEvents)-recentEventsCap:]
	}
	return nil
}

// ListRecentApplicationEvents returns up to n most recent application
// events, newest last (log order).
func (s *Store) ListRecentApplicationEvents(n int) []evotypes.ApplicationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 || n > len(s.recentEvents) {
		n = len(s.recentEvents)
	}
	out := make([]evotypes.ApplicationEvent, n)
	copy(out, s.recentEvents[len(s.recentEvents)-n:])
	return out
}

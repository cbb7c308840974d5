package store

import (
	"encoding/json"
	"time"

	"github.com/codenerd-labs/evolution-engine/internal/evoerrors"
	"github.com/codenerd-labs/evolution-engine/internal/evotypes"
)

// loadRollbackRecords replays rollback-log.jsonl; the log is append-only so
// the last entry written for a given ID is its current state.
func (s *Store) loadRollbackRecords() error {
	return readJSONLines(s.path(rollbackLog), func(line []byte) error {
		var r evotypes.RollbackRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return err
		}
		s.rollbackRecords[r.ProposalID] = &r
		return nil
	})
}

// PutRollbackRecord stores (or updates, by appending a new log line) the
// rollback record for a proposal. Called once at apply time and again when
// the rollback is actually executed (RolledBack flips to true).
func (s *Store) PutRollbackRecord(r *evotypes.RollbackRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := appendJSONLine(s.path(rollbackLog), r); err != nil {
		return evoerrors.Wrapf(evoerrors.KindUnavailable, "store.PutRollbackRecord", err, "proposal %s", r.ProposalID)
	}
	clone := *r
	s.rollbackRecords[r.ProposalID] = &clone
	return nil
}

// GetRollbackRecord returns the stored rollback record for a proposal, or
// evoerrors.ErrNotFound if none was ever recorded - which would violate the
// "applied implies rollback record" invariant (spec §8).
func (s *Store) GetRollbackRecord(proposalID string) (*evotypes.RollbackRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rollbackRecords[proposalID]
	if !ok {
		return nil, evoerrors.Wrap(evoerrors.KindInternalAssertion, "store.GetRollbackRecord", evoerrors.ErrNotFound)
	}
	clone := *r
	return &clone, nil
}

// ListRollbackRecords returns a snapshot of every rollback record currently
// known to the store, keyed by proposal ID. Used by the Risk Scorer's
// history view to compute override rates across all applied proposals.
func (s *Store) ListRollbackRecords() map[string]*evotypes.RollbackRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]*evotypes.RollbackRecord, len(s.rollbackRecords))
	for k, v := range s.rollbackRecords {
		clone := *v
		out[k] = &clone
	}
	return out
}

// MarkRolledBack records that a rollback record's inverse operations were
// executed, attaching who triggered it and when.
func (s *Store) MarkRolledBack(proposalID, triggeredBy, reason string) error {
	s.mu.Lock()
	r, ok := s.rollbackRecords[proposalID]
	s.mu.Unlock()
	if !ok {
		return evoerrors.Wrap(evoerrors.KindInternalAssertion, "store.MarkRolledBack", evoerrors.ErrNotFound)
	}

	updated := *r
	now := time.Now()
	updated.RolledBack = true
	updated.RolledBackAt = &now
	updated.RollbackTriggeredBy = triggeredBy
	updated.RollbackReason = reason
	return s.PutRollbackRecord(&updated)
}

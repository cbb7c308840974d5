package store

import (
	"encoding/json"

	"github.com/codenerd-labs/evolution-engine/internal/evoerrors"
	"github.com/codenerd-labs/evolution-engine/internal/evotypes"
)

// Snapshot is a byte-stable rendering of everything the State Store owns
// except the signals ring buffer, which is a secondary index rather than a
// source of truth and is rebuilt from add-signal calls over time, and the
// Self-Healing Monitor's watch records, which RestoreAll leaves untouched.
type Snapshot struct {
	SchemaVersion   int                                   `json:"schemaVersion"`
	Proposals       []*evotypes.Proposal                  `json:"proposals"`
	PendingOrder    []string                              `json:"pendingOrder"`
	RollbackRecords map[string]*evotypes.RollbackRecord    `json:"rollbackRecords"`
	RecentEvents    []evotypes.ApplicationEvent            `json:"recentEvents"`
	Counters        evotypes.Counters                     `json:"counters"`
}

// SnapshotAll renders the current in-memory state to canonical JSON.
// Proposals are sorted by ID for determinism, independent of map iteration
// order, so two snapshots of identical logical state serialize identically.
func (s *Store) SnapshotAll() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.proposals))
	for id := range s.proposals {
		ids = append(ids, id)
	}
	sortStrings(ids)

	proposals := make([]*evotypes.Proposal, 0, len(ids))
	for _, id := range ids {
		clone := *s.proposals[id]
		proposals = append(proposals, &clone)
	}

	records := make(map[string]*evotypes.RollbackRecord, len(s.rollbackRecords))
	for k, v := range s.rollbackRecords {
		clone := *v
		records[k] = &clone
	}

	events := make([]evotypes.ApplicationEvent, len(s.recentEvents))
	copy(events, s.recentEvents)

	snap := Snapshot{
		SchemaVersion:   SchemaVersion,
		Proposals:       proposals,
		PendingOrder:    append([]string(nil), s.pendingOrder...),
		RollbackRecords: records,
		RecentEvents:    events,
		Counters:        s.counters,
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, evoerrors.Wrap(evoerrors.KindInternalAssertion, "store.SnapshotAll", err)
	}
	return data, nil
}

// RestoreAll replaces the in-memory state wholesale from a snapshot
// produced by SnapshotAll, then flushes every proposal and the counters
// file to disk.
func (s *Store) RestoreAll(data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return evoerrors.Wrap(evoerrors.KindStateCorrupted, "store.RestoreAll", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.proposals = make(map[string]*evotypes.Proposal, len(snap.Proposals))
	for _, p := range snap.Proposals {
		s.proposals[p.ID] = p
	}
	s.pendingOrder = append([]string(nil), snap.PendingOrder...)
	s.rollbackRecords = snap.RollbackRecords
	if s.rollbackRecords == nil {
		s.rollbackRecords = make(map[string]*evotypes.RollbackRecord)
	}
	s.recentEvents = snap.RecentEvents
	s.counters = snap.Counters

	for _, p := range s.proposals {
		if err := writeJSONAtomic(s.proposalPath(p.ID), p); err != nil {
			return err
		}
	}
	onDisk := stateOnDisk{SchemaVersion: SchemaVersion, Counters: s.counters}
	return writeJSONAtomic(s.path(stateFile), onDisk)
}

func sortStrings(ss []string) {
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && ss[j-1] > ss[j]; j-- {
			ss[j-1], ss[j] = ss[j], ss[j-1]
		}
	}
}

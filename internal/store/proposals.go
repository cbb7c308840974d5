package store

import (
	"encoding/json"
	"os"
	"time"

	"github.com/codenerd-labs/evolution-engine/internal/evoerrors"
	"github.com/codenerd-labs/evolution-engine/internal/evotypes"
	"github.com/codenerd-labs/evolution-engine/internal/logging"
)

func (s *Store) proposalPath(id string) string {
	return s.path(proposalsDir, id+".json")
}

// loadProposals reconstructs the proposals map and pending queue from
// .evolution/proposals/*.json. Malformed files are quarantined (renamed
// with a .corrupt suffix) rather than dropped silently.
func (s *Store) loadProposals() error {
	dir := s.path(proposalsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return evoerrors.Wrap(evoerrors.KindUnavailable, "store.loadProposals", err)
	}

	var loaded []*evotypes.Proposal
	for _, e := range entries {
		if e.IsDir() || !isJSONFile(e.Name()) {
			continue
		}
		full := dir + string(os.PathSeparator) + e.Name()
		data, err := os.ReadFile(full)
		if err != nil {
			logging.Get(logging.CategoryStore).Error("cannot read proposal file %s: %v", full, err)
			continue
		}
		var p evotypes.Proposal
		if err := json.Unmarshal(data, &p); err != nil {
			logging.Get(logging.CategoryStore).Error("quarantining corrupted proposal %s: %v", full, err)
			os.Rename(full, full+".corrupt")
			continue
		}
		loaded = append(loaded, &p)
	}

	sortProposalsByCreatedAt(loaded)
	for _, p := range loaded {
		s.proposals[p.ID] = p
		if p.Status == evotypes.StatusPending {
			s.pendingOrder = append(s.pendingOrder, p.ID)
		}
	}
	return nil
}

func isJSONFile(name string) bool {
	return len(name) > 5 && name[len(name)-5:] == ".json"
}

// PutProposal stores a new proposal. The write is flushed synchronously -
// creation of a proposal is always a user/caller-visible event.
func (s *Store) PutProposal(p *evotypes.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.SchemaVersion == 0 {
		p.SchemaVersion = SchemaVersion
	}
	if _, exists := s.proposals[p.ID]; exists {
		return evoerrors.New(evoerrors.KindTargetConflict, "store.PutProposal", "proposal already exists: "+p.ID)
	}

	s.proposals[p.ID] = p
	if p.Status == evotypes.StatusPending {
		s.pendingOrder = append(s.pendingOrder, p.ID)
	}
	return s.persistProposalNow(p)
}

// GetProposal returns a copy-free pointer to the stored proposal. Callers
// must not mutate it directly; use UpdateProposalStatus.
func (s *Store) GetProposal(id string) (*evotypes.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.proposals[id]
	if !ok {
		return nil, evoerrors.New(evoerrors.KindTargetMissing, "store.GetProposal", "no such proposal: "+id)
	}
	clone := *p
	return &clone, nil
}

// ListPending returns a snapshot of all pending proposals in insertion order.
func (s *Store) ListPending() []*evotypes.Proposal {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*evotypes.Proposal, 0, len(s.pendingOrder))
	for _, id := range s.pendingOrder {
		if p, ok := s.proposals[id]; ok {
			clone := *p
			out = append(out, &clone)
		}
	}
	return out
}

// UpdateProposalStatus performs an atomic read-modify-write: it loads the
// current proposal, validates the requested transition against the state
// machine, applies mutate (for side fields like Reviewer/Notes), and
// flushes synchronously since status transitions are always user-visible.
func (s *Store) UpdateProposalStatus(id string, newStatus evotypes.ProposalStatus, mutate func(*evotypes.Proposal)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.proposals[id]
	if !ok {
		return evoerrors.New(evoerrors.KindTargetMissing, "store.UpdateProposalStatus", "no such proposal: "+id)
	}
	if !evotypes.CanTransition(p.Status, newStatus) {
		return evoerrors.Wrapf(evoerrors.KindInternalAssertion, "store.UpdateProposalStatus", evoerrors.ErrInvalidTransition,
			"%s -> %s for proposal %s", p.Status, newStatus, id)
	}

	wasPending := p.Status == evotypes.StatusPending
	p.Status = newStatus
	p.UpdatedAt = time.Now()
	if mutate != nil {
		mutate(p)
	}

	if wasPending && newStatus != evotypes.StatusPending {
		s.removeFromPending(id)
	}

	return s.persistProposalNow(p)
}

func (s *Store) removeFromPending(id string) {
	for i, pid := range s.pendingOrder {
		if pid == id {
			s.pendingOrder = append(s.pendingOrder[:i], s.pendingOrder[i+1:]...)
			return
		}
	}
}

// persistProposalNow writes p to disk immediately. Must be called with
// s.mu held.
func (s *Store) persistProposalNow(p *evotypes.Proposal) error {
	return writeJSONAtomic(s.proposalPath(p.ID), p)
}

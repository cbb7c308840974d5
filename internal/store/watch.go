package store

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/codenerd-labs/evolution-engine/internal/evoerrors"
	"github.com/codenerd-labs/evolution-engine/internal/evotypes"
	"github.com/codenerd-labs/evolution-engine/internal/logging"
)

// StartWatch begins watching .evolution/proposals/ for files an operator
// edited by hand outside this process. The only externally-driven edge the
// proposal state machine allows is pending -> approved (see spec.md §4.4's
// "(external approve)" transition); every other observed status change is
// logged and ignored rather than applied, since any other transition must
// go through UpdateProposalStatus so its DAG and flush-on-terminal rules
// are honored.
//
// StartWatch is a no-op if a watch is already running. The watcher goroutine
// stops when StopWatch or Close is called.
func (s *Store) StartWatch() error {
	s.mu.Lock()
	if s.watcher != nil {
		s.mu.Unlock()
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		s.mu.Unlock()
		return evoerrors.Wrap(evoerrors.KindUnavailable, "store.StartWatch", err)
	}
	dir := s.path(proposalsDir)
	if err := w.Add(dir); err != nil {
		w.Close()
		s.mu.Unlock()
		return evoerrors.Wrap(evoerrors.KindUnavailable, "store.StartWatch", err)
	}

	s.watcher = w
	s.watchDone = make(chan struct{})
	done := s.watchDone
	s.mu.Unlock()

	go s.watchLoop(w, done)
	logging.Store("watching %s for externally-edited proposals", dir)
	return nil
}

// StopWatch stops the fsnotify watch started by StartWatch. It is safe to
// call when no watch is running.
func (s *Store) StopWatch() {
	s.mu.Lock()
	w := s.watcher
	done := s.watchDone
	s.watcher = nil
	s.watchDone = nil
	s.mu.Unlock()

	if w == nil {
		return
	}
	w.Close()
	<-done
}

func (s *Store) watchLoop(w *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if !strings.HasSuffix(ev.Name, ".json") {
				continue
			}
			s.reloadExternalProposal(ev.Name)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryStore).Error("proposal watch error: %v", err)
		}
	}
}

// reloadExternalProposal re-reads a single proposal file that fsnotify
// reported as changed and, if the on-disk status moved pending -> approved,
// applies that as an external approve. Any other observed change is logged
// and left alone - it must come through UpdateProposalStatus instead.
func (s *Store) reloadExternalProposal(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		// A rapid create-then-rename (as writeJSONAtomic performs) can race
		// the watch callback past the file's existence; nothing to reload.
		return
	}

	var p evotypes.Proposal
	if err := json.Unmarshal(data, &p); err != nil {
		logging.Get(logging.CategoryStore).Error("ignoring externally-edited proposal %s: %v", path, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.proposals[p.ID]
	if !ok || current.Status != p.Status {
		if ok && current.Status == evotypes.StatusPending && p.Status == evotypes.StatusApproved {
			clone := p
			s.proposals[p.ID] = &clone
			s.removeFromPending(p.ID)
			logging.Store("proposal %s externally approved, promoted from pending", p.ID)
			return
		}
		if ok {
			logging.Get(logging.CategoryStore).Error(
				"ignoring externally-edited proposal %s: unsupported status change %s -> %s", p.ID, current.Status, p.Status)
		}
	}
}

// Package store implements the Evolution Engine's single-writer local
// state store: proposals, signals, application events, rollback records
// and daily counters, all under a project-local .evolution/ workspace
// directory, over plain JSON files rather than a relational schema - the
// on-disk layout names files, not tables. The one exception is the signals
// ring buffer, kept in a single SQLite table in signals.db.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	_ "modernc.org/sqlite"

	"github.com/codenerd-labs/evolution-engine/internal/evoerrors"
	"github.com/codenerd-labs/evolution-engine/internal/evotypes"
	"github.com/codenerd-labs/evolution-engine/internal/logging"
)

const (
	dirName         = ".evolution"
	proposalsDir    = "proposals"
	applicationsDir = "applications"
	backupsDir      = "backups"
	monitoringDir   = "monitoring"
	stateFile       = "state.json"
	appLogFile      = "applications/log.jsonl"
	rollbackLog     = "rollback-log.jsonl"
	signalsDB       = "signals.db"
	lockFile        = ".lock"

	// SchemaVersion is written into every on-disk record this store produces.
	SchemaVersion = 1

	// recentEventsCap bounds the in-memory ring of application events kept
	// for ListRecentApplicationEvents without re-reading the log file.
	recentEventsCap = 500
)

// Store is the single-writer local state store. One Store must exist per
// process per workspace; concurrent processes are rejected via a lockfile.
type Store struct {
	mu sync.Mutex

	workspace string
	lockHandle *os.File

	proposals     map[string]*evotypes.Proposal
	pendingOrder  []string // proposal ids with status pending, insertion order

	rollbackRecords map[string]*evotypes.RollbackRecord // keyed by ProposalID

	monitored map[string]*evotypes.MonitoredApplication // keyed by ProposalID

	recentEvents []evotypes.ApplicationEvent // ring buffer, oldest first

	counters evotypes.Counters

	db *sqlDB

	watcher   *fsnotify.Watcher
	watchDone chan struct{}
}

// Durability note: spec §4.1 allows writes to be debounced up to 200ms but
// requires a synchronous flush before any user-visible status transition.
// Every mutation this store exposes - PutProposal, UpdateProposalStatus,
// SaveCounters, RecordApplicationEvent, PutRollbackRecord - is itself
// user-visible, so there is no non-visible write path left to debounce;
// all of them flush immediately rather than carrying unused batching code.

// Open creates (if needed) the .evolution directory layout under workspace,
// acquires the process lockfile, and reconstructs in-memory state from what
// is already on disk.
func Open(workspace string) (*Store, error) {
	base := filepath.Join(workspace, dirName)
	for _, d := range []string{base, filepath.Join(base, proposalsDir), filepath.Join(base, applicationsDir), filepath.Join(base, backupsDir), filepath.Join(base, monitoringDir)} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, evoerrors.Wrapf(evoerrors.KindUnavailable, "store.Open", err, "create %s", d)
		}
	}

	handle, err := acquireLock(filepath.Join(base, lockFile))
	if err != nil {
		return nil, err
	}

	s := &Store{
		workspace:       workspace,
		lockHandle:      handle,
		proposals:       make(map[string]*evotypes.Proposal),
		rollbackRecords: make(map[string]*evotypes.RollbackRecord),
		monitored:       make(map[string]*evotypes.MonitoredApplication),
	}

	if err := s.loadProposals(); err != nil {
		handle.Close()
		return nil, err
	}
	if err := s.loadCounters(); err != nil {
		handle.Close()
		return nil, err
	}
	if err := s.loadRollbackRecords(); err != nil {
		handle.Close()
		return nil, err
	}
	if err := s.loadMonitoredApplications(); err != nil {
		handle.Close()
		return nil, err
	}
	if err := s.loadRecentEvents(); err != nil {
		handle.Close()
		return nil, err
	}

	db, err := openSignalsDB(filepath.Join(base, signalsDB))
	if err != nil {
		handle.Close()
		return nil, err
	}
	s.db = db

	if err := s.StartWatch(); err != nil {
		logging.Store("proposal watch unavailable, externally-edited proposals won't be picked up until restart: %v", err)
	}

	logging.Store("state store opened at %s: %d proposals (%d pending)", base, len(s.proposals), len(s.pendingOrder))
	return s, nil
}

// Close stops the proposal watch, releases the lockfile, and closes the
// signals database handle.
func (s *Store) Close() error {
	s.StopWatch()

	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			firstErr = err
		}
	}
	if s.lockHandle != nil {
		releaseLock(s.lockHandle)
	}
	return firstErr
}

func (s *Store) path(parts ...string) string {
	return filepath.Join(append([]string{s.workspace, dirName}, parts...)...)
}

func acquireLock(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, evoerrors.Wrap(evoerrors.KindUnavailable, "store.acquireLock", evoerrors.ErrAlreadyLocked)
		}
		return nil, evoerrors.Wrap(evoerrors.KindUnavailable, "store.acquireLock", err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	return f, nil
}

func releaseLock(f *os.File) {
	path := f.Name()
	f.Close()
	os.Remove(path)
}

// sortProposalsByCreatedAt is a small stable-sort helper; loadProposals
// uses it to rebuild the pending queue in creation order.
func sortProposalsByCreatedAt(ps []*evotypes.Proposal) {
	sort.SliceStable(ps, func(i, j int) bool {
		return ps[i].CreatedAt.Before(ps[j].CreatedAt)
	})
}

package store

import (
	"encoding/json"
	"os"

	"github.com/codenerd-labs/evolution-engine/internal/evoerrors"
	"github.com/codenerd-labs/evolution-engine/internal/evotypes"
	"github.com/codenerd-labs/evolution-engine/internal/logging"
)

func (s *Store) monitoredPath(proposalID string) string {
	return s.path(monitoringDir, proposalID+".json")
}

// loadMonitoredApplications reconstructs the watch list from
// .evolution/monitoring/*.json, the same one-file-per-id layout as proposals.
func (s *Store) loadMonitoredApplications() error {
	dir := s.path(monitoringDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return evoerrors.Wrap(evoerrors.KindUnavailable, "store.loadMonitoredApplications", err)
	}
	for _, e := range entries {
		if e.IsDir() || !isJSONFile(e.Name()) {
			continue
		}
		full := dir + string(os.PathSeparator) + e.Name()
		data, err := os.ReadFile(full)
		if err != nil {
			logging.Get(logging.CategoryStore).Error("cannot read monitoring record %s: %v", full, err)
			continue
		}
		var m evotypes.MonitoredApplication
		if err := json.Unmarshal(data, &m); err != nil {
			logging.Get(logging.CategoryStore).Error("quarantining corrupted monitoring record %s: %v", full, err)
			os.Rename(full, full+".corrupt")
			continue
		}
		s.monitored[m.ProposalID] = &m
	}
	return nil
}

// PutMonitoredApplication begins watching a freshly applied proposal,
// capturing the pre-metrics snapshot the Self-Healing Monitor will later
// compare against. The caller supplies that snapshot at apply time.
func (s *Store) PutMonitoredApplication(m *evotypes.MonitoredApplication) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *m
	s.monitored[m.ProposalID] = &clone
	return writeJSONAtomic(s.monitoredPath(m.ProposalID), m)
}

// SetPostMetrics attaches the post-application metrics snapshot to an
// existing watch record; it may be written by a subsystem other than the
// one that created the watch.
func (s *Store) SetPostMetrics(proposalID string, post evotypes.MetricsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.monitored[proposalID]
	if !ok {
		return evoerrors.Wrap(evoerrors.KindTargetMissing, "store.SetPostMetrics", evoerrors.ErrNotFound)
	}
	updated := *m
	updated.PostMetrics = &post
	s.monitored[proposalID] = &updated
	return writeJSONAtomic(s.monitoredPath(proposalID), &updated)
}

// UpdateMonitoringStatus records the monitor's eventual disposition
// (ignored or rolled-back) for a watched application.
func (s *Store) UpdateMonitoringStatus(proposalID string, status evotypes.MonitoringStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.monitored[proposalID]
	if !ok {
		return evoerrors.Wrap(evoerrors.KindTargetMissing, "store.UpdateMonitoringStatus", evoerrors.ErrNotFound)
	}
	updated := *m
	updated.Status = status
	s.monitored[proposalID] = &updated
	return writeJSONAtomic(s.monitoredPath(proposalID), &updated)
}

// GetMonitoredApplication returns the watch record for a proposal, if any.
func (s *Store) GetMonitoredApplication(proposalID string) (*evotypes.MonitoredApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.monitored[proposalID]
	if !ok {
		return nil, evoerrors.Wrap(evoerrors.KindTargetMissing, "store.GetMonitoredApplication", evoerrors.ErrNotFound)
	}
	clone := *m
	return &clone, nil
}

// ListWatching returns every monitored application still in the
// "watching" state, used by the Self-Healing Monitor's sweep.
func (s *Store) ListWatching() []*evotypes.MonitoredApplication {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*evotypes.MonitoredApplication, 0, len(s.monitored))
	for _, m := range s.monitored {
		if m.Status == evotypes.MonitoringWatching {
			clone := *m
			out = append(out, &clone)
		}
	}
	return out
}

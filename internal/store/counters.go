package store

import (
	"encoding/json"
	"os"
	"time"

	"github.com/codenerd-labs/evolution-engine/internal/evoerrors"
	"github.com/codenerd-labs/evolution-engine/internal/evotypes"
)

// stateOnDisk is the schema of state.json. The engine's own autonomy
// configuration lives in the separate EngineConfig YAML file, not here -
// state.json holds only what genuinely changes at runtime.
type stateOnDisk struct {
	SchemaVersion int               `json:"schemaVersion"`
	Counters      evotypes.Counters `json:"counters"`
}

func (s *Store) loadCounters() error {
	path := s.path(stateFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.counters = evotypes.Counters{Day: evotypes.UTCDayString(time.Now())}
			return nil
		}
		return evoerrors.Wrap(evoerrors.KindUnavailable, "store.loadCounters", err)
	}

	var onDisk stateOnDisk
	if err := json.Unmarshal(data, &onDisk); err != nil {
		os.Rename(path, path+".corrupt")
		s.counters = evotypes.Counters{Day: evotypes.UTCDayString(time.Now())}
		return nil
	}
	s.counters = onDisk.Counters
	return nil
}

// LoadCounters returns today's counters, rolling them over to zero first if
// the stored day differs from the current UTC day.
func (s *Store) LoadCounters() evotypes.Counters {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := evotypes.UTCDayString(time.Now())
	if s.counters.Day != today {
		s.counters = evotypes.Counters{Day: today}
	}
	return s.counters
}

// SaveCounters persists c, flushed synchronously since counters gate
// user-visible rate-limit decisions.
func (s *Store) SaveCounters(c evotypes.Counters) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters = c
	onDisk := stateOnDisk{SchemaVersion: SchemaVersion, Counters: c}
	return writeJSONAtomic(s.path(stateFile), onDisk)
}

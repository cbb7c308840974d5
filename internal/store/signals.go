package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/codenerd-labs/evolution-engine/internal/evoerrors"
	"github.com/codenerd-labs/evolution-engine/internal/evotypes"
	"github.com/codenerd-labs/evolution-engine/internal/logging"
)

// signalRingCapacity bounds the signals table; oldest rows are pruned once
// the cap is exceeded so the Risk Scorer's history queries stay cheap.
const signalRingCapacity = 20000

// sqlDB wraps the pure-Go modernc.org/sqlite connection used to index the
// signals ring buffer by timestamp.
type sqlDB struct {
	conn *sql.DB
}

func openSignalsDB(path string) (*sqlDB, error) {
	timer := logging.StartTimer(logging.CategoryStore, "openSignalsDB")
	defer timer.Stop()

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, evoerrors.Wrap(evoerrors.KindUnavailable, "store.openSignalsDB", err)
	}
	conn.SetMaxOpenConns(1)

	schema := `
CREATE TABLE IF NOT EXISTS signals (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	source TEXT NOT NULL,
	ts INTEGER NOT NULL,
	payload TEXT
);
CREATE INDEX IF NOT EXISTS idx_signals_ts ON signals(ts);
`
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, evoerrors.Wrap(evoerrors.KindStateCorrupted, "store.openSignalsDB", err)
	}

	return &sqlDB{conn: conn}, nil
}

func (d *sqlDB) Close() error {
	return d.conn.Close()
}

// AddSignal inserts a new signal and prunes the oldest rows beyond
// signalRingCapacity.
func (s *Store) AddSignal(sig evotypes.Signal) error {
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	if sig.Timestamp.IsZero() {
		sig.Timestamp = time.Now()
	}

	payload, err := json.Marshal(sig.Payload)
	if err != nil {
		return evoerrors.Wrap(evoerrors.KindInternalAssertion, "store.AddSignal", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.conn.Exec(
		`INSERT INTO signals (id, kind, source, ts, payload) VALUES (?, ?, ?, ?, ?)`,
		sig.ID, string(sig.Kind), sig.Source, sig.Timestamp.UnixMilli(), string(payload),
	)
	if err != nil {
		return evoerrors.Wrap(evoerrors.KindUnavailable, "store.AddSignal", err)
	}

	s.pruneSignals()
	return nil
}

func (s *Store) pruneSignals() {
	row := s.db.conn.QueryRow(`SELECT COUNT(*) FROM signals`)
	var count int
	if err := row.Scan(&count); err != nil {
		return
	}
	if count <= signalRingCapacity {
		return
	}
	excess := count - signalRingCapacity
	_, err := s.db.conn.Exec(
		`DELETE FROM signals WHERE id IN (SELECT id FROM signals ORDER BY ts ASC LIMIT ?)`, excess,
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("failed pruning signals ring buffer: %v", err)
	}
}

// RecentSignals returns every signal recorded within window of now, newest
// first.
func (s *Store) RecentSignals(window time.Duration) ([]evotypes.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-window).UnixMilli()
	rows, err := s.db.conn.Query(
		`SELECT id, kind, source, ts, payload FROM signals WHERE ts >= ? ORDER BY ts DESC`, cutoff,
	)
	if err != nil {
		return nil, evoerrors.Wrap(evoerrors.KindUnavailable, "store.RecentSignals", err)
	}
	defer rows.Close()

	var out []evotypes.Signal
	for rows.Next() {
		var sig evotypes.Signal
		var kind, payload string
		var ts int64
		if err := rows.Scan(&sig.ID, &kind, &sig.Source, &ts, &payload); err != nil {
			continue
		}
		sig.Kind = evotypes.SignalKind(kind)
		sig.Timestamp = time.UnixMilli(ts)
		if payload != "" && payload != "null" {
			_ = json.Unmarshal([]byte(payload), &sig.Payload)
		}
		out = append(out, sig)
	}
	return out, nil
}

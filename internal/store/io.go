package store

import (
	"encoding/json"
	"os"

	"github.com/codenerd-labs/evolution-engine/internal/evoerrors"
)

// writeJSONAtomic marshals v and writes it to path via a temp-file-then-
// rename sequence so a crash mid-write never leaves a half-written record
// for loadProposals to quarantine.
func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return evoerrors.Wrap(evoerrors.KindInternalAssertion, "store.writeJSONAtomic", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return evoerrors.Wrap(evoerrors.KindUnavailable, "store.writeJSONAtomic", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return evoerrors.Wrap(evoerrors.KindUnavailable, "store.writeJSONAtomic", err)
	}
	return nil
}

// appendJSONLine appends one JSON-encoded record followed by a newline to
// path, creating it if necessary.
func appendJSONLine(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return evoerrors.Wrap(evoerrors.KindInternalAssertion, "store.appendJSONLine", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return evoerrors.Wrap(evoerrors.KindUnavailable, "store.appendJSONLine", err)
	}
	defer f.Close()
	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return evoerrors.Wrap(evoerrors.KindUnavailable, "store.appendJSONLine", err)
	}
	return nil
}

// readJSONLines reads every line of a jsonl file and decodes each with
// decode. Lines that decode rejects are skipped silently (the per-line
// error is discarded), never fatal to the whole read.
func readJSONLines(path string, decode func(line []byte) error) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return evoerrors.Wrap(evoerrors.KindUnavailable, "store.readJSONLines", err)
	}

	start := 0
	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			line := data[start:i]
			start = i + 1
			if len(line) == 0 {
				continue
			}
			if err := decode(line); err != nil {
				continue
			}
		}
	}
	return nil
}

package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"

	"github.com/rs/zerolog"

	"github.com/rathix/devproxy/internal/state"
)

// StateUpdater is the part of the store Restore needs.
type StateUpdater interface {
	Get(name string) (state.Upstream, bool)
	Update(name string, fn func(*state.Upstream))
}

// ReadAllRecords reads all valid records from a JSONL file. Malformed and
// blank lines are skipped. A missing file yields no records and no error.
func ReadAllRecords(path string) ([]TransitionRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var records []TransitionRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec TransitionRecord
		if json.Unmarshal(line, &rec) != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}

// Latest keeps the newest record per upstream.
func Latest(records []TransitionRecord) map[string]TransitionRecord {
	latest := make(map[string]TransitionRecord, len(records))
	for _, rec := range records {
		if existing, ok := latest[rec.Upstream]; !ok || rec.Timestamp.After(existing.Timestamp) {
			latest[rec.Upstream] = rec
		}
	}
	return latest
}

// Restore seeds registered upstreams with their last recorded status so the
// first probe reports a real transition. Records for another target are
// ignored. It returns the number of upstreams restored.
func Restore(path string, store StateUpdater, logger zerolog.Logger) (int, error) {
	records, err := ReadAllRecords(path)
	if err != nil {
		return 0, err
	}

	restored := 0
	for name, rec := range Latest(records) {
		u, ok := store.Get(name)
		if !ok || u.Target != rec.Target {
			continue
		}
		store.Update(name, func(u *state.Upstream) {
			ts := rec.Timestamp
			u.Status = rec.NextStatus
			u.LastStateChange = &ts
		})
		restored++
	}
	logger.Info().Int("restored", restored).Int("records", len(records)).Msg("history restored")
	return restored, nil
}

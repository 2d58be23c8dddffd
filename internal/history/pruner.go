package history

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const defaultRetentionDays = 30

// Prune removes records older than retentionDays from the JSONL file at path
// using a temp file and rename. retentionDays <= 0 means 30 days.
func Prune(path string, retentionDays int, logger zerolog.Logger) (removed int, err error) {
	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}

	records, err := ReadAllRecords(path)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	kept := make([]TransitionRecord, 0, len(records))
	for _, rec := range records {
		if !rec.Timestamp.Before(cutoff) {
			kept = append(kept, rec)
		}
	}

	removed = len(records) - len(kept)
	if removed == 0 {
		logger.Debug().Int("total", len(records)).Msg("history prune: nothing to remove")
		return 0, nil
	}

	if err := writeAtomic(path, kept); err != nil {
		return 0, err
	}

	logger.Info().
		Int("before", len(records)).
		Int("after", len(kept)).
		Int("removed", removed).
		Msg("history prune complete")
	return removed, nil
}

func writeAtomic(path string, records []TransitionRecord) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(f)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			f.Close()
			os.Remove(tmpPath)
			return err
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Pruner runs periodic history file pruning.
type Pruner struct {
	path          string
	retentionDays int
	writer        *FileWriter
	logger        zerolog.Logger
}

// NewPruner creates a Pruner for the file at path. When writer is the
// FileWriter appending to the same file, appends wait while a prune runs and
// continue in the replacement file.
func NewPruner(path string, retentionDays int, writer *FileWriter, logger zerolog.Logger) *Pruner {
	return &Pruner{
		path:          path,
		retentionDays: retentionDays,
		writer:        writer,
		logger:        logger,
	}
}

// Run prunes immediately, then every 24 hours until ctx is cancelled.
func (p *Pruner) Run(ctx context.Context) error {
	p.runOnce()

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.runOnce()
		}
	}
}

func (p *Pruner) runOnce() {
	prune := func() (int, error) { return Prune(p.path, p.retentionDays, p.logger) }
	var err error
	if p.writer != nil {
		_, err = p.writer.pruneLocked(prune)
	} else {
		_, err = prune()
	}
	if err != nil {
		p.logger.Warn().Err(err).Msg("history prune failed")
	}
}

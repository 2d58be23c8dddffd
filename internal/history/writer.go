// Package history keeps an append-only JSONL log of upstream health transitions.
package history

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rathix/devproxy/internal/state"
)

// TransitionRecord captures a single health-status transition for an upstream.
type TransitionRecord struct {
	Timestamp  time.Time          `json:"ts"`
	Upstream   string             `json:"upstream"`
	Target     string             `json:"target"`
	PrevStatus state.HealthStatus `json:"prev"`
	NextStatus state.HealthStatus `json:"next"`
	HTTPCode   *int               `json:"code"`
	ResponseMs *int64             `json:"ms"`
}

// Recorder persists health-status transition records.
type Recorder interface {
	Record(TransitionRecord) error
	Close() error
}

// FileWriter implements Recorder by appending JSONL to a file.
type FileWriter struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	logger zerolog.Logger
}

// NewFileWriter opens (or creates) the file at path for append-only writing.
func NewFileWriter(path string, logger zerolog.Logger) (*FileWriter, error) {
	f, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	return &FileWriter{
		path:   path,
		file:   f,
		logger: logger,
	}, nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

// Record marshals rec as JSON and appends it as a single line.
func (w *FileWriter) Record(rec TransitionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err = w.file.Write(data); err != nil {
		w.logger.Error().Err(err).Str("file", w.path).Msg("failed to write history record")
	}
	return err
}

// pruneLocked runs prune with appends paused and reopens the file when prune
// replaced it on disk.
func (w *FileWriter) pruneLocked(prune func() (int, error)) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	removed, err := prune()
	if err != nil || removed == 0 {
		return removed, err
	}
	_ = w.file.Close()
	f, err := openAppend(w.path)
	if err != nil {
		return removed, err
	}
	w.file = f
	return removed, nil
}

// Close closes the underlying file handle.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// NoopWriter is a Recorder that discards all records.
type NoopWriter struct{}

// Record discards the record and returns nil.
func (NoopWriter) Record(TransitionRecord) error { return nil }

// Close is a no-op and returns nil.
func (NoopWriter) Close() error { return nil }

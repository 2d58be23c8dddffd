package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 300 * time.Millisecond

// ReloadCallback receives the re-read config file. cfg is nil when the file
// could not be parsed; errs holds the parse or validation problems.
type ReloadCallback func(cfg *Config, errs []error)

// Watcher reloads the config file when its content changes on disk.
type Watcher struct {
	path     string
	callback ReloadCallback
	logger   zerolog.Logger
	debounce time.Duration

	// digest of the content last handed to callback, or of the file as it
	// was when Run started. nil means the file is absent.
	digest []byte
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// NewWatcher creates a watcher for the config file at path. The caller is
// expected to have loaded the file already; only later changes are reported.
func NewWatcher(path string, callback ReloadCallback, logger zerolog.Logger, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		path:     path,
		callback: callback,
		logger:   logger,
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks until ctx is cancelled, then returns nil. The parent directory
// is watched so editors that save by renaming a temp file are seen.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		return err
	}
	if data, err := os.ReadFile(w.path); err == nil {
		w.digest = digestOf(data)
	}
	w.logger.Debug().Str("file", w.path).Msg("watching config file")

	name := filepath.Base(w.path)
	settle := time.NewTimer(time.Hour)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			settle.Reset(w.debounce)

		case <-settle.C:
			w.check()

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("fsnotify error")
		}
	}
}

// check re-reads the file and calls back only when its bytes changed.
func (w *Watcher) check() {
	data, err := os.ReadFile(w.path)
	if errors.Is(err, fs.ErrNotExist) {
		if w.digest != nil {
			w.logger.Warn().Str("file", w.path).Msg("config file removed, keeping current config")
		}
		w.digest = nil
		return
	}
	if err != nil {
		w.logger.Warn().Err(err).Str("file", w.path).Msg("config file unreadable, keeping current config")
		return
	}

	sum := digestOf(data)
	if bytes.Equal(sum, w.digest) {
		w.logger.Debug().Str("file", w.path).Msg("config file touched without changes")
		return
	}
	w.digest = sum

	cfg, errs := decode(w.path, data)
	w.logger.Info().
		Str("file", w.path).
		Int("bytes", len(data)).
		Bool("parsed", cfg != nil).
		Int("problems", len(errs)).
		Msg("config file changed")
	w.callback(cfg, errs)
}

func digestOf(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// Package sse streams upstream health and config reload events to the browser.
package sse

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rathix/devproxy/internal/state"
)

// StateSource is what the broker reads and subscribes to.
type StateSource interface {
	All() []state.Upstream
	Subscribe() <-chan state.Event
	Unsubscribe(<-chan state.Event)
	ConfigErrors() []string
	Profile() string
}

// Options carries the static fields of the state snapshot.
type Options struct {
	AppVersion          string
	HealthCheckInterval time.Duration
	// APIBaseURL reports the base URL the frontend should use. Called on every snapshot.
	APIBaseURL func() string
	// KeepaliveInterval defaults to 15s.
	KeepaliveInterval time.Duration
}

const defaultKeepaliveInterval = 15 * time.Second

type sseEvent struct {
	data []byte
}

// Broker manages SSE client connections and broadcasts state events.
type Broker struct {
	source  StateSource
	opts    Options
	logger  zerolog.Logger
	clients map[chan sseEvent]struct{}
	mu      sync.Mutex
}

// NewBroker creates a new SSE broker.
func NewBroker(source StateSource, logger zerolog.Logger, opts Options) *Broker {
	if opts.KeepaliveInterval <= 0 {
		opts.KeepaliveInterval = defaultKeepaliveInterval
	}
	if opts.APIBaseURL == nil {
		opts.APIBaseURL = func() string { return "" }
	}
	return &Broker{
		source:  source,
		opts:    opts,
		logger:  logger,
		clients: make(map[chan sseEvent]struct{}),
	}
}

// Run forwards store events to every connected client until ctx is cancelled.
func (b *Broker) Run(ctx context.Context) error {
	events := b.source.Subscribe()
	defer b.source.Unsubscribe(events)

	for {
		select {
		case <-ctx.Done():
			b.closeAllClients()
			b.logger.Debug().Msg("SSE broker stopped")
			return nil
		case evt, ok := <-events:
			if !ok {
				b.closeAllClients()
				b.logger.Warn().Msg("SSE broker source channel closed")
				return nil
			}

			var data []byte
			var err error
			switch evt.Type {
			case state.EventAdded, state.EventUpdated:
				data, err = formatSSEEvent("update", evt.Upstream)
			case state.EventRemoved:
				data, err = formatSSEEvent("removed", RemovedEventPayload{Name: evt.Name})
			case state.EventConfigReloaded:
				data, err = b.buildStateEvent()
			default:
				b.logger.Debug().Stringer("type", evt.Type).Msg("unknown state event type")
				continue
			}
			if err != nil {
				b.logger.Debug().Err(err).Msg("failed to format SSE event")
				continue
			}

			b.broadcast(sseEvent{data: data})
		}
	}
}

func (b *Broker) closeAllClients() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.clients {
		close(ch)
		delete(b.clients, ch)
	}
}

// broadcast sends evt to every client, skipping clients whose buffer is full.
func (b *Broker) broadcast(evt sseEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.clients {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (b *Broker) addClient(ch chan sseEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[ch] = struct{}{}
	b.logger.Debug().Int("clients", len(b.clients)).Msg("SSE client connected")
}

// removeClient unregisters ch. Channels closed by closeAllClients are already gone.
func (b *Broker) removeClient(ch chan sseEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, ch)
	b.logger.Debug().Int("clients", len(b.clients)).Msg("SSE client disconnected")
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// ServeHTTP sends the current snapshot, then streams events until the client
// disconnects or the broker stops.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// Register before the snapshot so no update is missed.
	clientCh := make(chan sseEvent, 64)
	b.addClient(clientCh)
	defer b.removeClient(clientCh)

	initial, err := b.buildStateEvent()
	if err != nil {
		b.logger.Debug().Err(err).Msg("failed to format initial state event")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := writeAndFlush(w, rc, initial); err != nil {
		b.logger.Debug().Err(err).Msg("failed to write initial state event")
		return
	}

	keepalive := time.NewTicker(b.opts.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-clientCh:
			if !ok {
				return
			}
			if err := writeAndFlush(w, rc, evt.data); err != nil {
				b.logger.Debug().Err(err).Msg("failed to write SSE event")
				return
			}
			keepalive.Reset(b.opts.KeepaliveInterval)
		case <-keepalive.C:
			if err := writeAndFlush(w, rc, formatKeepalive()); err != nil {
				b.logger.Debug().Err(err).Msg("failed to write keepalive")
				return
			}
		}
	}
}

func writeAndFlush(w http.ResponseWriter, rc *http.ResponseController, payload []byte) error {
	if _, err := w.Write(payload); err != nil {
		return err
	}
	return rc.Flush()
}

func (b *Broker) buildStateEvent() ([]byte, error) {
	return formatSSEEvent("state", StateEventPayload{
		AppVersion:            b.opts.AppVersion,
		Profile:               b.source.Profile(),
		APIBaseURL:            b.opts.APIBaseURL(),
		Upstreams:             b.source.All(),
		HealthCheckIntervalMs: b.opts.HealthCheckInterval.Milliseconds(),
		ConfigErrors:          b.source.ConfigErrors(),
	})
}

// Package health probes each proxy rule's target origin and records the result.
package health

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/rathix/devproxy/internal/history"
	"github.com/rathix/devproxy/internal/metrics"
	"github.com/rathix/devproxy/internal/state"
)

// DefaultInterval is the probe period when none is configured.
const DefaultInterval = 30 * time.Second

// HTTPProber abstracts *http.Client for testability.
type HTTPProber interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewClient returns the client the checker probes with. A redirect already
// proves the origin is reachable, so redirects are not followed.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Store is the part of the state store the checker reads and writes.
type Store interface {
	All() []state.Upstream
	Update(name string, fn func(*state.Upstream))
}

// Checker performs periodic HTTP probes against every upstream.
type Checker struct {
	store    Store
	client   HTTPProber
	interval time.Duration
	recorder history.Recorder
	logger   zerolog.Logger
}

// NewChecker creates a checker. A nil recorder discards transitions.
func NewChecker(store Store, client HTTPProber, interval time.Duration, recorder history.Recorder, logger zerolog.Logger) *Checker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if recorder == nil {
		recorder = history.NoopWriter{}
	}
	return &Checker{
		store:    store,
		client:   client,
		interval: interval,
		recorder: recorder,
		logger:   logger,
	}
}

// Run probes immediately, then at the configured interval, until ctx is
// cancelled.
func (c *Checker) Run(ctx context.Context) error {
	c.CheckAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.CheckAll(ctx)
		}
	}
}

// CheckAll probes every upstream concurrently and waits for all results.
func (c *Checker) CheckAll(ctx context.Context) {
	upstreams := c.store.All()
	if len(upstreams) == 0 {
		return
	}

	start := time.Now()
	var wg sync.WaitGroup
	for _, u := range upstreams {
		wg.Add(1)
		go func(u state.Upstream) {
			defer wg.Done()
			res := c.Probe(ctx, u.HealthURL)
			if ctx.Err() != nil {
				// Shutdown, not an upstream failure.
				return
			}
			c.store.Update(u.Name, func(cur *state.Upstream) {
				// Skip results for a target replaced while the probe ran.
				if cur.HealthURL != u.HealthURL {
					return
				}
				c.applyResult(cur, res)
			})
		}(u)
	}
	wg.Wait()

	c.logger.Debug().
		Int("upstreams", len(upstreams)).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("health check cycle complete")
}

const maxSnippetLen = 256

// Result is the outcome of a single probe.
type Result struct {
	Status         state.HealthStatus
	HTTPCode       *int
	ResponseTimeMs int64
	ErrorSnippet   *string
}

// Probe performs one GET against url. Any HTTP response below 500 means the
// origin is reachable; 5xx and transport errors mean it is not.
func (c *Checker) Probe(ctx context.Context, url string) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		msg := err.Error()
		return Result{Status: state.StatusUnhealthy, ErrorSnippet: &msg}
	}
	req.Header.Set("User-Agent", "devproxy-health/1")

	start := time.Now()
	resp, err := c.client.Do(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		msg := truncate(err.Error())
		return Result{Status: state.StatusUnhealthy, ResponseTimeMs: elapsed, ErrorSnippet: &msg}
	}
	defer resp.Body.Close()

	code := resp.StatusCode
	res := Result{
		Status:         classifyStatus(code),
		HTTPCode:       &code,
		ResponseTimeMs: elapsed,
	}
	if res.Status == state.StatusUnhealthy {
		res.ErrorSnippet = readSnippet(resp.Body)
	}
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return res
}

// applyResult updates probe fields on u. Called under the store lock.
func (c *Checker) applyResult(u *state.Upstream, res Result) {
	previous := u.Status

	u.Status = res.Status
	u.HTTPCode = res.HTTPCode
	elapsed := res.ResponseTimeMs
	u.ResponseTimeMs = &elapsed
	u.ErrorSnippet = res.ErrorSnippet

	now := time.Now()
	u.LastChecked = &now
	metrics.SetUpstreamUp(u.Name, res.Status == state.StatusHealthy)

	if res.Status == previous {
		return
	}
	u.LastStateChange = &now

	evt := c.logger.Info()
	if res.Status == state.StatusUnhealthy {
		evt = c.logger.Warn()
	}
	if res.ErrorSnippet != nil {
		evt = evt.Str("error", *res.ErrorSnippet)
	}
	evt.Str("upstream", u.Name).
		Str("target", u.Target).
		Str("from", string(previous)).
		Str("to", string(res.Status)).
		Msg("upstream health changed")

	if err := c.recorder.Record(history.TransitionRecord{
		Timestamp:  now.UTC(),
		Upstream:   u.Name,
		Target:     u.Target,
		PrevStatus: previous,
		NextStatus: res.Status,
		HTTPCode:   res.HTTPCode,
		ResponseMs: &elapsed,
	}); err != nil {
		c.logger.Warn().Err(err).Str("upstream", u.Name).Msg("failed to record transition")
	}
}

func classifyStatus(code int) state.HealthStatus {
	if code < http.StatusInternalServerError {
		return state.StatusHealthy
	}
	return state.StatusUnhealthy
}

// readSnippet returns the first line of body, truncated to maxSnippetLen.
func readSnippet(body io.Reader) *string {
	// One byte past the limit tells truncate whether a rune was split.
	data, err := io.ReadAll(io.LimitReader(body, maxSnippetLen+1))
	if err != nil || len(data) == 0 {
		return nil
	}
	s := string(data)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	s = strings.TrimSpace(truncate(s))
	if s == "" {
		return nil
	}
	return &s
}

// truncate cuts s to at most maxSnippetLen bytes on a rune boundary.
func truncate(s string) string {
	if len(s) <= maxSnippetLen {
		return s
	}
	n := maxSnippetLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

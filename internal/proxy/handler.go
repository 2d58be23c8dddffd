package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/rathix/devproxy/internal/log"
	"github.com/rathix/devproxy/internal/metrics"
)

// Options tunes how a Handler reaches its upstream.
type Options struct {
	// Transport overrides the upstream round tripper. When nil a pooled
	// transport honoring the rule's timeout is used.
	Transport http.RoundTripper
	// FlushInterval is passed to httputil.ReverseProxy. Streaming responses
	// such as SSE are always flushed immediately.
	FlushInterval time.Duration
}

// Handler forwards requests matching one rule to its target.
type Handler struct {
	rule  Rule
	rp    *httputil.ReverseProxy
	owned *http.Transport
}

// NewHandler builds the reverse proxy for rule.
func NewHandler(rule Rule, opts Options) *Handler {
	h := &Handler{rule: rule}

	transport := opts.Transport
	if transport == nil {
		h.owned = newBaseTransport(rule.Timeout)
		transport = h.owned
	}

	h.rp = &httputil.ReverseProxy{
		Rewrite:       h.rewrite,
		Transport:     instrument(transport),
		FlushInterval: opts.FlushInterval,
		ErrorHandler:  h.handleError,
	}
	return h
}

// Rule returns the rule served by h.
func (h *Handler) Rule() Rule {
	return h.rule
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
	h.rp.ServeHTTP(ww, r)
	metrics.RecordProxy(h.rule.Name, r.Method, ww.Status(), time.Since(start).Seconds())
}

// Close releases idle upstream connections held by h.
func (h *Handler) Close() {
	if h.owned != nil {
		h.owned.CloseIdleConnections()
	}
}

func (h *Handler) rewrite(pr *httputil.ProxyRequest) {
	target := h.rule.Target
	in := pr.In.URL

	upstreamPath := RewritePath(in.Path, h.rule.Prefix, h.rule.Rewrite)
	pr.Out.URL.Scheme = target.Scheme
	pr.Out.URL.Host = target.Host
	pr.Out.URL.Path = joinPath(target.Path, upstreamPath)
	pr.Out.URL.RawPath = ""
	if in.RawPath != "" {
		pr.Out.URL.RawPath = joinPath(target.EscapedPath(), RewritePath(in.RawPath, h.rule.Prefix, h.rule.Rewrite))
	}
	if target.RawQuery != "" && in.RawQuery != "" {
		pr.Out.URL.RawQuery = target.RawQuery + "&" + in.RawQuery
	} else if target.RawQuery != "" {
		pr.Out.URL.RawQuery = target.RawQuery
	}

	pr.SetXForwarded()

	if h.rule.ChangeOrigin {
		// Empty Host makes the client use URL.Host.
		pr.Out.Host = ""
	} else {
		pr.Out.Host = pr.In.Host
	}

	logger := log.FromContext(pr.In.Context(), "proxy")
	logger.Debug().
		Str(log.FieldRule, h.rule.Name).
		Str(log.FieldPath, in.Path).
		Str(log.FieldUpstream, pr.Out.URL.Path).
		Str(log.FieldTarget, target.Host).
		Msg("forwarding request")
}

type errorResponse struct {
	Error     string `json:"error"`
	Rule      string `json:"rule"`
	Target    string `json:"target"`
	Detail    string `json:"detail"`
	RequestID string `json:"requestId,omitempty"`
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	reason := classifyError(err)
	metrics.RecordUpstreamError(h.rule.Name, reason)

	logger := log.FromContext(r.Context(), "proxy")
	evt := logger.Warn()
	if reason == "canceled" {
		evt = logger.Debug()
	}
	evt.Err(err).
		Str(log.FieldEvent, "proxy.upstream_error").
		Str(log.FieldRule, h.rule.Name).
		Str(log.FieldTarget, h.rule.Target.String()).
		Str(log.FieldPath, r.URL.Path).
		Str("reason", reason).
		Msg("upstream request failed")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error:     "upstream unavailable",
		Rule:      h.rule.Name,
		Target:    h.rule.Target.String(),
		Detail:    reason,
		RequestID: log.RequestIDFromContext(r.Context()),
	})
}

func classifyError(err error) string {
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	return "unreachable"
}

package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rathix/devproxy/internal/log"
	"github.com/rathix/devproxy/internal/state"
)

// StatusSource is the part of the state store the status endpoints read.
type StatusSource interface {
	All() []state.Upstream
	Profile() string
	ConfigErrors() []string
	LastReload() time.Time
}

// UpstreamsResponse is the body of the upstreams endpoint.
type UpstreamsResponse struct {
	Profile      string           `json:"profile"`
	Upstreams    []state.Upstream `json:"upstreams"`
	ConfigErrors []string         `json:"configErrors"`
	LastReload   *time.Time       `json:"lastReload"`
}

// UpstreamsHandler serves a snapshot of every upstream and its last probe.
func UpstreamsHandler(src StatusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := UpstreamsResponse{
			Profile:      src.Profile(),
			Upstreams:    src.All(),
			ConfigErrors: src.ConfigErrors(),
		}
		if resp.ConfigErrors == nil {
			resp.ConfigErrors = []string{}
		}
		if t := src.LastReload(); !t.IsZero() {
			resp.LastReload = &t
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, r, http.StatusOK, resp)
	}
}

// HealthzHandler reports that the process is serving. It does not depend on
// upstream health.
func HealthzHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := log.FromContext(r.Context(), "server")
		logger.Debug().Err(err).Str(log.FieldPath, r.URL.Path).Msg("failed to write JSON response")
	}
}

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSONError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorBody{Error: msg, RequestID: log.RequestIDFromContext(r.Context())})
}

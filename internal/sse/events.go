package sse

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/rathix/devproxy/internal/state"
)

// StateEventPayload is the full snapshot sent on connect and after a config reload.
type StateEventPayload struct {
	AppVersion            string           `json:"appVersion"`
	Profile               string           `json:"profile"`
	APIBaseURL            string           `json:"apiBaseUrl"`
	Upstreams             []state.Upstream `json:"upstreams"`
	HealthCheckIntervalMs int64            `json:"healthCheckIntervalMs"`
	ConfigErrors          []string         `json:"configErrors"`
}

// RemovedEventPayload identifies an upstream whose rule was removed.
type RemovedEventPayload struct {
	Name string `json:"name"`
}

// formatSSEEvent formats an SSE event with the given type and JSON-encoded data.
func formatSSEEvent(eventType string, data any) ([]byte, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal SSE event data: %w", err)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "event: %s\ndata: %s\n\n", eventType, jsonData)
	return buf.Bytes(), nil
}

// formatKeepalive returns an SSE comment line.
func formatKeepalive() []byte {
	return []byte(":keepalive\n\n")
}

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONIncludesService(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: &buf, Service: "devproxy-test"})
	l.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "devproxy-test", entry["service"])
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "info", entry["level"])
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: &buf, Level: "warn"})
	l.Info().Msg("dropped")
	l.Warn().Msg("kept")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept")
}

func TestNewInvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: &buf, Level: "chatty"})
	l.Debug().Msg("debug-line")
	l.Info().Msg("info-line")

	assert.NotContains(t, buf.String(), "debug-line")
	assert.Contains(t, buf.String(), "info-line")
}

func TestNewTextFormatIsNotJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: &buf, Format: "text"})
	l.Info().Str("rule", "api").Msg("proxy ready")

	out := buf.String()
	assert.Contains(t, out, "proxy ready")
	assert.False(t, strings.HasPrefix(strings.TrimSpace(out), "{"))
}

func TestFromContextAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	prev := Base()
	t.Cleanup(func() {
		mu.Lock()
		base = prev
		mu.Unlock()
	})
	Configure(Config{Output: &buf})

	ctx := ContextWithRequestID(context.Background(), "req-123")
	l := FromContext(ctx, "proxy")
	l.Info().Msg("forwarded")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-123", entry[FieldRequestID])
	assert.Equal(t, "proxy", entry[FieldComponent])
}

func TestRequestIDFromContextMissing(t *testing.T) {
	assert.Equal(t, "", RequestIDFromContext(context.Background()))
}

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Nil(t, p.tp)
	assert.NoError(t, p.Shutdown(context.Background()))

	_, span := Tracer("test").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid(), "noop provider should produce invalid span contexts")
	span.End()
}

func TestNewProvider_UnsupportedExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Exporter: "zipkin"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported exporter type")
}

func TestNewProvider_HTTPExporter(t *testing.T) {
	ctx := context.Background()
	p, err := NewProvider(ctx, Config{Exporter: ExporterHTTP, Endpoint: "127.0.0.1:4318", ServiceVersion: "test"})
	require.NoError(t, err)
	require.NotNil(t, p.tp)

	// No spans were recorded, so nothing needs to reach the collector.
	assert.NoError(t, p.Shutdown(ctx))

	_, err = NewProvider(ctx, Config{})
	require.NoError(t, err)
}

func TestHTTPAttributes(t *testing.T) {
	attrs := HTTPAttributes("GET", "/api/*", 0)
	assert.Equal(t, []attribute.KeyValue{
		attribute.String(HTTPMethodKey, "GET"),
		attribute.String(HTTPRouteKey, "/api/*"),
	}, attrs)

	attrs = HTTPAttributes("POST", "/api/*", 502)
	assert.Len(t, attrs, 3)
	assert.Equal(t, attribute.Int(HTTPStatusCodeKey, 502), attrs[2])
}

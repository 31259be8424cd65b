package tracer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"warrior/internal/infra/config"
)

func TestSetupNoopProviders(t *testing.T) {
	for _, cfg := range []config.TracerConfig{
		{Enabled: false, Exporter: "stdout"},
		{Enabled: true, Exporter: "noop"},
		{Enabled: true, Exporter: ""},
	} {
		shutdown, err := Setup(context.Background(), cfg)
		require.NoError(t, err)
		assert.IsType(t, noop.TracerProvider{}, otel.GetTracerProvider())
		assert.NoError(t, shutdown(context.Background()))
	}
}

func TestSetupUnsupportedExporter(t *testing.T) {
	_, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: "jaeger"})
	assert.ErrorContains(t, err, "unsupported exporter")
}

func TestStdoutExporterWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spans.json")
	shutdown, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: "stdout", Output: path})
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), "test.actuation",
		trace.WithAttributes(StringAttr("test.kind", "normal"), IntAttr("expect.line", 42)))
	SetFailed(span, "0.0 != 5.0 at line 42")
	span.End()
	require.NoError(t, shutdown(context.Background()))
	otel.SetTracerProvider(noop.NewTracerProvider())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "test.actuation")
	assert.Contains(t, string(data), "expect.line")
}

func TestSpanHelpersOnNoop(t *testing.T) {
	otel.SetTracerProvider(noop.NewTracerProvider())
	ctx, span := StartSpan(context.Background(), "test.nominal")
	require.NotNil(t, ctx)
	SetOK(span)
	RecordError(span, errors.New("transport closed"))
	span.End()
}

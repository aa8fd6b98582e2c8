package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func installExporter(t *testing.T, ratio float64) *tracetest.InMemoryExporter {
	t.Helper()
	require.NoError(t, ShutdownOpenTelemetry(context.Background()))

	exporter := tracetest.NewInMemoryExporter()
	require.NoError(t, InitOpenTelemetry(Options{
		ServiceName:    "shopagent-test",
		ServiceVersion: "1.2.3",
		SampleRatio:    ratio,
		Exporter:       exporter,
	}))
	t.Cleanup(func() { _ = ShutdownOpenTelemetry(context.Background()) })
	return exporter
}

func TestInitOpenTelemetry_ExportsSpans(t *testing.T) {
	exporter := installExporter(t, 1)

	ctx, span := StartSpan(context.Background(), "shopagent.commerce", "commerce.call_tool",
		CommerceAttributes("product_get", "acme")...)
	assert.NotEmpty(t, GetTraceID(ctx))
	span.End()
	require.NoError(t, FlushOpenTelemetry(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	got := spans[0]
	assert.Equal(t, "commerce.call_tool", got.Name)

	attrs := attribute.NewSet(got.Attributes...)
	tool, ok := attrs.Value(AttrCommerceTool)
	require.True(t, ok)
	assert.Equal(t, "product_get", tool.AsString())
	method, ok := attrs.Value(semconv.RPCMethodKey)
	require.True(t, ok)
	assert.Equal(t, "tools/call", method.AsString())

	res := got.Resource.Set()
	name, ok := res.Value(semconv.ServiceNameKey)
	require.True(t, ok)
	assert.Equal(t, "shopagent-test", name.AsString())
	version, ok := res.Value(semconv.ServiceVersionKey)
	require.True(t, ok)
	assert.Equal(t, "1.2.3", version.AsString())
}

func TestInitOpenTelemetry_SecondCallKeepsProvider(t *testing.T) {
	exporter := installExporter(t, 1)
	require.NoError(t, InitOpenTelemetry(Options{ServiceName: "other"}))

	_, span := StartSpan(context.Background(), "shopagent.llm", "llm.run",
		LLMAttributes("openai", "primary", "gpt-4o-mini", false)...)
	span.End()
	require.NoError(t, FlushOpenTelemetry(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	attrs := attribute.NewSet(spans[0].Attributes...)
	model, ok := attrs.Value(AttrLLMModel)
	require.True(t, ok)
	assert.Equal(t, "gpt-4o-mini", model.AsString())
}

func TestInitOpenTelemetry_ZeroRatioDropsRootSpans(t *testing.T) {
	exporter := installExporter(t, 0)

	ctx, span := StartSpan(context.Background(), "shopagent.agent", "agent.run")
	span.End()
	require.NoError(t, FlushOpenTelemetry(context.Background()))

	assert.Empty(t, exporter.GetSpans())
	assert.NotEmpty(t, GetTraceID(ctx), "unsampled spans still carry a trace id")
}

func TestShutdownOpenTelemetry_WithoutProvider(t *testing.T) {
	require.NoError(t, ShutdownOpenTelemetry(context.Background()))
	assert.NoError(t, ShutdownOpenTelemetry(context.Background()))
	assert.NoError(t, FlushOpenTelemetry(context.Background()))
}

func TestNewOTLPExporter(t *testing.T) {
	exporter, err := NewOTLPExporter(context.Background(), "localhost:4318", true)
	require.NoError(t, err)
	require.NotNil(t, exporter)
	assert.NoError(t, exporter.Shutdown(context.Background()))
}

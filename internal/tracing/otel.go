package tracing

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Options configure the process tracer provider
type Options struct {
	ServiceName    string
	ServiceVersion string
	// SampleRatio is the share of root traces recorded, clamped to [0, 1].
	// Child spans follow their parent's decision.
	SampleRatio float64
	// Exporter receives finished spans in batches. Nil keeps spans in process,
	// where they still carry trace ids into logs and run records.
	Exporter sdktrace.SpanExporter
}

const defaultServiceName = "shopagent"

var (
	providerMu sync.Mutex
	provider   *sdktrace.TracerProvider
)

// InitOpenTelemetry installs the process-wide tracer provider. A second call
// while a provider is installed is a no-op.
func InitOpenTelemetry(opts Options) error {
	providerMu.Lock()
	defer providerMu.Unlock()
	if provider != nil {
		return nil
	}

	name := opts.ServiceName
	if name == "" {
		name = defaultServiceName
	}
	attrs := []attribute.KeyValue{semconv.ServiceName(name)}
	if opts.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(opts.ServiceVersion))
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		return err
	}

	ratio := opts.SampleRatio
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithResource(res),
	}
	if opts.Exporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(opts.Exporter))
	}

	provider = sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(provider)
	return nil
}

// NewOTLPExporter returns an OTLP/HTTP span exporter for endpoint (host:port).
// The collector is not contacted until the first export.
func NewOTLPExporter(ctx context.Context, endpoint string, insecure bool) (sdktrace.SpanExporter, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return exporter, nil
}

// FlushOpenTelemetry exports every finished span still buffered
func FlushOpenTelemetry(ctx context.Context) error {
	providerMu.Lock()
	tp := provider
	providerMu.Unlock()
	if tp == nil {
		return nil
	}
	return tp.ForceFlush(ctx)
}

// ShutdownOpenTelemetry flushes and uninstalls the tracer provider
func ShutdownOpenTelemetry(ctx context.Context) error {
	providerMu.Lock()
	tp := provider
	provider = nil
	providerMu.Unlock()
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// StartSpan starts a span and records its trace id in ctx when none is set yet
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
	if GetTraceID(ctx) == "" {
		if sc := span.SpanContext(); sc.IsValid() {
			ctx = WithTraceID(ctx, sc.TraceID().String())
		}
	}
	return ctx, span
}

// Span attribute keys shared by the agent packages
const (
	AttrTenantID      = attribute.Key("shopagent.tenant_id")
	AttrSessionKey    = attribute.Key("shopagent.session_key")
	AttrCommerceTool  = attribute.Key("shopagent.commerce.tool")
	AttrLLMProvider   = attribute.Key("gen_ai.system")
	AttrLLMModel      = attribute.Key("gen_ai.request.model")
	AttrLLMProfile    = attribute.Key("shopagent.llm.profile")
	AttrLLMStreaming  = attribute.Key("shopagent.llm.streaming")
	commerceRPCMethod = "tools/call"
)

// CommerceAttributes describe one commerce backend tool call
func CommerceAttributes(tool, tenantID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		semconv.RPCSystemKey.String("jsonrpc"),
		semconv.RPCMethod(commerceRPCMethod),
		AttrCommerceTool.String(tool),
		AttrTenantID.String(tenantID),
	}
}

// LLMAttributes describe one model call against a provider profile
func LLMAttributes(provider, profileID, model string, streaming bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrLLMProvider.String(provider),
		AttrLLMProfile.String(profileID),
		AttrLLMModel.String(model),
		AttrLLMStreaming.Bool(streaming),
	}
}

package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies spans emitted by the gateway in a multi-service
// trace backend.
const TracerName = "ragdesk-gateway"

// TracingConfig mirrors config.TracingConfig.
type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	SampleRate  float64
	Insecure    bool
}

// TracerProvider wraps the OpenTelemetry tracer provider, falling back to
// a no-op tracer when tracing is disabled so callers never nil-check.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing sets up the OTLP/HTTP exporter and installs it as the global
// tracer provider (§13 "grounded on the teacher's observability.InitTracing").
func InitTracing(ctx context.Context, cfg TracingConfig) (*TracerProvider, error) {
	if !cfg.Enabled {
		return &TracerProvider{tracer: otel.Tracer(TracerName)}, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	sampler := sdktrace.TraceIDRatioBased(cfg.SampleRate)
	if cfg.SampleRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else if cfg.SampleRate <= 0.0 {
		sampler = sdktrace.NeverSample()
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	return &TracerProvider{provider: provider, tracer: provider.Tracer(TracerName)}, nil
}

// Tracer returns the tracer to start spans with.
func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// Shutdown flushes and stops the tracer provider. A no-op when tracing is
// disabled.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider != nil {
		return tp.provider.Shutdown(ctx)
	}
	return nil
}

// StartPipelineSpan starts the root span for a single /query invocation
// (§13 span tree).
func StartPipelineSpan(ctx context.Context, tracer trace.Tracer, tenant string, mode string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "pipeline.handle",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("ragdesk.tenant", tenant),
			attribute.String("ragdesk.mode", mode),
		),
	)
}

// StartCacheSpan starts a child span around a cache lookup or write.
func StartCacheSpan(ctx context.Context, tracer trace.Tracer, operation string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "cache."+operation, trace.WithSpanKind(trace.SpanKindInternal))
}

// StartSourceSearchSpan starts a child span for one source's vector search
// during fan-out.
func StartSourceSearchSpan(ctx context.Context, tracer trace.Tracer, sourceID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "queryengine.search",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("ragdesk.source_id", sourceID)),
	)
}

// StartLLMSpan starts a child span around the LLM completion call.
func StartLLMSpan(ctx context.Context, tracer trace.Tracer, model string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "responsebuilder.complete",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("gen_ai.request.model", model)),
	)
}

// RecordError records an error on a span and flags it, the way every
// collaborator call site should on failure.
func RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetAttributes(attribute.Bool("error", true))
}

// Package observability provides OpenTelemetry tracing, an in-process metrics
// registry and logger construction for vecrag.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the name used for the vecrag tracer.
	TracerName = "github.com/efebarandurmaz/vecrag"
)

// TracingConfig configures the OpenTelemetry tracing.
type TracingConfig struct {
	// ServiceName is the name of the service (default: "vecrag")
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// Environment is the deployment environment (dev, staging, prod)
	Environment string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317").
	// If empty, tracing is disabled.
	OTLPEndpoint string

	// SampleRate is the trace sampling rate (0.0 to 1.0, default: 1.0)
	SampleRate float64
}

// DefaultTracingConfig returns a default tracing configuration.
func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		ServiceName:    "vecrag",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		SampleRate:     1.0,
	}
}

// TracerProvider wraps the OpenTelemetry tracer provider.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing initializes OpenTelemetry tracing.
// Returns a no-op tracer if OTLPEndpoint is empty.
func InitTracing(ctx context.Context, cfg *TracingConfig) (*TracerProvider, error) {
	if cfg == nil {
		cfg = DefaultTracingConfig()
	}

	if cfg.OTLPEndpoint == "" {
		return &TracerProvider{
			tracer: otel.Tracer(TracerName),
		}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{
		provider: provider,
		tracer:   provider.Tracer(TracerName),
	}, nil
}

// Shutdown flushes and stops the tracer provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider != nil {
		return tp.provider.Shutdown(ctx)
	}
	return nil
}

// Tracer returns the underlying tracer.
func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// Span kinds recorded under the vecrag.span.kind attribute.
const (
	SpanKindQuery    = "query"
	SpanKindRetrieve = "retrieve"
	SpanKindEmbed    = "embed"
	SpanKindBulk     = "bulk_insert"
	SpanKindSync     = "mirror_sync"
)

// StartQuerySpan starts a span for an index query.
func StartQuerySpan(ctx context.Context, metric string, k int) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "index.query",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("vecrag.span.kind", SpanKindQuery),
			attribute.String("index.metric", metric),
			attribute.Int("index.k", k),
		),
	)
}

// StartRetrieveSpan starts a span for a pipeline retrieval.
func StartRetrieveSpan(ctx context.Context, mode string, k int) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "rag.retrieve",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("vecrag.span.kind", SpanKindRetrieve),
			attribute.String("retrieve.mode", mode),
			attribute.Int("retrieve.k", k),
		),
	)
}

// StartEmbedSpan starts a span for an embedding provider call.
func StartEmbedSpan(ctx context.Context, provider string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "embed.text",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("vecrag.span.kind", SpanKindEmbed),
			attribute.String("embed.provider", provider),
		),
	)
}

// StartBulkSpan starts a span for a bulk insert.
func StartBulkSpan(ctx context.Context, count int) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "index.bulk_insert",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("vecrag.span.kind", SpanKindBulk),
			attribute.Int("bulk.count", count),
		),
	)
}

// StartSyncSpan starts a span for a mirror sync.
func StartSyncSpan(ctx context.Context, target string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "mirror.sync",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("vecrag.span.kind", SpanKindSync),
			attribute.String("mirror.target", target),
		),
	)
}

// RecordResults records the number of results on a span.
func RecordResults(span trace.Span, n int) {
	span.SetAttributes(attribute.Int("results.count", n))
}

// RecordBulkResult records bulk insert outcome on a span.
func RecordBulkResult(span trace.Span, total, failed int) {
	span.SetAttributes(
		attribute.Int("bulk.total", total),
		attribute.Int("bulk.failed", failed),
	)
	if failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d inserts failed", failed, total))
	}
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

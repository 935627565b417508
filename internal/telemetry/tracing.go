// Package telemetry wires request/attempt tracing on top of the teacher's
// metrics and logging packages. One span per request (chat.request) and one
// child span per attempted candidate (chat.attempt), per spec.md §4.10.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies this package's spans in the OTel tracer provider.
const tracerName = "github.com/ferrogate/gateway"

// Config configures the OTLP HTTP exporter. An empty Endpoint disables
// tracing: NewProvider then returns a no-op provider so the gateway runs
// without a collector configured.
type Config struct {
	Endpoint    string
	ServiceName string
}

// NewProvider builds a TracerProvider exporting via OTLP/HTTP, grounded on
// the flemzord-sclaw pack repo's choice of the HTTP exporter over gRPC --
// avoiding a second long-lived connection class purely for traces, which
// would cut against spec.md §5's "HTTP clients... not shared across
// providers" resource discipline. Returns a shutdown func to flush on exit.
func NewProvider(ctx context.Context, cfg Config) (trace.TracerProvider, func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		noop := otel.GetTracerProvider()
		return noop, func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: building OTLP HTTP exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "ferrogate-gateway"
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: building resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, tp.Shutdown, nil
}

// StartRequestSpan starts the top-level chat.request span for one inbound
// call.
func StartRequestSpan(ctx context.Context, tp trace.TracerProvider, modelID string, streaming bool) (context.Context, trace.Span) {
	tracer := tp.Tracer(tracerName)
	return tracer.Start(ctx, "chat.request", trace.WithAttributes(
		attribute.String("model.id", modelID),
		attribute.Bool("request.streaming", streaming),
	))
}

// StartAttemptSpan starts a chat.attempt child span for one candidate.
func StartAttemptSpan(ctx context.Context, tp trace.TracerProvider, providerKey string, tier int) (context.Context, trace.Span) {
	tracer := tp.Tracer(tracerName)
	return tracer.Start(ctx, "chat.attempt", trace.WithAttributes(
		attribute.String("provider.key", providerKey),
		attribute.Int("provider.tier", tier),
	))
}

// EndAttemptSpan records the attempt outcome on span and ends it.
func EndAttemptSpan(span trace.Span, status string, err error) {
	span.SetAttributes(attribute.String("attempt.status", status))
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

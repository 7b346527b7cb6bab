package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"mitonet/internal/ingest"
)

// TracerConfig controls span sampling and export.
type TracerConfig struct {
	SampleRatio float64
	// Exporter receives finished spans synchronously; spans are dropped when nil.
	Exporter sdktrace.SpanExporter
}

// Tracer adapts an OpenTelemetry tracer to ingest.Tracer.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer builds a tracer provider with a parent-based ratio sampler.
func NewTracer(cfg TracerConfig) *Tracer {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(selectSampler(cfg.SampleRatio)),
	}
	if cfg.Exporter != nil {
		opts = append(opts, sdktrace.WithSyncer(cfg.Exporter))
	}
	tp := sdktrace.NewTracerProvider(opts...)
	return &Tracer{provider: tp, tracer: tp.Tracer(ServiceName)}
}

func selectSampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// Start opens a span named operation.
func (t *Tracer) Start(ctx context.Context, operation string) (context.Context, ingest.Span) {
	ctx, span := t.tracer.Start(ctx, operation, trace.WithAttributes(attribute.String(attrService, ServiceName)))
	return ctx, otelSpan{span: span}
}

// Shutdown flushes and stops the provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) End(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()
}

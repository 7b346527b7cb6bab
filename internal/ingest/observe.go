package ingest

import (
	"context"
	"time"

	"mitonet/pkg/domain"
)

// Metrics receives run and record outcomes.
type Metrics interface {
	// Observe records one operation outcome and its duration.
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
	// Records adds the per-chunk record counters of a source.
	Records(source string, c domain.Counters)
}

// Tracer opens spans around runs and chunks.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, Span)
}

// Span is ended with the operation's error, if any.
type Span interface {
	End(err error)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}
func (noopMetrics) Records(string, domain.Counters)                     {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

package observability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mitonet/pkg/domain"
)

// IngestMetrics implements ingest.Metrics with Prometheus collectors.
type IngestMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	records  *prometheus.CounterVec
}

// NewIngestMetrics registers the ingestion collectors on reg.
func NewIngestMetrics(reg prometheus.Registerer) (*IngestMetrics, error) {
	m := &IngestMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mitonet",
			Subsystem: "ingest",
			Name:      "operations_total",
			Help:      "Ingestion operations by source and result.",
		}, []string{"source", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mitonet",
			Subsystem: "ingest",
			Name:      "operation_duration_seconds",
			Help:      "Duration of ingestion operations.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"source"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mitonet",
			Subsystem: "ingest",
			Name:      "records_total",
			Help:      "Source records by outcome.",
		}, []string{"source", "outcome"}),
	}
	for _, c := range []prometheus.Collector{m.runs, m.duration, m.records} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register ingest metrics: %w", err)
		}
	}
	return m, nil
}

// Observe records one operation outcome.
func (m *IngestMetrics) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	source := strings.TrimPrefix(operation, "ingest.")
	result := "error"
	if success {
		result = "success"
	}
	m.runs.WithLabelValues(source, result).Inc()
	m.duration.WithLabelValues(source).Observe(duration.Seconds())
}

// Records adds per-chunk record counters.
func (m *IngestMetrics) Records(source string, c domain.Counters) {
	m.records.WithLabelValues(source, "processed").Add(float64(c.Processed))
	m.records.WithLabelValues(source, "applied").Add(float64(c.Applied))
	m.records.WithLabelValues(source, "skipped").Add(float64(c.Skipped))
	m.records.WithLabelValues(source, "unresolved").Add(float64(c.Unresolved))
	m.records.WithLabelValues(source, "conflicts").Add(float64(c.Conflicts))
}

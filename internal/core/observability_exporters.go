package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mitonet/internal/ingest"
	"mitonet/pkg/domain"
)

var expvarSeq uint64

// ExpvarMetrics publishes ingest outcomes as one expvar map with three
// children: runs (operation -> success/error counts), duration_ms
// (operation -> total) and records (source -> record counters).
type ExpvarMetrics struct {
	root      *expvar.Map
	runs      *expvar.Map
	durations *expvar.Map
	records   *expvar.Map
	mu        sync.Mutex
}

// ExpvarSnapshot is the decoded form of an ExpvarMetrics map.
type ExpvarSnapshot struct {
	Runs       map[string]map[string]int64 `json:"runs"`
	DurationMS map[string]float64          `json:"duration_ms"`
	Records    map[string]domain.Counters  `json:"records"`
}

// NewExpvarMetrics publishes a map under name, or a generated name when empty.
func NewExpvarMetrics(name string) *ExpvarMetrics {
	if name == "" {
		name = fmt.Sprintf("mitonet_ingest_%d", atomic.AddUint64(&expvarSeq, 1))
	}
	m := &ExpvarMetrics{
		root:      expvar.NewMap(name),
		runs:      new(expvar.Map).Init(),
		durations: new(expvar.Map).Init(),
		records:   new(expvar.Map).Init(),
	}
	m.root.Set("runs", m.runs)
	m.root.Set("duration_ms", m.durations)
	m.root.Set("records", m.records)
	return m
}

// Observe implements ingest.Metrics.
func (m *ExpvarMetrics) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	m.child(m.runs, operation).Add(status, 1)
	m.durations.AddFloat(operation, float64(duration)/float64(time.Millisecond))
}

// Records implements ingest.Metrics.
func (m *ExpvarMetrics) Records(source string, c domain.Counters) {
	src := m.child(m.records, source)
	src.Add("processed", c.Processed)
	src.Add("applied", c.Applied)
	src.Add("skipped", c.Skipped)
	src.Add("unresolved", c.Unresolved)
	src.Add("conflicts", c.Conflicts)
}

func (m *ExpvarMetrics) child(parent *expvar.Map, key string) *expvar.Map {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := parent.Get(key).(*expvar.Map); ok {
		return v
	}
	v := new(expvar.Map).Init()
	parent.Set(key, v)
	return v
}

// Snapshot decodes the current map.
func (m *ExpvarMetrics) Snapshot() (ExpvarSnapshot, error) {
	var s ExpvarSnapshot
	err := json.Unmarshal([]byte(m.root.String()), &s)
	return s, err
}

// WriteTo writes the map as one JSON document.
func (m *ExpvarMetrics) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, m.root.String()+"\n")
	return int64(n), err
}

// SpanRecord is one finished span.
type SpanRecord struct {
	Operation string
	Started   time.Time
	Duration  time.Duration
	Err       string
}

// JSONTracer logs every finished span as a JSON line and keeps the records.
type JSONTracer struct {
	log   *slog.Logger
	mu    sync.Mutex
	spans []SpanRecord
}

// NewJSONTracer writes spans to w; a nil w only retains them.
func NewJSONTracer(w io.Writer) *JSONTracer {
	if w == nil {
		w = io.Discard
	}
	return &JSONTracer{log: slog.New(slog.NewJSONHandler(w, nil))}
}

// Spans returns the finished spans in end order.
func (t *JSONTracer) Spans() []SpanRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SpanRecord(nil), t.spans...)
}

// Start implements ingest.Tracer.
func (t *JSONTracer) Start(ctx context.Context, operation string) (context.Context, ingest.Span) {
	return ctx, &jsonSpan{tracer: t, ctx: ctx, rec: SpanRecord{Operation: operation, Started: time.Now().UTC()}}
}

type jsonSpan struct {
	tracer *JSONTracer
	ctx    context.Context
	rec    SpanRecord
}

func (s *jsonSpan) End(err error) {
	s.rec.Duration = time.Since(s.rec.Started)
	level, status := slog.LevelInfo, "ok"
	if err != nil {
		level, status = slog.LevelError, "error"
		s.rec.Err = err.Error()
	}
	s.tracer.mu.Lock()
	s.tracer.spans = append(s.tracer.spans, s.rec)
	s.tracer.mu.Unlock()

	attrs := []slog.Attr{
		slog.String("operation", s.rec.Operation),
		slog.String("status", status),
		slog.Time("started_at", s.rec.Started),
		slog.Float64("duration_ms", float64(s.rec.Duration)/float64(time.Millisecond)),
	}
	if s.rec.Err != "" {
		attrs = append(attrs, slog.String("error", s.rec.Err))
	}
	s.tracer.log.LogAttrs(s.ctx, level, "span", attrs...)
}

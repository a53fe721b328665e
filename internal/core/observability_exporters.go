package core

import (
	"context"
	"expvar"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var expvarSeq atomic.Uint64

// ExpvarMetricsRecorder publishes operation counters as an expvar map. Keys
// are "<op>.success", "<op>.error" and "<op>.duration_ms".
type ExpvarMetricsRecorder struct {
	name string
	vars *expvar.Map
}

// NewExpvarMetricsRecorder publishes a recorder under name. An empty name gets
// a generated one, since expvar panics on duplicate names.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("fitsync_session_%d", expvarSeq.Add(1))
	}
	return &ExpvarMetricsRecorder{name: name, vars: expvar.NewMap(name)}
}

// Name returns the published expvar name.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	outcome := ".error"
	if success {
		outcome = ".success"
	}
	r.vars.Add(operation+outcome, 1)
	r.vars.AddFloat(operation+".duration_ms", float64(duration)/float64(time.Millisecond))
}

// Count returns the number of operations recorded with the given outcome.
func (r *ExpvarMetricsRecorder) Count(operation string, success bool) int64 {
	key := operation + ".error"
	if success {
		key = operation + ".success"
	}
	if v, ok := r.vars.Get(key).(*expvar.Int); ok {
		return v.Value()
	}
	return 0
}

// LogTracer writes one structured record per finished span. With a JSON
// handler this yields a JSON-lines trace.
type LogTracer struct {
	logger *slog.Logger
	mu     sync.Mutex
	spans  []SpanRecord
}

// SpanRecord is a finished span kept by LogTracer.
type SpanRecord struct {
	Operation string
	Started   time.Time
	Duration  time.Duration
	Err       string
}

// NewLogTracer writes spans to logger. A nil logger only keeps them in memory.
func NewLogTracer(logger *slog.Logger) *LogTracer {
	return &LogTracer{logger: logger}
}

// Start implements Tracer.
func (t *LogTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &logSpan{tracer: t, ctx: ctx, op: operation, started: time.Now()}
}

// Spans returns a copy of the finished spans.
func (t *LogTracer) Spans() []SpanRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SpanRecord(nil), t.spans...)
}

type logSpan struct {
	tracer  *LogTracer
	ctx     context.Context
	op      string
	started time.Time
}

func (s *logSpan) End(err error) {
	rec := SpanRecord{Operation: s.op, Started: s.started.UTC(), Duration: time.Since(s.started)}
	level := slog.LevelInfo
	status := "ok"
	if err != nil {
		rec.Err = err.Error()
		level = slog.LevelError
		status = "error"
	}
	s.tracer.mu.Lock()
	s.tracer.spans = append(s.tracer.spans, rec)
	s.tracer.mu.Unlock()
	if s.tracer.logger == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("operation", rec.Operation),
		slog.String("status", status),
		slog.Time("started_at", rec.Started),
		slog.Float64("duration_ms", float64(rec.Duration)/float64(time.Millisecond)),
	}
	if rec.Err != "" {
		attrs = append(attrs, slog.String("error", rec.Err))
	}
	s.tracer.logger.LogAttrs(s.ctx, level, "span", attrs...)
}

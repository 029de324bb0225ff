package tracing

import (
	"context"
	"sync"
	"time"

	"github.com/NTGPC/ntglogin-sub000/internal/shared/id"
	"go.uber.org/zap"
)

// TraceID identifies one request or execution end to end
type TraceID string

// SpanID identifies a single operation within a trace
type SpanID string

// Span represents a single operation in a trace
type Span struct {
	TraceID   TraceID
	SpanID    SpanID
	ParentID  SpanID
	Name      string
	StartTime time.Time
	Duration  time.Duration
	Fields    []zap.Field
	Err       error
}

// Tracer collects finished spans and writes them to the log
type Tracer struct {
	logger *zap.Logger
	spans  chan *Span

	closeOnce sync.Once
	done      chan struct{}
}

// New creates a tracer and starts its collector goroutine
func New(logger *zap.Logger) *Tracer {
	t := &Tracer{
		logger: logger.Named("trace"),
		spans:  make(chan *Span, 1000),
		done:   make(chan struct{}),
	}
	go t.collect()
	return t
}

// StartSpan opens a span as a child of whatever span ctx carries
func (t *Tracer) StartSpan(ctx context.Context, name string) (*Span, context.Context) {
	traceID := TraceIDFrom(ctx)
	if traceID == "" {
		traceID = TraceID(id.NewRequestID())
	}

	span := &Span{
		TraceID:   traceID,
		SpanID:    SpanID(id.NewSpanID()),
		ParentID:  SpanIDFrom(ctx),
		Name:      name,
		StartTime: time.Now(),
	}

	ctx = context.WithValue(ctx, traceIDKey, traceID)
	ctx = context.WithValue(ctx, spanIDKey, span.SpanID)
	return span, ctx
}

// With attaches structured fields to the span
func (s *Span) With(fields ...zap.Field) {
	s.Fields = append(s.Fields, fields...)
}

// Finish records the duration and outcome and hands the span to the tracer
func (t *Tracer) Finish(s *Span, err error) {
	s.Duration = time.Since(s.StartTime)
	s.Err = err

	select {
	case t.spans <- s:
	default:
		t.logger.Warn("span buffer full, dropping span",
			zap.String("trace_id", string(s.TraceID)),
			zap.String("span_id", string(s.SpanID)),
		)
	}
}

// Trace runs fn inside a span named name
func (t *Tracer) Trace(ctx context.Context, name string, fn func(context.Context) error, fields ...zap.Field) error {
	span, ctx := t.StartSpan(ctx, name)
	span.With(fields...)
	err := fn(ctx)
	t.Finish(span, err)
	return err
}

// Close drains buffered spans and stops the collector
func (t *Tracer) Close() {
	t.closeOnce.Do(func() {
		close(t.spans)
		<-t.done
	})
}

func (t *Tracer) collect() {
	defer close(t.done)
	for span := range t.spans {
		fields := append([]zap.Field{
			zap.String("trace_id", string(span.TraceID)),
			zap.String("span_id", string(span.SpanID)),
			zap.String("operation", span.Name),
			zap.Duration("duration", span.Duration),
		}, span.Fields...)
		if span.ParentID != "" {
			fields = append(fields, zap.String("parent_id", string(span.ParentID)))
		}

		if span.Err != nil {
			t.logger.Warn("span failed", append(fields, zap.Error(span.Err))...)
			continue
		}
		t.logger.Debug("span completed", fields...)
	}
}

type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	spanIDKey  contextKey = "span_id"
)

// WithTraceID seeds ctx with an upstream trace id
func WithTraceID(ctx context.Context, traceID TraceID) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceIDFrom retrieves the trace ID from context
func TraceIDFrom(ctx context.Context) TraceID {
	traceID, _ := ctx.Value(traceIDKey).(TraceID)
	return traceID
}

// SpanIDFrom retrieves the current span ID from context
func SpanIDFrom(ctx context.Context) SpanID {
	spanID, _ := ctx.Value(spanIDKey).(SpanID)
	return spanID
}

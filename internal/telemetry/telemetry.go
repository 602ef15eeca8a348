// Package telemetry wraps the long-running and retry-heavy paths (tend
// cycles, single-command retries, batch sub-batches, stream tasks) in
// OpenTelemetry spans, the way the teacher's cmd/ployz wires a
// TracerProvider around its own operation lifecycle.
package telemetry

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span wraps one in-flight traced operation (a tend cycle, a command
// attempt, a batch sub-request, a stream task).
type Span struct {
	span trace.Span
}

// Start begins a span named name under tracer (no-op if tracer is nil,
// so callers can wire telemetry optionally without nil-checking at every
// call site).
func Start(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, *Span) {
	if tracer == nil {
		return ctx, nil
	}
	spanCtx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return spanCtx, &Span{span: span}
}

// End closes the span, recording err if non-nil.
func (s *Span) End(err error) {
	if s == nil || s.span == nil {
		return
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
	}
	s.span.End()
}

// RecordRetry annotates the current attempt's span with which iteration
// this is, for correlating retry storms in a trace viewer.
func (s *Span) RecordRetry(iteration int) {
	if s == nil || s.span == nil {
		return
	}
	s.span.SetAttributes(attribute.Int("kvstore.retry.iteration", iteration))
}

// Common attribute keys, reused across tend/command/batch/stream spans.
const (
	AttrNamespace   = "kvstore.namespace"
	AttrNode        = "kvstore.node"
	AttrPartitionID = "kvstore.partition_id"
	AttrKeyCount    = "kvstore.key_count"
)

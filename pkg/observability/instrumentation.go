package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentAPICall wraps a backend request with a client span
func (t *Telemetry) InstrumentAPICall(ctx context.Context, endpoint string, fn func(context.Context) error) error {
	ctx, span := t.StartSpan(ctx, fmt.Sprintf("api.%s", endpoint),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("api.endpoint", endpoint),
		),
	)
	defer span.End()

	startTime := time.Now()
	err := fn(ctx)
	finish(span, err, time.Since(startTime))

	return err
}

// InstrumentPollRound wraps one poll round of a task
func (t *Telemetry) InstrumentPollRound(ctx context.Context, taskID, phase string, fn func(context.Context) error) error {
	ctx, span := t.StartSpan(ctx, fmt.Sprintf("poller.%s", phase),
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("poll.phase", phase),
		),
	)
	defer span.End()

	startTime := time.Now()
	err := fn(ctx)
	finish(span, err, time.Since(startTime))

	return err
}

// StartResearchWatch starts the root span for watching a research task
func (t *Telemetry) StartResearchWatch(ctx context.Context, taskID string) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "research.watch",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
		),
	)
}

func finish(span trace.Span, err error, duration time.Duration) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(attribute.Float64("duration.seconds", duration.Seconds()))
}

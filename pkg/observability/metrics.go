package observability

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	meter metric.Meter

	// Counters
	apiRequestsTotal    metric.Int64Counter
	pollRoundsTotal     metric.Int64Counter
	subTaskResultsTotal metric.Int64Counter
	cacheLookupsTotal   metric.Int64Counter
	researchesSubmitted metric.Int64Counter

	// Histograms
	apiRequestDuration metric.Float64Histogram
	researchDuration   metric.Float64Histogram

	// Gauges
	activePolls metric.Int64ObservableGauge

	activePollCount atomic.Int64
}

// NewMetrics creates and initializes all metrics
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{
		meter: meter,
	}

	var err error

	m.apiRequestsTotal, err = meter.Int64Counter(
		"api_requests_total",
		metric.WithDescription("Total number of research backend requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.pollRoundsTotal, err = meter.Int64Counter(
		"poll_rounds_total",
		metric.WithDescription("Total number of status poll rounds"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.subTaskResultsTotal, err = meter.Int64Counter(
		"subtask_results_total",
		metric.WithDescription("Total number of sub-task results applied"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.cacheLookupsTotal, err = meter.Int64Counter(
		"cache_lookups_total",
		metric.WithDescription("Total number of listing cache lookups"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.researchesSubmitted, err = meter.Int64Counter(
		"researches_submitted_total",
		metric.WithDescription("Total number of research queries submitted"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.apiRequestDuration, err = meter.Float64Histogram(
		"api_request_duration_seconds",
		metric.WithDescription("Duration of research backend requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.researchDuration, err = meter.Float64Histogram(
		"research_wait_duration_seconds",
		metric.WithDescription("Time from the first poll until the report was ready"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.activePolls, err = meter.Int64ObservableGauge(
		"active_polls",
		metric.WithDescription("Number of tasks currently being polled"),
		metric.WithUnit("1"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.activePollCount.Load())
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordAPIRequest records one backend request
func (m *Metrics) RecordAPIRequest(ctx context.Context, endpoint string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.apiRequestsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("endpoint", endpoint),
			attribute.String("status", status),
		),
	)
	m.apiRequestDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("endpoint", endpoint),
		),
	)
}

// RecordResearchSubmitted records a submitted research query
func (m *Metrics) RecordResearchSubmitted(ctx context.Context, full bool) {
	if m == nil {
		return
	}
	mode := "quick"
	if full {
		mode = "detailed"
	}
	m.researchesSubmitted.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordPollRound records a parent or sub-task poll round
func (m *Metrics) RecordPollRound(ctx context.Context, phase string) {
	if m == nil {
		return
	}
	m.pollRoundsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", phase)))
}

// RecordSubTaskResult records a sub-task status applied to the result set
func (m *Metrics) RecordSubTaskResult(ctx context.Context, processType, state string) {
	if m == nil {
		return
	}
	m.subTaskResultsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("type", processType),
			attribute.String("state", state),
		),
	)
}

// RecordCacheLookup records a listing cache hit or miss
func (m *Metrics) RecordCacheLookup(ctx context.Context, key string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookupsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("key", key),
			attribute.String("result", result),
		),
	)
}

// RecordPollStarted marks a task as being polled
func (m *Metrics) RecordPollStarted() {
	if m == nil {
		return
	}
	m.activePollCount.Add(1)
}

// RecordPollFinished records the end of polling a task
func (m *Metrics) RecordPollFinished(ctx context.Context, duration time.Duration, outcome string) {
	if m == nil {
		return
	}
	m.activePollCount.Add(-1)
	m.researchDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("outcome", outcome),
		),
	)
}

// GetActivePollCount returns the number of tasks currently being polled
func (m *Metrics) GetActivePollCount() int64 {
	if m == nil {
		return 0
	}
	return m.activePollCount.Load()
}

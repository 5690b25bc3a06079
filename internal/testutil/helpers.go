package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/etdc/insight/pkg/domain"
	"github.com/etdc/insight/pkg/observability"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTimeout provides a standard timeout for test contexts
const TestTimeout = 5 * time.Second

// NewTestContext creates a context with standard test timeout
func NewTestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	t.Cleanup(cancel)
	return ctx
}

// MustJSON marshals v or fails the test
func MustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return data
}

// NewParentStatus creates a research task status listing sub-tasks
func NewParentStatus(t *testing.T, state domain.TaskState, refs ...domain.ProcessRef) *domain.TaskStatus {
	t.Helper()
	status := &domain.TaskStatus{
		State:     state,
		CreatedAt: "2024-05-01T10:00:00",
		Prompt:    "Public opinion on the new water tariff",
	}
	if state.Kind() == domain.StatusSuccess {
		status.FinishedAt = "2024-05-01T10:12:30"
	}
	if len(refs) > 0 {
		status.Result = MustJSON(t, map[string]interface{}{"process_ids": refs})
	}
	return status
}

// NewSubTaskStatus creates a sub-task status whose result.response is response
func NewSubTaskStatus(t *testing.T, state domain.TaskState, response interface{}) *domain.TaskStatus {
	t.Helper()
	status := &domain.TaskStatus{State: state}
	if response != nil {
		status.Result = MustJSON(t, map[string]interface{}{"response": response})
	}
	return status
}

// OpinionPayload builds a {all, ai_response} sub-task response with n
// sources and one opinion per tag
func OpinionPayload(prefix string, n int, tags ...string) map[string]interface{} {
	all := make([]map[string]interface{}, 0, n)
	for i := 0; i < n; i++ {
		all = append(all, map[string]interface{}{
			"url":               fmt.Sprintf("https://example.org/%s/%d", prefix, i),
			"short_description": fmt.Sprintf("%s source %d", prefix, i),
		})
	}
	opinions := make([]map[string]interface{}, 0, len(tags))
	for i, tag := range tags {
		opinions = append(opinions, map[string]interface{}{
			"link":        fmt.Sprintf("https://example.org/%s/%d", prefix, i),
			"opinion":     tag,
			"relev_score": "0.8",
			"summary":     fmt.Sprintf("%s summary %d", prefix, i),
		})
	}
	return map[string]interface{}{"all": all, "ai_response": opinions}
}

// WebPayload builds a web research sub-task response
func WebPayload(research string, citations ...string) map[string]interface{} {
	if citations == nil {
		citations = []string{}
	}
	return map[string]interface{}{"citations": citations, "research": research}
}

// AssertEqual checks if two values are equal
func AssertEqual(t *testing.T, expected, actual interface{}, msg string) {
	t.Helper()
	if expected != actual {
		t.Errorf("%s: expected %v, got %v", msg, expected, actual)
	}
}

// AssertNoError checks if error is nil
func AssertNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Errorf("%s: unexpected error: %v", msg, err)
	}
}

// AssertError checks if error is not nil
func AssertError(t *testing.T, err error, msg string) {
	t.Helper()
	if err == nil {
		t.Errorf("%s: expected error but got nil", msg)
	}
}

// SetupTestTelemetry creates test telemetry with span recorder and metric reader
func SetupTestTelemetry(t *testing.T, spanRecorder *tracetest.SpanRecorder, metricReader metric.Reader) *observability.Telemetry {
	t.Helper()
	tracerProvider := trace.NewTracerProvider(
		trace.WithSpanProcessor(spanRecorder),
	)
	meterProvider := metric.NewMeterProvider(
		metric.WithReader(metricReader),
	)
	t.Cleanup(func() {
		_ = tracerProvider.Shutdown(context.Background())
		_ = meterProvider.Shutdown(context.Background())
	})

	return observability.NewTelemetryFromProviders(tracerProvider, meterProvider)
}

package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/etdc/insight/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestTelemetry(t *testing.T) (*observability.Telemetry, *tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})
	return observability.NewTelemetryFromProviders(tp, mp), recorder, reader
}

func TestStructuredLogger_TraceCorrelation(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	observability.SetBaseLogger(zap.New(core))
	t.Cleanup(func() { observability.SetBaseLogger(zap.NewNop()) })

	tel, _, _ := newTestTelemetry(t)
	ctx, span := tel.StartSpan(context.Background(), "test")
	defer span.End()

	logger := observability.NewStructuredLogger("poller")
	logger.Info(ctx, "status received", map[string]interface{}{"state": "PENDING"})
	logger.Error(ctx, "status failed", errors.New("boom"))

	entries := logs.All()
	require.Len(t, entries, 2)

	fields := entries[0].ContextMap()
	assert.Equal(t, "poller", fields["component"])
	assert.Equal(t, "PENDING", fields["state"])
	assert.Equal(t, span.SpanContext().TraceID().String(), fields["trace_id"])

	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
}

func TestConfigureLogging_JSON(t *testing.T) {
	var buf bytes.Buffer
	observability.ConfigureLogging(observability.LogOptions{Level: "warn", Format: "json", Output: &buf})
	t.Cleanup(func() { observability.SetBaseLogger(zap.NewNop()) })

	logger := observability.NewStructuredLogger("cli")
	logger.Info(context.Background(), "dropped")
	logger.Warn(context.Background(), "kept", map[string]interface{}{"page": 2})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "WARN", entry["severity"])
	assert.Equal(t, "cli", entry["component"])
	assert.EqualValues(t, 2, entry["page"])
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]observability.LogLevel{
		"debug":   observability.LogLevelDebug,
		"WARNING": observability.LogLevelWarn,
		"error":   observability.LogLevelError,
		"":        observability.LogLevelInfo,
		"verbose": observability.LogLevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, observability.ParseLogLevel(in), in)
	}
}

func TestInstrumentAPICall(t *testing.T) {
	tel, recorder, _ := newTestTelemetry(t)

	err := tel.InstrumentAPICall(context.Background(), "search_status", func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)

	wantErr := errors.New("backend down")
	err = tel.InstrumentAPICall(context.Background(), "digests", func(ctx context.Context) error {
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "api.search_status", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, "api.digests", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestMetrics_RecordAndCollect(t *testing.T) {
	tel, _, reader := newTestTelemetry(t)
	metrics, err := observability.NewMetrics(tel.Meter())
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordAPIRequest(ctx, "search", 20*time.Millisecond, nil)
	metrics.RecordPollRound(ctx, "parent")
	metrics.RecordPollStarted()
	assert.Equal(t, int64(1), metrics.GetActivePollCount())
	metrics.RecordPollFinished(ctx, time.Second, "ready")
	assert.Equal(t, int64(0), metrics.GetActivePollCount())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	assert.True(t, names["api_requests_total"])
	assert.True(t, names["poll_rounds_total"])
	assert.True(t, names["research_wait_duration_seconds"])
}

func TestMetrics_NilSafe(t *testing.T) {
	var metrics *observability.Metrics
	metrics.RecordPollStarted()
	metrics.RecordAPIRequest(context.Background(), "search", time.Millisecond, nil)
	assert.Equal(t, int64(0), metrics.GetActivePollCount())
}

func TestNewTelemetry_Disabled(t *testing.T) {
	tel, err := observability.NewTelemetry(&observability.TelemetryConfig{
		ServiceName:   "insight-test",
		EnableTracing: false,
		EnableMetrics: false,
	})
	require.NoError(t, err)
	assert.NotNil(t, tel.Tracer())
	assert.NotNil(t, tel.Meter())
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestMetricsServer(t *testing.T) {
	srv, err := observability.StartMetricsServer("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")
}

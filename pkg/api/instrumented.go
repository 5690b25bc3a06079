package api

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/etdc/insight/pkg/domain"
	"github.com/etdc/insight/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedClient wraps a gateway with spans and request metrics
type InstrumentedClient struct {
	gateway   domain.Gateway
	telemetry *observability.Telemetry
	metrics   *observability.Metrics
}

// NewInstrumentedClient creates a new instrumented gateway. When metrics is
// nil a set is created on the telemetry meter.
func NewInstrumentedClient(gateway domain.Gateway, telemetry *observability.Telemetry, metrics *observability.Metrics) (*InstrumentedClient, error) {
	if gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if telemetry == nil {
		return nil, fmt.Errorf("telemetry is required")
	}

	if metrics == nil {
		var err error
		metrics, err = observability.NewMetrics(telemetry.Meter())
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics: %w", err)
		}
	}

	return &InstrumentedClient{
		gateway:   gateway,
		telemetry: telemetry,
		metrics:   metrics,
	}, nil
}

func (c *InstrumentedClient) call(ctx context.Context, endpoint string, fn func(context.Context) error) error {
	startTime := time.Now()
	err := c.telemetry.InstrumentAPICall(ctx, endpoint, fn)
	c.metrics.RecordAPIRequest(ctx, endpoint, time.Since(startTime), err)
	return err
}

// CreateResearch submits a research query
func (c *InstrumentedClient) CreateResearch(ctx context.Context, query string, full bool) (domain.TaskID, error) {
	var id domain.TaskID
	err := c.call(ctx, "search", func(ctx context.Context) error {
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.Int("research.query_length", len(query)),
			attribute.Bool("research.full", full),
		)
		var err error
		id, err = c.gateway.CreateResearch(ctx, query, full)
		if err == nil {
			trace.SpanFromContext(ctx).SetAttributes(attribute.String("task.id", id.String()))
		}
		return err
	})
	if err == nil {
		c.metrics.RecordResearchSubmitted(ctx, full)
	}
	return id, err
}

// GetStatus fetches a status document
func (c *InstrumentedClient) GetStatus(ctx context.Context, id domain.TaskID) (*domain.TaskStatus, error) {
	var status *domain.TaskStatus
	err := c.call(ctx, "search_status", func(ctx context.Context) error {
		span := trace.SpanFromContext(ctx)
		span.SetAttributes(attribute.String("task.id", id.String()))
		var err error
		status, err = c.gateway.GetStatus(ctx, id)
		if err == nil {
			span.SetAttributes(attribute.String("task.state", string(status.State)))
		}
		return err
	})
	return status, err
}

// ListDigests fetches one page of digests
func (c *InstrumentedClient) ListDigests(ctx context.Context, page, limit int) (*domain.DigestPage, error) {
	var result *domain.DigestPage
	err := c.call(ctx, "digests", func(ctx context.Context) error {
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.Int("digests.page", page),
			attribute.Int("digests.limit", limit),
		)
		var err error
		result, err = c.gateway.ListDigests(ctx, page, limit)
		return err
	})
	return result, err
}

// DownloadDigest streams a digest document
func (c *InstrumentedClient) DownloadDigest(ctx context.Context, id domain.TaskID, w io.Writer) (int64, error) {
	var n int64
	err := c.call(ctx, "digest", func(ctx context.Context) error {
		var err error
		n, err = c.gateway.DownloadDigest(ctx, id, w)
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.String("digest.id", id.String()),
			attribute.Int64("digest.bytes", n),
		)
		return err
	})
	return n, err
}

// GenerateDigest builds a digest document for a finished task
func (c *InstrumentedClient) GenerateDigest(ctx context.Context, taskID domain.TaskID, summary domain.SentimentSummary, w io.Writer) (int64, error) {
	var n int64
	err := c.call(ctx, "generate_digest", func(ctx context.Context) error {
		var err error
		n, err = c.gateway.GenerateDigest(ctx, taskID, summary, w)
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.String("task.id", taskID.String()),
			attribute.Int("digest.opinions", summary.All),
			attribute.Int64("digest.bytes", n),
		)
		return err
	})
	return n, err
}

// Latest fetches recent research tasks
func (c *InstrumentedClient) Latest(ctx context.Context) ([]domain.HistoryItem, error) {
	var items []domain.HistoryItem
	err := c.call(ctx, "least", func(ctx context.Context) error {
		var err error
		items, err = c.gateway.Latest(ctx)
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int("history.count", len(items)))
		return err
	})
	return items, err
}

// DominantOpinion asks for the prevailing opinion
func (c *InstrumentedClient) DominantOpinion(ctx context.Context, opinions []string) (string, error) {
	var out string
	err := c.call(ctx, "get_opinion", func(ctx context.Context) error {
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int("opinion.count", len(opinions)))
		var err error
		out, err = c.gateway.DominantOpinion(ctx, opinions)
		return err
	})
	return out, err
}

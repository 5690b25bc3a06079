package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/etdc/insight/pkg/cache"
	"github.com/etdc/insight/pkg/domain"
	"github.com/etdc/insight/pkg/observability"
)

// DefaultListingTTL is how long listings stay fresh
const DefaultListingTTL = 60 * time.Second

// CachingClient serves digest listings and the latest-researches strip from
// a cache. Everything else passes through.
type CachingClient struct {
	gateway domain.Gateway
	cache   cache.Cache
	ttl     time.Duration
	logger  observability.Logger
	metrics *observability.Metrics
}

// NewCachingClient wraps gateway. A nil logger discards cache errors.
func NewCachingClient(gateway domain.Gateway, c cache.Cache, ttl time.Duration, logger observability.Logger, metrics *observability.Metrics) *CachingClient {
	if ttl <= 0 {
		ttl = DefaultListingTTL
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &CachingClient{
		gateway: gateway,
		cache:   c,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}
}

func (c *CachingClient) lookup(ctx context.Context, key string, out interface{}) bool {
	data, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn(ctx, "cache read failed", map[string]interface{}{"key": key, "error": err.Error()})
		return false
	}
	if ok {
		if err := json.Unmarshal(data, out); err != nil {
			c.logger.Warn(ctx, "cache entry unreadable", map[string]interface{}{"key": key, "error": err.Error()})
			ok = false
		}
	}
	c.metrics.RecordCacheLookup(ctx, cacheKind(key), ok)
	return ok
}

func (c *CachingClient) store(ctx context.Context, key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn(ctx, "cache write failed", map[string]interface{}{"key": key, "error": err.Error()})
	}
}

func cacheKind(key string) string {
	kind, _, _ := strings.Cut(key, ":")
	return kind
}

// ListDigests returns a cached page when one is fresh
func (c *CachingClient) ListDigests(ctx context.Context, page, limit int) (*domain.DigestPage, error) {
	if page < 1 {
		page = 1
	}
	key := fmt.Sprintf("digests:%d:%d", page, limit)

	var cached domain.DigestPage
	if c.lookup(ctx, key, &cached) {
		return &cached, nil
	}

	result, err := c.gateway.ListDigests(ctx, page, limit)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, result)
	return result, nil
}

// Latest returns the cached latest-researches strip when fresh
func (c *CachingClient) Latest(ctx context.Context) ([]domain.HistoryItem, error) {
	const key = "latest"

	var cached []domain.HistoryItem
	if c.lookup(ctx, key, &cached) {
		return cached, nil
	}

	items, err := c.gateway.Latest(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, items)
	return items, nil
}

// CreateResearch submits a query and invalidates the latest strip
func (c *CachingClient) CreateResearch(ctx context.Context, query string, full bool) (domain.TaskID, error) {
	id, err := c.gateway.CreateResearch(ctx, query, full)
	if err == nil {
		if err := c.cache.Delete(ctx, "latest"); err != nil {
			c.logger.Warn(ctx, "cache invalidation failed", map[string]interface{}{"error": err.Error()})
		}
	}
	return id, err
}

// GetStatus is never cached
func (c *CachingClient) GetStatus(ctx context.Context, id domain.TaskID) (*domain.TaskStatus, error) {
	return c.gateway.GetStatus(ctx, id)
}

// DownloadDigest passes through
func (c *CachingClient) DownloadDigest(ctx context.Context, id domain.TaskID, w io.Writer) (int64, error) {
	return c.gateway.DownloadDigest(ctx, id, w)
}

// GenerateDigest passes through
func (c *CachingClient) GenerateDigest(ctx context.Context, taskID domain.TaskID, summary domain.SentimentSummary, w io.Writer) (int64, error) {
	return c.gateway.GenerateDigest(ctx, taskID, summary, w)
}

// DominantOpinion passes through
func (c *CachingClient) DominantOpinion(ctx context.Context, opinions []string) (string, error) {
	return c.gateway.DominantOpinion(ctx, opinions)
}

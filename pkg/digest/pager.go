// Package digest pages through generated digests and saves digest documents.
package digest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/etdc/insight/pkg/domain"
	"github.com/etdc/insight/pkg/observability"
)

// DefaultLimit is the page size used when none is configured
const DefaultLimit = 10

// Pager walks the digest listing one page at a time. The page never goes
// below 1.
type Pager struct {
	gateway domain.Gateway
	logger  observability.Logger

	mu      sync.Mutex
	page    int
	limit   int
	records []domain.DigestRecord
}

// NewPager creates a pager on page 1
func NewPager(gateway domain.Gateway, limit int, logger observability.Logger) *Pager {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Pager{gateway: gateway, logger: logger, page: 1, limit: limit}
}

// Page returns the current page number
func (p *Pager) Page() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.page
}

// Limit returns the page size
func (p *Pager) Limit() int {
	return p.limit
}

// SetPage moves to page n, clamped to 1
func (p *Pager) SetPage(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.page = max(n, 1)
	p.records = nil
}

// Records returns the rows of the last fetched page
func (p *Pager) Records() []domain.DigestRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.DigestRecord(nil), p.records...)
}

// Fetch loads the current page
func (p *Pager) Fetch(ctx context.Context) ([]domain.DigestRecord, error) {
	page := p.Page()

	result, err := p.gateway.ListDigests(ctx, page, p.limit)
	if err != nil {
		p.logger.Error(ctx, "failed to list digests", err, map[string]interface{}{"page": page})
		return nil, fmt.Errorf("list digests page %d: %w", page, err)
	}

	records := result.Records
	if records == nil {
		records = []domain.DigestRecord{}
	}

	p.mu.Lock()
	if p.page == page {
		p.records = records
	}
	p.mu.Unlock()

	return append([]domain.DigestRecord(nil), records...), nil
}

// HasNext reports whether the last fetched page was full
func (p *Pager) HasNext() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records) >= p.limit
}

// Next moves forward one page when the current page was full
func (p *Pager) Next() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.records) < p.limit {
		return false
	}
	p.page++
	p.records = nil
	return true
}

// Prev moves back one page. It reports false on page 1.
func (p *Pager) Prev() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.page <= 1 {
		p.page = 1
		return false
	}
	p.page--
	p.records = nil
	return true
}

// RowNumber returns the listing position of the i-th row of the current page
func (p *Pager) RowNumber(i int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return (p.page-1)*p.limit + i + 1
}

// Download saves the digest document of id into dir and returns its path
func (p *Pager) Download(ctx context.Context, id domain.TaskID, dir string) (string, error) {
	path, n, err := save(dir, id, func(w io.Writer) (int64, error) {
		return p.gateway.DownloadDigest(ctx, id, w)
	})
	if err != nil {
		p.logger.Error(ctx, "failed to download digest", err, map[string]interface{}{"digest_id": id.String()})
		return "", fmt.Errorf("download digest %s: %w", id, err)
	}

	p.logger.Info(ctx, "digest saved", map[string]interface{}{"path": path, "bytes": n})
	return path, nil
}

// Generate asks the backend to build a digest for a finished research task
// and saves it into dir
func (p *Pager) Generate(ctx context.Context, taskID domain.TaskID, summary domain.SentimentSummary, dir string) (string, error) {
	path, n, err := save(dir, taskID, func(w io.Writer) (int64, error) {
		return p.gateway.GenerateDigest(ctx, taskID, summary, w)
	})
	if err != nil {
		p.logger.Error(ctx, "failed to generate digest", err, map[string]interface{}{"task_id": taskID.String()})
		return "", fmt.Errorf("generate digest %s: %w", taskID, err)
	}

	p.logger.Info(ctx, "digest generated", map[string]interface{}{"path": path, "bytes": n})
	return path, nil
}

// save streams a document into a temporary file next to its final path and
// renames it into place once complete
func save(dir string, id domain.TaskID, write func(io.Writer) (int64, error)) (string, int64, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".digest-*.part")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := write(tmp)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", 0, err
	}

	path := filepath.Join(dir, domain.DigestFileName(id))
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", 0, fmt.Errorf("move digest into place: %w", err)
	}
	return path, n, nil
}

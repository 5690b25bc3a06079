package testutil

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/etdc/insight/pkg/domain"
)

// MockGateway is a mock implementation of domain.Gateway for testing.
// Statuses are served from the Statuses map unless StatusFunc is set.
type MockGateway struct {
	mu sync.Mutex

	Statuses     map[domain.TaskID]*domain.TaskStatus
	StatusErrors map[domain.TaskID]error
	StatusCalls  map[domain.TaskID]int

	CreatedQueries []string
	NextTaskID     domain.TaskID

	Pages       map[int][]domain.DigestRecord
	PageCalls   []int
	LatestItems []domain.HistoryItem
	LatestCalls int

	Documents    map[domain.TaskID][]byte
	Summaries    []domain.SentimentSummary
	Opinion      string
	OpinionCalls [][]string

	ShouldError  bool
	ErrorMessage string

	// StatusFunc allows custom status behavior for tests
	StatusFunc func(ctx context.Context, id domain.TaskID, call int) (*domain.TaskStatus, error)
}

// NewMockGateway creates a new mock gateway
func NewMockGateway() *MockGateway {
	return &MockGateway{
		Statuses:     make(map[domain.TaskID]*domain.TaskStatus),
		StatusErrors: make(map[domain.TaskID]error),
		StatusCalls:  make(map[domain.TaskID]int),
		Pages:        make(map[int][]domain.DigestRecord),
		Documents:    make(map[domain.TaskID][]byte),
		NextTaskID:   "1001",
	}
}

func (m *MockGateway) failure() error {
	if m.ShouldError {
		return fmt.Errorf("%s", m.ErrorMessage)
	}
	return nil
}

// SetStatus replaces the status served for id
func (m *MockGateway) SetStatus(id domain.TaskID, status *domain.TaskStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Statuses[id] = status
}

// CreateResearch implements domain.Gateway
func (m *MockGateway) CreateResearch(ctx context.Context, query string, full bool) (domain.TaskID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure(); err != nil {
		return "", err
	}
	m.CreatedQueries = append(m.CreatedQueries, query)
	return m.NextTaskID, nil
}

// GetStatus implements domain.Gateway
func (m *MockGateway) GetStatus(ctx context.Context, id domain.TaskID) (*domain.TaskStatus, error) {
	m.mu.Lock()
	m.StatusCalls[id]++
	call := m.StatusCalls[id]
	fn := m.StatusFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, id, call)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure(); err != nil {
		return nil, err
	}
	if err, ok := m.StatusErrors[id]; ok {
		return nil, err
	}
	status, ok := m.Statuses[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	copied := *status
	return &copied, nil
}

// ListDigests implements domain.Gateway
func (m *MockGateway) ListDigests(ctx context.Context, page, limit int) (*domain.DigestPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PageCalls = append(m.PageCalls, page)
	if err := m.failure(); err != nil {
		return nil, err
	}
	records := m.Pages[page]
	if records == nil {
		records = []domain.DigestRecord{}
	}
	return &domain.DigestPage{Page: page, Limit: limit, Records: records}, nil
}

// DownloadDigest implements domain.Gateway
func (m *MockGateway) DownloadDigest(ctx context.Context, id domain.TaskID, w io.Writer) (int64, error) {
	m.mu.Lock()
	doc, ok := m.Documents[id]
	err := m.failure()
	m.mu.Unlock()

	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, domain.ErrTaskNotFound
	}
	n, err := w.Write(doc)
	return int64(n), err
}

// GenerateDigest implements domain.Gateway
func (m *MockGateway) GenerateDigest(ctx context.Context, taskID domain.TaskID, summary domain.SentimentSummary, w io.Writer) (int64, error) {
	m.mu.Lock()
	m.Summaries = append(m.Summaries, summary)
	err := m.failure()
	m.mu.Unlock()

	if err != nil {
		return 0, err
	}
	n, err := fmt.Fprintf(w, "digest for %s: %d opinions", taskID, summary.All)
	return int64(n), err
}

// Latest implements domain.Gateway
func (m *MockGateway) Latest(ctx context.Context) ([]domain.HistoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LatestCalls++
	if err := m.failure(); err != nil {
		return nil, err
	}
	return append([]domain.HistoryItem(nil), m.LatestItems...), nil
}

// DominantOpinion implements domain.Gateway
func (m *MockGateway) DominantOpinion(ctx context.Context, opinions []string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.OpinionCalls = append(m.OpinionCalls, opinions)
	if err := m.failure(); err != nil {
		return "", err
	}
	return m.Opinion, nil
}

// GetStatusCallCount returns the number of status calls made for id
func (m *MockGateway) GetStatusCallCount(id domain.TaskID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.StatusCalls[id]
}

// GetPageCalls returns the pages requested so far
func (m *MockGateway) GetPageCalls() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.PageCalls...)
}

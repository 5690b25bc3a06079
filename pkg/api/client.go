// Package api talks to the research backend over HTTP.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/etdc/insight/pkg/domain"
	"github.com/google/uuid"
)

// RequestIDHeader carries a per-request correlation id
const RequestIDHeader = "X-Request-ID"

// maxErrorBody bounds how much of a failed response is kept in APIError
const maxErrorBody = 4 << 10

// APIError is returned when the backend answers with a non-2xx status
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Options configures the client
type Options struct {
	Timeout    time.Duration
	HTTPClient *http.Client
	UserAgent  string
}

// Client implements domain.Gateway for the research backend
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// NewClient creates a new backend client
func NewClient(baseURL string, opts *Options) *Client {
	if opts == nil {
		opts = &Options{Timeout: 30 * time.Second}
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "insight"
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		userAgent:  userAgent,
	}
}

// ValidateQuery checks the minimum research query length
func ValidateQuery(query string) error {
	if utf8.RuneCountInString(strings.TrimSpace(query)) < domain.MinQueryLength {
		return domain.ErrInvalidQuery
	}
	return nil
}

// CreateResearch submits a research query
func (c *Client) CreateResearch(ctx context.Context, query string, full bool) (domain.TaskID, error) {
	if err := ValidateQuery(query); err != nil {
		return "", err
	}

	var resp domain.SearchResponse
	req := domain.SearchRequest{Query: strings.TrimSpace(query), Full: full}
	if err := c.doJSON(ctx, http.MethodPost, "/search", req, &resp); err != nil {
		return "", err
	}
	if !resp.TaskID.Valid() {
		return "", fmt.Errorf("backend returned no task id")
	}

	return resp.TaskID, nil
}

// GetStatus fetches the status document of a task or sub-task
func (c *Client) GetStatus(ctx context.Context, id domain.TaskID) (*domain.TaskStatus, error) {
	if !id.Valid() {
		return nil, domain.ErrTaskNotFound
	}

	var status domain.TaskStatus
	err := c.doJSON(ctx, http.MethodGet, "/search_status/"+url.PathEscape(id.String()), nil, &status)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("task %s: %w", id, domain.ErrTaskNotFound)
		}
		return nil, err
	}

	return &status, nil
}

// ListDigests fetches one page of the digest listing. Pages below 1 are
// requested as page 1.
func (c *Client) ListDigests(ctx context.Context, page, limit int) (*domain.DigestPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var result domain.DigestPage
	if err := c.doJSON(ctx, http.MethodGet, "/digests?"+q.Encode(), nil, &result); err != nil {
		return nil, err
	}
	result.Page = page
	result.Limit = limit
	if result.Records == nil {
		result.Records = []domain.DigestRecord{}
	}

	return &result, nil
}

// DownloadDigest streams a stored digest document into w
func (c *Client) DownloadDigest(ctx context.Context, id domain.TaskID, w io.Writer) (int64, error) {
	if !id.Valid() {
		return 0, domain.ErrTaskNotFound
	}

	q := url.Values{}
	q.Set("id", id.String())

	return c.doDownload(ctx, http.MethodGet, "/digest?"+q.Encode(), nil, w)
}

// GenerateDigest asks the backend to build a digest document for a finished task
func (c *Client) GenerateDigest(ctx context.Context, taskID domain.TaskID, summary domain.SentimentSummary, w io.Writer) (int64, error) {
	if !taskID.Valid() {
		return 0, domain.ErrTaskNotFound
	}

	return c.doDownload(ctx, http.MethodPost, "/generate_digest/"+url.PathEscape(taskID.String()), summary, w)
}

// Latest fetches the most recent research tasks
func (c *Client) Latest(ctx context.Context) ([]domain.HistoryItem, error) {
	var raw []domain.LatestResearch
	if err := c.doJSON(ctx, http.MethodGet, "/least", nil, &raw); err != nil {
		return nil, err
	}

	items := make([]domain.HistoryItem, 0, len(raw))
	for _, r := range raw {
		items = append(items, r.ToHistoryItem())
	}

	return items, nil
}

// DominantOpinion asks the backend for the prevailing opinion among opinion tags
func (c *Client) DominantOpinion(ctx context.Context, opinions []string) (string, error) {
	if opinions == nil {
		opinions = []string{}
	}

	req := struct {
		Opinions []string `json:"opinions"`
	}{Opinions: opinions}

	var resp struct {
		Response string `json:"response"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/get_opinion", req, &resp); err != nil {
		return "", err
	}

	return resp.Response, nil
}

// Helper methods

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(RequestIDHeader, uuid.NewString())

	return req, nil
}

func (c *Client) send(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{
			Endpoint:   endpointName(path),
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpointName(path), err)
	}

	return nil
}

func (c *Client) doDownload(ctx context.Context, method, path string, body interface{}, w io.Writer) (int64, error) {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to read %s body: %w", endpointName(path), err)
	}

	return n, nil
}

// endpointName strips ids and query strings so names stay low-cardinality
func endpointName(path string) string {
	p := strings.TrimPrefix(path, "/")
	if i := strings.IndexAny(p, "/?"); i >= 0 {
		p = p[:i]
	}
	return p
}

package domain

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrTaskNotFound is returned when a task id is invalid or the task failed
	ErrTaskNotFound = errors.New("research task not found")

	// ErrInvalidQuery is returned when a research query is too short
	ErrInvalidQuery = errors.New("research query must be at least 10 characters")
)

// MinQueryLength is the minimum length of a research query
const MinQueryLength = 10

// Gateway defines the outbound calls of the research backend
type Gateway interface {
	// CreateResearch submits a research query and returns the new task id
	CreateResearch(ctx context.Context, query string, full bool) (TaskID, error)

	// GetStatus returns the status document of a task or sub-task
	GetStatus(ctx context.Context, id TaskID) (*TaskStatus, error)

	// ListDigests returns one page of generated digests
	ListDigests(ctx context.Context, page, limit int) (*DigestPage, error)

	// DownloadDigest streams a digest document into w
	DownloadDigest(ctx context.Context, id TaskID, w io.Writer) (int64, error)

	// GenerateDigest builds a digest document for a finished task and streams it into w
	GenerateDigest(ctx context.Context, taskID TaskID, summary SentimentSummary, w io.Writer) (int64, error)

	// Latest returns the most recent research tasks
	Latest(ctx context.Context) ([]HistoryItem, error)

	// DominantOpinion asks the backend to summarize a list of opinion tags
	DominantOpinion(ctx context.Context, opinions []string) (string, error)
}

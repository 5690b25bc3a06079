package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TaskState is the raw state string reported by the research backend
type TaskState string

const (
	TaskStatePending TaskState = "PENDING"
	TaskStateStarted TaskState = "STARTED"
	TaskStateSuccess TaskState = "SUCCESS"
	TaskStateFailure TaskState = "FAILURE"
)

// TaskStatusKind is the client-side classification of a task state
type TaskStatusKind string

const (
	StatusPending TaskStatusKind = "pending"
	StatusSuccess TaskStatusKind = "success"
	StatusFailure TaskStatusKind = "failure"
)

// Kind classifies the backend state. Anything that is not SUCCESS or FAILURE is pending.
func (s TaskState) Kind() TaskStatusKind {
	switch TaskState(strings.ToUpper(string(s))) {
	case TaskStateSuccess:
		return StatusSuccess
	case TaskStateFailure:
		return StatusFailure
	default:
		return StatusPending
	}
}

// IsTerminal reports whether the backend will no longer change the task
func (s TaskState) IsTerminal() bool {
	return s.Kind() != StatusPending
}

// TaskID is an opaque task identifier. The backend sends it either as a
// JSON number or as a string.
type TaskID string

// UnmarshalJSON accepts both numeric and string ids
func (id *TaskID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = TaskID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("task id must be a string or number: %w", err)
	}
	*id = TaskID(n.String())
	return nil
}

// String returns the id as text
func (id TaskID) String() string {
	return string(id)
}

// Valid reports whether the id can be sent to the backend
func (id TaskID) Valid() bool {
	s := strings.TrimSpace(string(id))
	return s != "" && s != "undefined" && s != "null"
}

// ProcessType tags the kind of data a sub-task collects
type ProcessType string

const (
	ProcessDialog    ProcessType = "Dialog"
	ProcessOpenData  ProcessType = "Opendata"
	ProcessWeb       ProcessType = "Web"
	ProcessFB        ProcessType = "FB"
	ProcessInstagram ProcessType = "Instagram"
	ProcessBudgets   ProcessType = "Budgets"
	ProcessNLA       ProcessType = "NLA"
	ProcessAdilet    ProcessType = "Adilet"
)

// ProcessRef references a sub-task spawned by a research task
type ProcessRef struct {
	ProcessType ProcessType `json:"process_type"`
	TaskID      TaskID      `json:"task_id"`
}

// SearchRequest is the body of a research submission
type SearchRequest struct {
	Query string `json:"query"`
	Full  bool   `json:"full,omitempty"`
}

// SearchResponse is returned when a research task is created
type SearchResponse struct {
	TaskID TaskID `json:"task_id"`
}

// TaskStatus is the status document of a research task or sub-task
type TaskStatus struct {
	State          TaskState       `json:"state"`
	Result         json.RawMessage `json:"result,omitempty"`
	CreatedAt      string          `json:"created_at,omitempty"`
	FinishedAt     string          `json:"finished_at,omitempty"`
	FoundPosts     int             `json:"found_posts,omitempty"`
	FoundComments  int             `json:"found_comments,omitempty"`
	FoundEgovNPA   int             `json:"found_egov_npa,omitempty"`
	FoundAdiletNPA int             `json:"found_adilet_npa,omitempty"`
	Prompt         string          `json:"Prompt,omitempty"`
	FullResearch   bool            `json:"full_research,omitempty"`
}

type statusResult struct {
	ProcessIDs []ProcessRef    `json:"process_ids"`
	Response   json.RawMessage `json:"response"`
}

func (s *TaskStatus) result() statusResult {
	var r statusResult
	if len(s.Result) == 0 {
		return r
	}
	if err := json.Unmarshal(s.Result, &r); err != nil {
		return statusResult{}
	}
	return r
}

// ProcessRefs returns the sub-task references of the result, skipping
// entries without a type or id. A malformed result yields none.
func (s *TaskStatus) ProcessRefs() []ProcessRef {
	refs := s.result().ProcessIDs
	out := refs[:0:0]
	for _, ref := range refs {
		if ref.ProcessType == "" || !ref.TaskID.Valid() {
			continue
		}
		out = append(out, ref)
	}
	return out
}

// Response returns the raw result.response payload, or nil
func (s *TaskStatus) Response() json.RawMessage {
	resp := s.result().Response
	if len(resp) == 0 || bytes.Equal(bytes.TrimSpace(resp), []byte("null")) {
		return nil
	}
	return resp
}

// SubTaskResult holds the latest known status of one sub-task
type SubTaskResult struct {
	Type      ProcessType     `json:"type"`
	TaskID    TaskID          `json:"task_id"`
	State     TaskState       `json:"state"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// IsTerminal reports whether the sub-task finished
func (r SubTaskResult) IsTerminal() bool {
	return r.State.IsTerminal()
}

// DigestRecord is one row of the digest listing
type DigestRecord struct {
	ID    TaskID `json:"id"`
	Title string `json:"title"`
	Date  string `json:"date"`
}

// DigestPage is one page of the digest listing
type DigestPage struct {
	Page    int            `json:"page"`
	Limit   int            `json:"limit"`
	Records []DigestRecord `json:"data"`
}

// HistoryStatus is the status shown in the latest-researches strip
type HistoryStatus string

const (
	HistoryCompleted  HistoryStatus = "completed"
	HistoryInProgress HistoryStatus = "in_progress"
)

// LatestResearch is a raw entry of the latest-researches listing
type LatestResearch struct {
	ID         TaskID `json:"id"`
	Query      string `json:"query"`
	CreatedAt  string `json:"created_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// HistoryItem is a summary of a recent research task
type HistoryItem struct {
	ID     TaskID        `json:"id"`
	Query  string        `json:"query"`
	Date   string        `json:"date"`
	Status HistoryStatus `json:"status"`
}

// ToHistoryItem converts a listing entry into a history item
func (l LatestResearch) ToHistoryItem() HistoryItem {
	status := HistoryInProgress
	if strings.TrimSpace(l.FinishedAt) != "" {
		status = HistoryCompleted
	}
	return HistoryItem{
		ID:     l.ID,
		Query:  l.Query,
		Date:   l.CreatedAt,
		Status: status,
	}
}

// SentimentSummary is sent to the backend when generating a digest document
type SentimentSummary struct {
	All        int    `json:"all_opinion"`
	Negative   int    `json:"negative_opinion"`
	Positive   int    `json:"positive_opinion"`
	Neutral    int    `json:"neutral_opinion"`
	Dominating string `json:"dominating_opinion"`
}

// DigestFileName returns the file name used for a generated or downloaded digest
func DigestFileName(id TaskID) string {
	return "digest_" + sanitizeFileComponent(string(id)) + ".docx"
}

func sanitizeFileComponent(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return strconv.Itoa(0)
	}
	return b.String()
}

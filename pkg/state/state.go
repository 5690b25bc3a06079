package state

import (
	"sort"
	"sync"
	"time"

	"github.com/etdc/insight/pkg/domain"
)

// ResultSet holds the latest known status of a research task and of every
// sub-task it spawned. It is shared between the poller and the views.
type ResultSet struct {
	mu       sync.RWMutex
	taskID   domain.TaskID
	parent   *domain.TaskStatus
	expected map[domain.ProcessType]domain.TaskID
	results  map[domain.ProcessType]domain.SubTaskResult
	closed   bool
}

// NewResultSet creates an empty result set for a task
func NewResultSet(taskID domain.TaskID) *ResultSet {
	return &ResultSet{
		taskID:   taskID,
		expected: make(map[domain.ProcessType]domain.TaskID),
		results:  make(map[domain.ProcessType]domain.SubTaskResult),
	}
}

// TaskID returns the research task id
func (s *ResultSet) TaskID() domain.TaskID {
	return s.taskID
}

// SetParent records the latest status of the research task itself
func (s *ResultSet) SetParent(status *domain.TaskStatus) {
	if status == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	copied := *status
	s.parent = &copied
}

// Parent returns a copy of the latest research task status, or nil
func (s *ResultSet) Parent() *domain.TaskStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.parent == nil {
		return nil
	}
	copied := *s.parent
	return &copied
}

// Expect registers the sub-tasks the research task spawned. Results for
// other ids of the same type are ignored afterwards.
func (s *ResultSet) Expect(refs []domain.ProcessRef) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ref := range refs {
		s.expected[ref.ProcessType] = ref.TaskID
	}
}

// Apply stores a sub-task result. It reports false when the result was
// dropped: after Close, for an unexpected task id, or when a non-terminal
// result would replace a terminal one.
func (s *ResultSet) Apply(r domain.SubTaskResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if want, ok := s.expected[r.Type]; ok && want != r.TaskID {
		return false
	}
	if cur, ok := s.results[r.Type]; ok && cur.IsTerminal() && !r.IsTerminal() {
		return false
	}
	if r.FetchedAt.IsZero() {
		r.FetchedAt = time.Now()
	}

	s.results[r.Type] = r
	return true
}

// Get returns the result for a process type
func (s *ResultSet) Get(t domain.ProcessType) (domain.SubTaskResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[t]
	return r, ok
}

// Snapshot returns a copy of all held results
func (s *ResultSet) Snapshot() map[domain.ProcessType]domain.SubTaskResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[domain.ProcessType]domain.SubTaskResult, len(s.results))
	for k, v := range s.results {
		out[k] = v
	}
	return out
}

// Pending returns the expected sub-tasks without a terminal result, sorted
// by process type
func (s *ResultSet) Pending() []domain.ProcessRef {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var refs []domain.ProcessRef
	for t, id := range s.expected {
		if r, ok := s.results[t]; ok && r.IsTerminal() {
			continue
		}
		refs = append(refs, domain.ProcessRef{ProcessType: t, TaskID: id})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ProcessType < refs[j].ProcessType })
	return refs
}

// AllTerminal reports whether every expected sub-task finished
func (s *ResultSet) AllTerminal() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for t := range s.expected {
		r, ok := s.results[t]
		if !ok || !r.IsTerminal() {
			return false
		}
	}
	return true
}

// Close stops the set from accepting further updates
func (s *ResultSet) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Closed reports whether Close was called
func (s *ResultSet) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

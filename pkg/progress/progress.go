// Package progress simulates step-by-step progress of a research task while
// the backend works, and short-circuits sections as real data arrives.
package progress

import (
	"sync"

	"github.com/etdc/insight/pkg/domain"
	"github.com/etdc/insight/pkg/sources"
)

// StepStatus is the display state of a single step
type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepActive    StepStatus = "active"
	StepPending   StepStatus = "pending"
)

// steps lists the simulated work of each section
var steps = map[sources.Section][]string{
	sources.SectionWeb: {
		"searching for relevant web resources and sources...",
		"assessing the reliability and quality of the sources found...",
		"analysing the content of the selected materials...",
		"extracting key findings and insights...",
		"preparing recommendations based on the analysis...",
	},
	sources.SectionSocial: {
		"searching for relevant posts and discussions on social media...",
		"collecting and structuring user comments...",
		"running sentiment analysis...",
		"identifying key topics and trends in the discussions...",
		"assessing the impact of trends on public opinion...",
		"preparing recommendations for further action...",
	},
	sources.SectionDialog: {
		"building the keyword list...",
		"searching citizen appeals on the topic...",
		"checking appeals for relevance...",
		"compiling the final list...",
	},
	sources.SectionLegal: {
		"searching regulatory legal acts...",
		"assessing the relevance of the acts...",
		"analysing the impact of legislative changes...",
		"preparing recommendations...",
	},
}

// Steps returns the step texts of a section
func Steps(section sources.Section) []string {
	return append([]string(nil), steps[section]...)
}

// SectionState is a snapshot of one section
type SectionState struct {
	Section   sources.Section
	Title     string
	Steps     []string
	Current   int
	Completed bool
}

// StepStatus returns the display state of step i
func (s SectionState) StepStatus(i int) StepStatus {
	switch {
	case s.Completed || i < s.Current:
		return StepCompleted
	case i == s.Current:
		return StepActive
	default:
		return StepPending
	}
}

// Simulator tracks simulated progress across the report sections.
// It is safe for concurrent use.
type Simulator struct {
	mu        sync.Mutex
	registry  *sources.Registry
	current   int
	step      map[sources.Section]int
	completed map[sources.Section]bool
}

// NewSimulator creates a simulator positioned at the first step of the
// first section
func NewSimulator(registry *sources.Registry) *Simulator {
	if registry == nil {
		registry = sources.Default()
	}
	return &Simulator{
		registry:  registry,
		step:      make(map[sources.Section]int, len(sources.Sections)),
		completed: make(map[sources.Section]bool, len(sources.Sections)),
	}
}

// Tick advances the current section by one step. A section whose step count
// reaches its length completes and the next unfinished section becomes
// current. Tick reports whether anything changed.
func (s *Simulator) Tick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	section, ok := s.currentSection()
	if !ok {
		return false
	}

	n := len(steps[section])
	if s.step[section] < n {
		s.step[section]++
	}
	if s.step[section] >= n {
		s.completed[section] = true
		s.advance()
	}
	return true
}

// MarkArrived completes a section because its real data is present
func (s *Simulator) MarkArrived(section sources.Section) {
	if _, ok := steps[section]; !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.completed[section] {
		return
	}
	s.completed[section] = true
	s.step[section] = len(steps[section])
	s.advance()
}

// MarkType completes the section fed by a finished sub-task
func (s *Simulator) MarkType(t domain.ProcessType) {
	s.MarkArrived(s.registry.SectionFor(t))
}

// Reconcile completes sections for which the research status already
// reports collected data
func (s *Simulator) Reconcile(status *domain.TaskStatus) {
	if status == nil {
		return
	}
	if status.FoundPosts > 0 {
		s.MarkArrived(sources.SectionSocial)
	}
	if status.FoundEgovNPA > 0 || status.FoundAdiletNPA > 0 {
		s.MarkArrived(sources.SectionLegal)
	}
}

// Complete reports whether every section is complete
func (s *Simulator) Complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, section := range sources.Sections {
		if !s.completed[section] {
			return false
		}
	}
	return true
}

// Current returns the section being worked on, or the last section once
// everything is complete
func (s *Simulator) Current() sources.Section {
	s.mu.Lock()
	defer s.mu.Unlock()

	if section, ok := s.currentSection(); ok {
		return section
	}
	return sources.Sections[len(sources.Sections)-1]
}

// Snapshot returns the state of every section in display order
func (s *Simulator) Snapshot() []SectionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SectionState, 0, len(sources.Sections))
	for _, section := range sources.Sections {
		out = append(out, SectionState{
			Section:   section,
			Title:     section.Title(),
			Steps:     Steps(section),
			Current:   s.step[section],
			Completed: s.completed[section],
		})
	}
	return out
}

func (s *Simulator) currentSection() (sources.Section, bool) {
	if s.current >= len(sources.Sections) {
		return "", false
	}
	return sources.Sections[s.current], true
}

// advance moves current past completed sections. Caller holds mu.
func (s *Simulator) advance() {
	for s.current < len(sources.Sections) && s.completed[sources.Sections[s.current]] {
		s.current++
	}
}

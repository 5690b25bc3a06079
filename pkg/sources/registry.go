// Package sources describes the sub-task types a research task fans out to
// and the report section each one feeds.
package sources

import (
	"fmt"
	"sync"

	"github.com/etdc/insight/pkg/domain"
)

// Section is a part of the report and of the progress display
type Section string

const (
	SectionWeb    Section = "web"
	SectionSocial Section = "social"
	SectionDialog Section = "dialog"
	SectionLegal  Section = "legal"
	SectionNone   Section = ""
)

// Sections lists the displayed sections in progress order
var Sections = []Section{SectionWeb, SectionSocial, SectionDialog, SectionLegal}

// Title returns the display title of a section
func (s Section) Title() string {
	switch s {
	case SectionWeb:
		return "Web analysis"
	case SectionSocial:
		return "Social media"
	case SectionDialog:
		return "E-Gov dialog"
	case SectionLegal:
		return "Legal acts"
	default:
		return "Other"
	}
}

// Shape describes how a sub-task payload is laid out
type Shape int

const (
	// ShapeWhole payloads are used as a single fragment
	ShapeWhole Shape = iota
	// ShapeSplit payloads carry "all" sources and "ai_response" opinions
	ShapeSplit
)

// Kind describes one sub-task type
type Kind struct {
	Type    domain.ProcessType
	Section Section
	Shape   Shape
	Label   string
}

// HasOpinions reports whether the payload carries classified opinions
func (s Kind) HasOpinions() bool {
	return s.Shape == ShapeSplit
}

// Registry maps process types to their kinds
type Registry struct {
	mu    sync.RWMutex
	kinds map[domain.ProcessType]Kind
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		kinds: make(map[domain.ProcessType]Kind),
	}
}

// Register adds a kind
func (r *Registry) Register(kind Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if kind.Type == "" {
		return fmt.Errorf("process type cannot be empty")
	}
	if _, exists := r.kinds[kind.Type]; exists {
		return fmt.Errorf("process type %s already registered", kind.Type)
	}

	r.kinds[kind.Type] = kind
	return nil
}

// Get retrieves a kind by process type
func (r *Registry) Get(t domain.ProcessType) (Kind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kind, exists := r.kinds[t]
	if !exists {
		return Kind{}, fmt.Errorf("process type %s not found", t)
	}
	return kind, nil
}

// SectionFor returns the section fed by a process type, or SectionNone
func (r *Registry) SectionFor(t domain.ProcessType) Section {
	kind, err := r.Get(t)
	if err != nil {
		return SectionNone
	}
	return kind.Section
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the registry of the process types the backend emits
func Default() *Registry {
	defaultOnce.Do(func() {
		r := NewRegistry()
		for _, kind := range []Kind{
			{Type: domain.ProcessWeb, Section: SectionWeb, Shape: ShapeWhole, Label: "Web"},
			{Type: domain.ProcessFB, Section: SectionSocial, Shape: ShapeSplit, Label: "Facebook"},
			{Type: domain.ProcessInstagram, Section: SectionSocial, Shape: ShapeSplit, Label: "Instagram"},
			{Type: domain.ProcessDialog, Section: SectionDialog, Shape: ShapeSplit, Label: "E-Gov dialog"},
			{Type: domain.ProcessOpenData, Section: SectionDialog, Shape: ShapeSplit, Label: "Open data"},
			{Type: domain.ProcessAdilet, Section: SectionLegal, Shape: ShapeSplit, Label: "Adilet"},
			{Type: domain.ProcessNLA, Section: SectionLegal, Shape: ShapeSplit, Label: "Legal acts"},
			{Type: domain.ProcessBudgets, Section: SectionNone, Shape: ShapeWhole, Label: "Budgets"},
		} {
			_ = r.Register(kind)
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

// Package tui is the live terminal view of a research task: simulated
// progress while the backend works, then the report.
package tui

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/etdc/insight/pkg/domain"
	"github.com/etdc/insight/pkg/poller"
	"github.com/etdc/insight/pkg/progress"
	"github.com/etdc/insight/pkg/report"
	"github.com/etdc/insight/pkg/sources"
	"github.com/etdc/insight/pkg/view"
)

// StatusMsg carries a research task status
type StatusMsg struct{ Status *domain.TaskStatus }

// SubTaskMsg carries a sub-task result
type SubTaskMsg struct{ Result domain.SubTaskResult }

// DoneMsg is sent when the poller finished successfully
type DoneMsg struct{ Outcome *poller.Outcome }

// ErrMsg is sent when the poller stopped with an error
type ErrMsg struct{ Err error }

// DominantMsg carries the dominant opinion text
type DominantMsg struct {
	Text string
	Err  error
}

type tickMsg time.Time

// DominantFunc asks the backend for the dominant opinion
type DominantFunc func(ctx context.Context, opinions []string) (string, error)

// Options configures a Model
type Options struct {
	TaskID       domain.TaskID
	StepInterval time.Duration
	View         view.Options
	Dominant     DominantFunc
	Registry     *sources.Registry
}

// Model is the bubbletea model of the live view
type Model struct {
	ctx      context.Context
	opts     Options
	renderer *view.Renderer
	sim      *progress.Simulator

	status   *domain.TaskStatus
	outcome  *poller.Outcome
	report   report.Report
	dominant view.Dominant

	ticking  bool
	notFound bool
	err      error
	quitting bool
}

// NewModel creates the live view of a task
func NewModel(ctx context.Context, opts Options) Model {
	if opts.StepInterval <= 0 {
		opts.StepInterval = 23 * time.Second
	}
	if opts.Registry == nil {
		opts.Registry = sources.Default()
	}
	return Model{
		ctx:      ctx,
		opts:     opts,
		renderer: view.New(opts.View),
		sim:      progress.NewSimulator(opts.Registry),
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	if !m.opts.TaskID.Valid() {
		return func() tea.Msg {
			return ErrMsg{Err: domain.ErrTaskNotFound}
		}
	}
	return nil
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.opts.View.Width = msg.Width
			m.renderer = view.New(m.opts.View)
		}

	case StatusMsg:
		if msg.Status == nil {
			return m, nil
		}
		m.status = msg.Status
		m.sim.Reconcile(msg.Status)
		if !m.ticking && !m.Ready() {
			m.ticking = true
			return m, m.tick()
		}

	case tickMsg:
		if m.Ready() || m.finished() {
			m.ticking = false
			return m, nil
		}
		m.sim.Tick()
		if m.sim.Complete() {
			m.ticking = false
			return m, nil
		}
		return m, m.tick()

	case SubTaskMsg:
		if msg.Result.IsTerminal() {
			m.sim.MarkType(msg.Result.Type)
		}

	case DoneMsg:
		if msg.Outcome == nil {
			return m, nil
		}
		m.outcome = msg.Outcome
		if msg.Outcome.Status != nil {
			m.status = msg.Outcome.Status
		}
		for _, section := range sources.Sections {
			m.sim.MarkArrived(section)
		}
		m.report = report.FromResults(msg.Outcome.Results.Snapshot())
		cmd := m.requestDominant()
		return m, cmd

	case DominantMsg:
		m.dominant = view.Dominant{Text: msg.Text, Err: msg.Err}

	case ErrMsg:
		if errors.Is(msg.Err, domain.ErrTaskNotFound) {
			m.notFound = true
		} else {
			m.err = msg.Err
		}
	}

	return m, nil
}

// View implements tea.Model
func (m Model) View() string {
	switch {
	case m.quitting:
		return ""
	case m.notFound:
		return m.renderer.NotFound(m.opts.TaskID) + "\n\npress q to quit\n"
	case m.err != nil:
		return m.renderer.Error(m.err) + "\n\npress q to quit\n"
	case m.Ready():
		return m.renderer.Report(m.ReportData()) + "\n\npress q to quit\n"
	case m.status == nil:
		return m.renderer.Loading() + "\n"
	default:
		return m.renderer.Progress(m.sim.Snapshot(), m.sim.Current()) + "\n\npress q to quit\n"
	}
}

// Ready reports whether the report is displayed
func (m Model) Ready() bool {
	return m.outcome != nil && m.sim.Complete()
}

// NotFound reports whether the task was not found
func (m Model) NotFound() bool {
	return m.notFound
}

// Err returns the error that stopped polling
func (m Model) Err() error {
	return m.err
}

// ReportData returns what the report view shows
func (m Model) ReportData() view.ReportData {
	return view.ReportData{
		TaskID:   m.opts.TaskID,
		Status:   m.status,
		Report:   m.report,
		Dominant: m.dominant,
	}
}

// Simulator exposes the progress simulator
func (m Model) Simulator() *progress.Simulator {
	return m.sim
}

func (m Model) finished() bool {
	return m.notFound || m.err != nil || m.quitting
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.opts.StepInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) requestDominant() tea.Cmd {
	if m.opts.Dominant == nil {
		return nil
	}
	m.dominant = view.Dominant{Loading: true}

	ctx, fn, opinions := m.ctx, m.opts.Dominant, m.report.Opinions()
	return func() tea.Msg {
		text, err := fn(ctx, opinions)
		return DominantMsg{Text: text, Err: err}
	}
}

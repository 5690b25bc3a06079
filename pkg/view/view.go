// Package view renders research reports, progress, digests and history for
// the terminal.
package view

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/etdc/insight/pkg/domain"
)

// Options configures a Renderer
type Options struct {
	// Width is the maximum line width
	Width int
	// Style selects the markdown style: auto, dark, light or notty
	Style string
	// Plain disables borders, colours and markdown rendering
	Plain bool
}

// Renderer turns domain data into terminal text
type Renderer struct {
	opts   Options
	styles Styles

	mdOnce sync.Once
	md     *glamour.TermRenderer
}

// New creates a renderer
func New(opts Options) *Renderer {
	if opts.Width <= 0 {
		opts.Width = 100
	}
	if opts.Style == "" {
		opts.Style = "auto"
	}

	styles := DefaultStyles()
	if opts.Plain {
		styles = PlainStyles()
	}
	return &Renderer{opts: opts, styles: styles}
}

// Plain reports whether decorations are disabled
func (r *Renderer) Plain() bool {
	return r.opts.Plain
}

// Width returns the configured line width
func (r *Renderer) Width() int {
	return r.opts.Width
}

// Markdown renders markdown text. Plain renderers and rendering failures
// return the text unchanged.
func (r *Renderer) Markdown(text string) string {
	text = strings.TrimSpace(text)
	if text == "" || r.opts.Plain {
		return text
	}

	r.mdOnce.Do(func() {
		style := glamour.WithStylePath(r.opts.Style)
		if r.opts.Style == "auto" {
			style = glamour.WithAutoStyle()
		}
		md, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(r.opts.Width-4))
		if err == nil {
			r.md = md
		}
	})
	if r.md == nil {
		return text
	}

	out, err := r.md.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}

// NotFound renders the view shown for a missing or failed research task
func (r *Renderer) NotFound(id domain.TaskID) string {
	lines := []string{
		r.styles.Error.Render("Research not found"),
		r.styles.Muted.Render(fmt.Sprintf("Task %q does not exist or has failed.", id.String())),
		r.styles.Muted.Render("Start a new research with: insight research \"<query>\""),
	}
	return strings.Join(lines, "\n")
}

// Error renders an error line
func (r *Renderer) Error(err error) string {
	return r.styles.Error.Render("Error: ") + err.Error()
}

// Status renders a one-shot view of a task status
func (r *Renderer) Status(id domain.TaskID, status *domain.TaskStatus) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", r.styles.Title.Render("Task"), id)
	fmt.Fprintf(&b, "State:     %s\n", r.stateLabel(status.State))
	if status.Prompt != "" {
		fmt.Fprintf(&b, "Query:     %s\n", status.Prompt)
	}
	if status.CreatedAt != "" {
		fmt.Fprintf(&b, "Created:   %s\n", status.CreatedAt)
	}
	if status.FinishedAt != "" {
		fmt.Fprintf(&b, "Finished:  %s\n", status.FinishedAt)
	}
	fmt.Fprintf(&b, "Posts:     %d\n", status.FoundPosts)
	fmt.Fprintf(&b, "Comments:  %d\n", status.FoundComments)
	fmt.Fprintf(&b, "E-Gov NPA: %d\n", status.FoundEgovNPA)
	fmt.Fprintf(&b, "Adilet:    %d\n", status.FoundAdiletNPA)

	refs := status.ProcessRefs()
	if len(refs) > 0 {
		b.WriteString("Sub-tasks:\n")
		for _, ref := range refs {
			fmt.Fprintf(&b, "  %-10s %s\n", ref.ProcessType, ref.TaskID)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *Renderer) stateLabel(state domain.TaskState) string {
	label := string(state)
	if label == "" {
		label = "UNKNOWN"
	}
	switch state.Kind() {
	case domain.StatusSuccess:
		return r.styles.Positive.Render(label)
	case domain.StatusFailure:
		return r.styles.Negative.Render(label)
	default:
		return r.styles.StepActive.Render(label)
	}
}

func (r *Renderer) section(title string) string {
	return r.styles.Section.Render(title)
}

// join stacks blocks vertically, skipping empty ones
func join(blocks ...string) string {
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b != "" {
			out = append(out, b)
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, out...)
}

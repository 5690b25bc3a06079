package view

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/etdc/insight/pkg/progress"
	"github.com/etdc/insight/pkg/sources"
)

// Progress renders the simulated progress cards. current is the section
// whose title heads the view.
func (r *Renderer) Progress(sections []progress.SectionState, current sources.Section) string {
	title := r.styles.Title.Render(current.Title())
	subtitle := r.styles.Subtitle.Render("Research in progress...")

	cards := make([]string, 0, len(sections))
	for _, s := range sections {
		cards = append(cards, r.progressCard(s))
	}

	var body string
	switch {
	case r.opts.Plain || len(cards) == 0:
		body = strings.Join(cards, "\n\n")
	case r.opts.Width >= len(cards)*lipgloss.Width(cards[0]):
		body = lipgloss.JoinHorizontal(lipgloss.Top, cards...)
	default:
		body = lipgloss.JoinVertical(lipgloss.Left, cards...)
	}
	return join(title, subtitle, "", body)
}

// Loading renders the view shown before the first status arrives
func (r *Renderer) Loading() string {
	return r.styles.Subtitle.Render("Loading research...")
}

func (r *Renderer) progressCard(s progress.SectionState) string {
	header := s.Title
	if s.Completed {
		header += " " + r.styles.StepDone.Render("done")
	}

	lines := []string{r.styles.Header.UnsetPadding().Render(header)}
	for i, text := range s.Steps {
		var marker string
		style := r.styles.StepPending
		switch s.StepStatus(i) {
		case progress.StepCompleted:
			marker, style = "✓", r.styles.StepDone
		case progress.StepActive:
			marker, style = "▸", r.styles.StepActive
		default:
			marker = "·"
		}
		lines = append(lines, style.Render(fmt.Sprintf("%s %s", marker, text)))
	}

	body := strings.Join(lines, "\n")
	if r.opts.Plain {
		return body
	}
	return r.styles.Card.Width(30).Render(body)
}

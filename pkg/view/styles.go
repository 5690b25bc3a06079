package view

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/etdc/insight/pkg/report"
)

// Palette
var (
	Primary     = lipgloss.Color("#101F38")
	Accent      = lipgloss.Color("#8BC34A")
	Muted       = lipgloss.Color("#8a94a6")
	Border      = lipgloss.Color("#2a3850")
	Success     = lipgloss.Color("#8BC34A")
	Destructive = lipgloss.Color("#e53935")
	Warning     = lipgloss.Color("#FFC107")
	Info        = lipgloss.Color("#2196F3")
)

// Styles holds the lipgloss styles used by the renderer
type Styles struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Badge    lipgloss.Style
	Section  lipgloss.Style
	Card     lipgloss.Style
	CardNum  lipgloss.Style
	Muted    lipgloss.Style
	Error    lipgloss.Style
	Link     lipgloss.Style
	Header   lipgloss.Style
	Cell     lipgloss.Style
	Table    lipgloss.Style

	StepDone    lipgloss.Style
	StepActive  lipgloss.Style
	StepPending lipgloss.Style

	Positive     lipgloss.Style
	Negative     lipgloss.Style
	Neutral      lipgloss.Style
	Unclassified lipgloss.Style
}

// DefaultStyles returns the coloured styles
func DefaultStyles() Styles {
	return Styles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(Accent),
		Subtitle: lipgloss.NewStyle().Foreground(Muted),
		Badge:    lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(lipgloss.Color("#ffffff")).Background(Info),
		Section:  lipgloss.NewStyle().Bold(true).Underline(true).MarginTop(1),
		Card: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Border).
			Padding(0, 1).
			Width(22),
		CardNum: lipgloss.NewStyle().Bold(true).Foreground(Accent),
		Muted:   lipgloss.NewStyle().Foreground(Muted),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(Destructive),
		Link:    lipgloss.NewStyle().Foreground(Info).Underline(true),
		Header:  lipgloss.NewStyle().Bold(true).Padding(0, 1),
		Cell:    lipgloss.NewStyle().Padding(0, 1),
		Table:   lipgloss.NewStyle().Foreground(Border),

		StepDone:    lipgloss.NewStyle().Foreground(Success),
		StepActive:  lipgloss.NewStyle().Bold(true).Foreground(Warning),
		StepPending: lipgloss.NewStyle().Foreground(Muted),

		Positive:     lipgloss.NewStyle().Foreground(Success),
		Negative:     lipgloss.NewStyle().Foreground(Destructive),
		Neutral:      lipgloss.NewStyle().Foreground(Info),
		Unclassified: lipgloss.NewStyle().Foreground(Muted),
	}
}

// PlainStyles returns styles that add no decoration
func PlainStyles() Styles {
	s := lipgloss.NewStyle()
	return Styles{
		Title: s, Subtitle: s, Badge: s, Section: s.MarginTop(1), Card: s, CardNum: s,
		Muted: s, Error: s, Link: s, Header: s, Cell: s.Padding(0, 1), Table: s,
		StepDone: s, StepActive: s, StepPending: s,
		Positive: s, Negative: s, Neutral: s, Unclassified: s,
	}
}

// ToneStyle returns the style of an opinion tone
func (s Styles) ToneStyle(t report.Tone) lipgloss.Style {
	switch t {
	case report.TonePositive:
		return s.Positive
	case report.ToneNegative:
		return s.Negative
	case report.ToneNeutral:
		return s.Neutral
	default:
		return s.Unclassified
	}
}

package view

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/etdc/insight/pkg/domain"
	"github.com/etdc/insight/pkg/report"
)

// Dominant is the state of the dominant opinion request
type Dominant struct {
	Text    string
	Loading bool
	Err     error
}

// ReportData is everything shown on a report
type ReportData struct {
	TaskID   domain.TaskID
	Status   *domain.TaskStatus
	Report   report.Report
	Dominant Dominant
}

// Tab is a report section in display order
type Tab string

const (
	TabDialogs Tab = "Citizen appeals"
	TabLegal   Tab = "Legal acts"
	TabSocial  Tab = "Social media"
	TabWeb     Tab = "Web research"
)

// Tabs lists the report sections in display order
var Tabs = []Tab{TabDialogs, TabLegal, TabSocial, TabWeb}

// Report renders a full report
func (r *Renderer) Report(d ReportData) string {
	blocks := []string{
		r.reportHeader(d),
		r.Statistics(d.Report.Statistics),
		r.DominantOpinion(d.Dominant),
		r.SentimentTable(d.Report.Sentiment),
	}
	for _, tab := range Tabs {
		blocks = append(blocks, r.Tab(tab, d.Report))
	}
	return join(blocks...)
}

func (r *Renderer) reportHeader(d ReportData) string {
	title := "Research " + d.TaskID.String()
	badge := "Quick research"
	var elapsed string

	if s := d.Status; s != nil {
		if p := strings.TrimSpace(s.Prompt); p != "" {
			title = p
		}
		if s.FullResearch {
			badge = "Detailed research"
		}
		if e, ok := report.FormatElapsed(s.CreatedAt, s.FinishedAt); ok {
			elapsed = "Completed in " + e
		}
	}

	if r.opts.Plain {
		badge = "[" + badge + "]"
	}
	line := r.styles.Badge.Render(badge)
	if elapsed != "" {
		line += "  " + r.styles.Subtitle.Render(elapsed)
	}
	return join(r.styles.Title.Width(r.opts.Width).Render(title), line)
}

// Statistics renders the headline cards
func (r *Renderer) Statistics(stats []report.Statistic) string {
	if len(stats) == 0 {
		return ""
	}

	if r.opts.Plain {
		lines := make([]string, 0, len(stats))
		for _, s := range stats {
			line := fmt.Sprintf("%s: %d", s.Label, s.Value)
			if s.Relevant != nil {
				line += fmt.Sprintf(" (relevant: %d)", *s.Relevant)
			}
			lines = append(lines, line)
		}
		return join(r.section("Statistics"), strings.Join(lines, "\n"))
	}

	cards := make([]string, 0, len(stats))
	for _, s := range stats {
		body := r.styles.CardNum.Render(strconv.Itoa(s.Value)) + "\n" + s.Label
		if s.Relevant != nil {
			body += "\n" + r.styles.Muted.Render(fmt.Sprintf("relevant: %d", *s.Relevant))
		}
		cards = append(cards, r.styles.Card.Render(body))
	}

	// Four cards need about 96 columns; narrower terminals get a 2x2 grid.
	if r.opts.Width >= 4*lipgloss.Width(cards[0]) {
		return join(r.section("Statistics"), lipgloss.JoinHorizontal(lipgloss.Top, cards...))
	}
	var rows []string
	for i := 0; i < len(cards); i += 2 {
		end := min(i+2, len(cards))
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cards[i:end]...))
	}
	return join(r.section("Statistics"), join(rows...))
}

// DominantOpinion renders the dominant opinion block
func (r *Renderer) DominantOpinion(d Dominant) string {
	var body string
	switch {
	case d.Loading:
		body = r.styles.Muted.Render("Determining the dominant opinion...")
	case d.Err != nil || strings.TrimSpace(d.Text) == "":
		body = r.styles.Muted.Render("Dominant opinion unavailable")
	default:
		body = lipgloss.NewStyle().Width(r.opts.Width).Render(strings.TrimSpace(d.Text))
	}
	return join(r.section("Dominant opinion"), body)
}

// SentimentTable renders opinion counts per tone
func (r *Renderer) SentimentTable(s report.Sentiment) string {
	total := s.Total()
	percent := func(n int) string {
		if total == 0 {
			return "0%"
		}
		return fmt.Sprintf("%.0f%%", float64(n)*100/float64(total))
	}

	rows := [][]string{
		{"Positive", strconv.Itoa(s.Positive), percent(s.Positive)},
		{"Negative", strconv.Itoa(s.Negative), percent(s.Negative)},
		{"Neutral", strconv.Itoa(s.Neutral), percent(s.Neutral)},
	}
	if s.Unclassified > 0 {
		rows = append(rows, []string{"Unclassified", strconv.Itoa(s.Unclassified), percent(s.Unclassified)})
	}
	rows = append(rows, []string{"Total", strconv.Itoa(total), ""})

	tones := []report.Tone{report.TonePositive, report.ToneNegative, report.ToneNeutral, report.ToneUnclassified}
	t := r.table([]string{"Sentiment", "Opinions", "Share"}, rows).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return r.styles.Header
			}
			if col == 0 && row < len(rows)-1 {
				return r.styles.ToneStyle(tones[row]).Padding(0, 1)
			}
			return r.styles.Cell
		})
	return join(r.section("Sentiment"), t.Render())
}

// Tab renders one report section
func (r *Renderer) Tab(tab Tab, rep report.Report) string {
	var body string
	switch tab {
	case TabDialogs:
		body = r.sourcesAndOpinions(rep.Dialogs, rep.DialogsOpinion)
	case TabLegal:
		body = r.sourcesAndOpinions(rep.Legal, rep.LegalOpinion)
	case TabSocial:
		body = r.sourcesAndOpinions(rep.Social, rep.SocialOpinion)
	case TabWeb:
		body = r.web(rep.Citations, rep.ResearchText)
	}
	return join(r.section(string(tab)), body)
}

func (r *Renderer) sourcesAndOpinions(srcs []report.Source, opinions []report.Opinion) string {
	if len(srcs) == 0 && len(opinions) == 0 {
		return r.styles.Muted.Render("No data")
	}

	var blocks []string
	if len(opinions) > 0 {
		items := make([]string, 0, len(opinions))
		for i, o := range opinions {
			items = append(items, r.opinion(i+1, o))
		}
		blocks = append(blocks, strings.Join(items, "\n"))
	}
	if len(srcs) > 0 {
		lines := make([]string, 0, len(srcs)+1)
		lines = append(lines, r.styles.Subtitle.Render(fmt.Sprintf("Sources (%d)", len(srcs))))
		for i, s := range srcs {
			line := fmt.Sprintf("%d. %s", i+1, r.link(s.Link()))
			if d := s.Description(); d != "" {
				line += " " + r.styles.Muted.Render(d)
			}
			lines = append(lines, line)
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

func (r *Renderer) opinion(n int, o report.Opinion) string {
	tone := o.Tone()
	tag := o.Opinion.String()
	if tag == "" {
		tag = tone.Label()
	}

	head := fmt.Sprintf("%d. %s", n, r.styles.ToneStyle(tone).Render("["+tag+"]"))
	if score, ok := o.RelevScore.Float(); ok {
		head += r.styles.Muted.Render(fmt.Sprintf(" relevance %.2f", score))
	}

	lines := []string{head}
	if summary := o.Summary.String(); summary != "" {
		lines = append(lines, lipgloss.NewStyle().PaddingLeft(3).Width(r.opts.Width).Render(summary))
	}
	lines = append(lines, "   "+r.link(o.Link.String()))
	return strings.Join(lines, "\n")
}

func (r *Renderer) link(url string) string {
	if url == "" {
		return r.styles.Muted.Render("link missing")
	}
	return r.styles.Link.Render(url)
}

func (r *Renderer) web(citations []string, research string) string {
	if len(citations) == 0 && strings.TrimSpace(research) == "" {
		return r.styles.Muted.Render("No data")
	}

	var blocks []string
	if md := r.Markdown(research); md != "" {
		blocks = append(blocks, md)
	}
	if len(citations) > 0 {
		lines := []string{r.styles.Subtitle.Render(fmt.Sprintf("Citations (%d)", len(citations)))}
		for i, c := range citations {
			lines = append(lines, fmt.Sprintf("[%d] %s", i+1, r.link(c)))
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

// table builds a lipgloss table with the renderer's borders
func (r *Renderer) table(headers []string, rows [][]string) *table.Table {
	t := table.New().
		Headers(headers...).
		Rows(rows...)
	if r.opts.Plain {
		return t.Border(lipgloss.HiddenBorder()).BorderTop(false).BorderBottom(false).
			BorderLeft(false).BorderRight(false).BorderHeader(false).BorderColumn(false)
	}
	return t.Border(lipgloss.RoundedBorder()).BorderStyle(r.styles.Table)
}

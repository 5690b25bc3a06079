package view

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/etdc/insight/pkg/domain"
)

// DigestListing is a page of the digest listing
type DigestListing interface {
	Page() int
	Records() []domain.DigestRecord
	RowNumber(i int) int
	HasNext() bool
}

// Digests renders a page of digests as a table. An empty page shows a
// single "No data" row.
func (r *Renderer) Digests(l DigestListing) string {
	records := l.Records()

	rows := make([][]string, 0, max(len(records), 1))
	for i, rec := range records {
		rows = append(rows, []string{
			strconv.Itoa(l.RowNumber(i)),
			rec.Title,
			rec.Date,
			rec.ID.String(),
		})
	}
	empty := len(rows) == 0
	if empty {
		rows = append(rows, []string{"", "No data", "", ""})
	}

	t := r.table([]string{"#", "Title", "Date", "ID"}, rows).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return r.styles.Header
			case empty:
				return r.styles.Muted.Padding(0, 1)
			default:
				return r.styles.Cell
			}
		})

	nav := []string{"page " + strconv.Itoa(l.Page())}
	if l.Page() > 1 {
		nav = append(nav, "previous: --page "+strconv.Itoa(l.Page()-1))
	}
	if l.HasNext() {
		nav = append(nav, "next: --page "+strconv.Itoa(l.Page()+1))
	}

	return join(r.styles.Title.Render("Digests"), t.Render(), r.styles.Muted.Render(strings.Join(nav, "  ")))
}

// History renders the latest research strip
func (r *Renderer) History(items []domain.HistoryItem) string {
	title := r.styles.Title.Render("Latest research")
	if len(items) == 0 {
		return join(title, r.styles.Muted.Render("No research yet"))
	}

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		status := "in progress"
		if item.Status == domain.HistoryCompleted {
			status = "completed"
		}
		rows = append(rows, []string{item.ID.String(), item.Query, item.Date, status})
	}

	t := r.table([]string{"ID", "Query", "Date", "Status"}, rows).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return r.styles.Header
			case col == 3 && items[row].Status == domain.HistoryCompleted:
				return r.styles.Positive.Padding(0, 1)
			case col == 3:
				return r.styles.StepActive.Padding(0, 1)
			default:
				return r.styles.Cell
			}
		})
	return join(title, t.Render())
}

package report

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/entrhq/phantomas/pkg/metrics"
)

var (
	accent = lipgloss.Color("#FFB3BA")
	muted  = lipgloss.Color("#6B7280")

	headerStyle = lipgloss.NewStyle().
			Foreground(accent).
			Bold(true).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	noticeStyle = lipgloss.NewStyle().
			Foreground(muted)
)

type tableRenderer struct {
	color bool
}

func (t tableRenderer) Render(r *metrics.Report) (string, error) {
	rows := make([][]string, 0, len(r.Metrics))
	for _, name := range r.Names() {
		rows = append(rows, []string{name, metrics.FormatValue(r.Metrics[name])})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("metric", "value").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow && t.color {
				return headerStyle
			}
			return cellStyle
		})
	if t.color {
		tbl = tbl.BorderStyle(noticeStyle)
	}

	var b strings.Builder
	b.WriteString(r.URL + "\n")
	b.WriteString(tbl.String())

	for _, n := range r.Notices {
		line := "* " + n
		if t.color {
			line = noticeStyle.Render(line)
		}
		b.WriteString("\n" + line)
	}
	if r.TimedOut() {
		b.WriteString("\nRun timed out, results may be incomplete")
	}
	return b.String(), nil
}

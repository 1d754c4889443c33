package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"mutaba/internal/core"
)

var (
	colorBorder = lipgloss.Color("#575653")
	colorText   = lipgloss.Color("#FFFCF0")
	colorAccent = lipgloss.Color("#3AA99F")
	colorGreen  = lipgloss.Color("#879A39")
	colorOrange = lipgloss.Color("#DA702C")
	colorRed    = lipgloss.Color("#D14D41")
	colorMuted  = lipgloss.Color("#6F6E69")
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorText)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Foreground(colorText).Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
)

// Table is a bordered text table. Every column but the first is right-aligned.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// RenderTitle renders a title line for a report section.
func RenderTitle(title string) string {
	return titleStyle.Render(title)
}

// RenderTable renders t with rounded borders.
func RenderTable(t Table) string {
	if len(t.Rows) == 0 && len(t.Headers) == 0 {
		return ""
	}
	tbl := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorBorder)).
		Headers(t.Headers...).
		Rows(t.Rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 0 {
				return cellStyle
			}
			return cellStyle.Align(lipgloss.Right)
		})

	var b strings.Builder
	if t.Title != "" {
		b.WriteString(RenderTitle(t.Title))
		b.WriteString("\n")
	}
	b.WriteString(tbl.Render())
	b.WriteString("\n")
	return b.String()
}

// RenderSeverity colors a guidance severity label.
func RenderSeverity(s core.Severity) string {
	style := mutedStyle
	switch s {
	case core.SeverityCritical:
		style = lipgloss.NewStyle().Bold(true).Foreground(colorRed)
	case core.SeverityWarning:
		style = lipgloss.NewStyle().Foreground(colorOrange)
	}
	return style.Render(strings.ToUpper(string(s)))
}

// FormatAmount renders minor units in cur, e.g. "$1,200.50".
func FormatAmount(amountMinor int64, cur core.Currency) string {
	return cur.Format(amountMinor)
}

// FormatOptionalAmount renders nil as "n/a" for totals that could not be unified.
func FormatOptionalAmount(amountMinor *int64, cur core.Currency) string {
	if amountMinor == nil {
		return mutedStyle.Render("n/a")
	}
	return cur.Format(*amountMinor)
}

// FormatSigned renders an amount with an explicit sign, green when positive.
func FormatSigned(amountMinor int64, cur core.Currency) string {
	switch {
	case amountMinor > 0:
		return lipgloss.NewStyle().Foreground(colorGreen).Render("+" + cur.Format(amountMinor))
	case amountMinor < 0:
		return lipgloss.NewStyle().Foreground(colorRed).Render(cur.Format(amountMinor))
	}
	return cur.Format(0)
}

package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Column defines a table column. A zero Width sizes the column to its
// widest cell.
type Column struct {
	Title string
	Width int
}

// Row is a slice of cell values. Cells may already carry styling.
type Row []string

// Table renders a plain aligned table.
type Table struct {
	Columns []Column
	Rows    []Row
}

// NewTable creates a new table.
func NewTable(cols ...Column) *Table {
	return &Table{Columns: cols}
}

// AddRow appends a row.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, Row(cells))
}

// Render returns the full table as a string.
func (t *Table) Render() string {
	widths := t.widths()
	headerStyle := lipgloss.NewStyle().Foreground(ColorHighlight).Bold(true)

	var sb strings.Builder
	header := make([]string, len(t.Columns))
	divider := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		header[i] = headerStyle.Render(pad(col.Title, widths[i]))
		divider[i] = StyleMeta.Render(strings.Repeat("-", widths[i]))
	}
	sb.WriteString(strings.Join(header, " ") + "\n")
	sb.WriteString(strings.Join(divider, " ") + "\n")

	for _, row := range t.Rows {
		cells := make([]string, len(t.Columns))
		for j := range t.Columns {
			val := ""
			if j < len(row) {
				val = row[j]
			}
			cells[j] = pad(val, widths[j])
		}
		sb.WriteString(strings.TrimRight(strings.Join(cells, " "), " ") + "\n")
	}
	return sb.String()
}

func (t *Table) widths() []int {
	widths := make([]int, len(t.Columns))
	for i, col := range t.Columns {
		if col.Width > 0 {
			widths[i] = col.Width
			continue
		}
		widths[i] = lipgloss.Width(col.Title)
		for _, row := range t.Rows {
			if i < len(row) {
				widths[i] = max(widths[i], lipgloss.Width(row[i]))
			}
		}
	}
	return widths
}

// pad left-aligns s within width visible cells. Plain text longer than
// width is cut; styled text is left alone so escape codes stay intact.
func pad(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		if w == len(s) && w > width {
			return s[:width]
		}
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

// KeyValueBlock renders a set of key-value pairs in a bordered box.
func KeyValueBlock(title string, pairs [][2]string) string {
	var sb strings.Builder
	if title != "" {
		sb.WriteString(StyleTitle.Render(title))
		sb.WriteString("\n")
	}
	for _, p := range pairs {
		key := StyleMeta.Render(fmt.Sprintf("%-18s", p[0]+":"))
		sb.WriteString(key + " " + StyleValue.Render(p[1]) + "\n")
	}
	return StyleBorder.Render(strings.TrimRight(sb.String(), "\n"))
}

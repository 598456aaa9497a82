package ui

import (
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
)

// Column is one table column. Right aligns numbers.
type Column struct {
	Title string
	Width int
	Right bool
}

// Row is a slice of cell values.
type Row []string

// RowStyle picks how a whole row is drawn.
type RowStyle int

const (
	RowPlain RowStyle = iota
	// RowMine highlights rows that belong to the connected account.
	RowMine
	// RowDim greys out rows that no longer matter, such as ended campaigns.
	RowDim
)

type styledRow struct {
	cells Row
	style RowStyle
}

// Table renders fixed-width columns.
type Table struct {
	cols []Column
	rows []styledRow
}

// NewTable creates a table with the given columns.
func NewTable(cols []Column) *Table {
	return &Table{cols: cols}
}

// AddRow appends a plain row. Missing cells render empty.
func (t *Table) AddRow(r Row) { t.AddStyledRow(r, RowPlain) }

// AddStyledRow appends a row drawn with style.
func (t *Table) AddStyledRow(r Row, style RowStyle) {
	t.rows = append(t.rows, styledRow{cells: r, style: style})
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// fit places s in exactly width runes, truncating when needed. Cells are
// fitted before styling so lipgloss never wraps them.
func fit(s string, width int, right bool) string {
	n := utf8.RuneCountInString(s)
	if n > width {
		return Truncate(s, width)
	}
	gap := strings.Repeat(" ", width-n)
	if right {
		return gap + s
	}
	return s + gap
}

func pad(s string, width int) string { return fit(s, width, false) }

func (s RowStyle) lipgloss() lipgloss.Style {
	switch s {
	case RowMine:
		return lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
	case RowDim:
		return StyleMeta
	default:
		return lipgloss.NewStyle().Foreground(ColorValue)
	}
}

// Render returns the header, a rule and every row, each line ending in \n.
func (t *Table) Render() string {
	var sb strings.Builder
	line := func(cells []string) {
		sb.WriteString(strings.Join(cells, " "))
		sb.WriteByte('\n')
	}

	head := lipgloss.NewStyle().Foreground(ColorHighlight).Bold(true)
	cells := make([]string, len(t.cols))
	for i, c := range t.cols {
		cells[i] = head.Render(fit(c.Title, c.Width, c.Right))
	}
	line(cells)
	for i, c := range t.cols {
		cells[i] = StyleMeta.Render(strings.Repeat("-", c.Width))
	}
	line(cells)

	for _, r := range t.rows {
		st := r.style.lipgloss()
		for i, c := range t.cols {
			v := ""
			if i < len(r.cells) {
				v = r.cells[i]
			}
			cells[i] = st.Render(fit(v, c.Width, c.Right))
		}
		line(cells)
	}
	return sb.String()
}

// KeyValueBlock renders labelled values in a bordered box, keys aligned to
// the longest one.
func KeyValueBlock(title string, pairs [][2]string) string {
	width := 0
	for _, p := range pairs {
		if n := utf8.RuneCountInString(p[0]) + 1; n > width {
			width = n
		}
	}

	var sb strings.Builder
	if title != "" {
		sb.WriteString(StyleTitle.Render(title) + "\n")
	}
	for _, p := range pairs {
		sb.WriteString("  " + StyleMeta.Render(pad(p[0]+":", width)) + "  " + StyleValue.Render(p[1]) + "\n")
	}
	return StyleBorder.Render(sb.String())
}

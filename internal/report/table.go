package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

// textTable lays out rows in fixed-width columns. Widths are measured in
// terminal cells so accented and wide names stay aligned.
type textTable struct {
	headers []string
	rows    [][]string
	right   map[int]bool
}

func newTextTable(headers ...string) *textTable {
	return &textTable{headers: headers, right: map[int]bool{}}
}

func (t *textTable) alignRight(cols ...int) *textTable {
	for _, c := range cols {
		t.right[c] = true
	}
	return t
}

func (t *textTable) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *textTable) widths() []int {
	colCount := len(t.headers)
	for _, row := range t.rows {
		if len(row) > colCount {
			colCount = len(row)
		}
	}
	widths := make([]int, colCount)
	measure := func(row []string) {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	measure(t.headers)
	for _, row := range t.rows {
		measure(row)
	}
	return widths
}

func (t *textTable) lines() []string {
	widths := t.widths()
	if len(widths) == 0 {
		return nil
	}
	lines := make([]string, 0, len(t.rows)+1)
	if len(t.headers) > 0 {
		lines = append(lines, t.formatRow(t.headers, widths))
	}
	for _, row := range t.rows {
		lines = append(lines, t.formatRow(row, widths))
	}
	return lines
}

func (t *textTable) formatRow(row []string, widths []int) string {
	var b strings.Builder
	for i, width := range widths {
		cell := ""
		if i < len(row) {
			cell = row[i]
		}
		if i > 0 {
			b.WriteByte(' ')
		}
		pad := width - runewidth.StringWidth(cell)
		if pad < 0 {
			pad = 0
		}
		if t.right[i] {
			b.WriteString(strings.Repeat(" ", pad) + cell)
		} else if i == len(widths)-1 {
			b.WriteString(cell)
		} else {
			b.WriteString(cell + strings.Repeat(" ", pad))
		}
	}
	return b.String()
}

func (t *textTable) write(w io.Writer) error {
	for _, line := range t.lines() {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// ABOUTME: Finds tables in page rows and serializes them as pipe-separated text
// ABOUTME: A table is a run of aligned rows that each hold the same number of cells
package extract

import "strings"

const minTableRows = 2

// Table is a grid of cell strings in reading order
type Table [][]string

// DetectTables returns every run of at least two consecutive rows that each
// have two or more blocks and share the same block count
func DetectTables(rows []Row) []Table {
	var (
		tables []Table
		run    Table
		width  int
	)
	closeRun := func() {
		if len(run) >= minTableRows {
			tables = append(tables, run)
		}
		run, width = nil, 0
	}

	for _, row := range rows {
		n := len(row.Blocks)
		if n < 2 {
			closeRun()
			continue
		}
		if width != 0 && n != width {
			closeRun()
		}
		width = n
		run = append(run, row.Blocks)
	}
	closeRun()

	return tables
}

// Serialize joins cells with " | " and rows with "\n". Short rows are
// padded with empty cells to the table width.
func (t Table) Serialize() string {
	width := 0
	for _, row := range t {
		if len(row) > width {
			width = len(row)
		}
	}

	lines := make([]string, 0, len(t))
	for _, row := range t {
		if len(row) == 0 {
			continue
		}
		cells := make([]string, width)
		for i := range cells {
			if i < len(row) {
				cells[i] = strings.TrimSpace(row[i])
			}
		}
		lines = append(lines, strings.Join(cells, " | "))
	}
	return strings.Join(lines, "\n")
}

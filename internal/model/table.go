package model

import "strings"

// Table is the rectangular input handed to the pipeline: named columns over
// string cells, exactly as parsed from a CSV/XLSX export. The pipeline never
// mutates a Table it is given.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// ColumnIndex returns the position of the named column, or -1. Matching is
// case-insensitive; the first match wins when a file repeats a header.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// Cell returns the value at (row, column index), or "" when the row is
// ragged and does not reach the column.
func (t *Table) Cell(row, col int) string {
	if col < 0 || row < 0 || row >= len(t.Rows) {
		return ""
	}
	r := t.Rows[row]
	if col >= len(r) {
		return ""
	}
	return r[col]
}

// Package ingest loads campaign performance exports from CSV and XLSX files
// into a uniform table for the scoring pipeline.
package ingest

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/caliber-analytics/caliber-cli/internal/model"
)

// Options configures how an export file is parsed.
type Options struct {
	Delimiter  rune   // CSV delimiter, default ','
	SheetIndex int    // XLSX sheet, default 0
	SheetName  string // if set, overrides SheetIndex
	SkipRows   int    // rows to skip before the header
}

// Load reads a performance export, dispatching on file extension.
// The first non-skipped row becomes the header.
func Load(path string, opts Options) (*model.Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt", ".tsv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "ingest: open file")
		}
		defer f.Close()
		if opts.Delimiter == 0 && strings.EqualFold(filepath.Ext(path), ".tsv") {
			opts.Delimiter = '\t'
		}
		return ReadCSV(f, opts)
	case ".xlsx", ".xlsm":
		return ReadXLSX(path, opts)
	default:
		return nil, eris.Errorf("ingest: unsupported file type %q", filepath.Ext(path))
	}
}

// buildTable converts raw rows into a Table, treating the first row as the
// header and padding ragged data rows to the header width.
func buildTable(rows [][]string) (*model.Table, error) {
	if len(rows) == 0 {
		return nil, eris.New("ingest: file contains no rows")
	}

	header := make([]string, len(rows[0]))
	for i, c := range rows[0] {
		header[i] = strings.TrimSpace(c)
	}

	tbl := &model.Table{Columns: header}
	for _, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		if len(row) < len(header) {
			padded := make([]string, len(header))
			copy(padded, row)
			row = padded
		}
		tbl.Rows = append(tbl.Rows, row[:len(header)])
	}

	return tbl, nil
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

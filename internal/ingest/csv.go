package ingest

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/caliber-analytics/caliber-cli/internal/model"
)

// ReadCSV parses a CSV export into a Table. Exports saved from Excel often
// carry a UTF-8 BOM, which is stripped before parsing.
func ReadCSV(r io.Reader, opts Options) (*model.Table, error) {
	bomAware := unicode.UTF8BOM.NewDecoder()
	reader := csv.NewReader(transform.NewReader(r, bomAware))
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1 // allow variable fields

	var rows [][]string
	skipped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "ingest: read csv row")
		}

		if skipped < opts.SkipRows {
			skipped++
			continue
		}

		for i, field := range record {
			record[i] = strings.TrimSpace(field)
		}
		rows = append(rows, record)
	}

	return buildTable(rows)
}

package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func TestReadCSV(t *testing.T) {
	t.Parallel()

	t.Run("parses header and rows", func(t *testing.T) {
		t.Parallel()
		in := "Site,Impressions,CTR\nexample.com,1200,0.4%\nother.com,300,0.1%\n"
		tbl, err := ReadCSV(strings.NewReader(in), Options{})
		require.NoError(t, err)
		assert.Equal(t, []string{"Site", "Impressions", "CTR"}, tbl.Columns)
		require.Len(t, tbl.Rows, 2)
		assert.Equal(t, "0.4%", tbl.Cell(0, 2))
	})

	t.Run("strips UTF-8 BOM", func(t *testing.T) {
		t.Parallel()
		in := "\uFEFF" + "Site,Impressions\nexample.com,10\n"
		tbl, err := ReadCSV(strings.NewReader(in), Options{})
		require.NoError(t, err)
		assert.Equal(t, "Site", tbl.Columns[0])
	})

	t.Run("skips leading preamble rows", func(t *testing.T) {
		t.Parallel()
		in := "Report generated 2026-07-01\nSite,Impressions\nexample.com,10\n"
		tbl, err := ReadCSV(strings.NewReader(in), Options{SkipRows: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"Site", "Impressions"}, tbl.Columns)
		assert.Len(t, tbl.Rows, 1)
	})

	t.Run("pads ragged rows and drops blank rows", func(t *testing.T) {
		t.Parallel()
		in := "Site,Impressions,CTR\nexample.com,10\n,,\n"
		tbl, err := ReadCSV(strings.NewReader(in), Options{})
		require.NoError(t, err)
		require.Len(t, tbl.Rows, 1)
		assert.Equal(t, "", tbl.Cell(0, 2))
	})

	t.Run("rejects empty input", func(t *testing.T) {
		t.Parallel()
		_, err := ReadCSV(strings.NewReader(""), Options{})
		assert.Error(t, err)
	})
}

func TestParseNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want float64
		ok   bool
	}{
		{"plain integer", "1200", 1200, true},
		{"thousands separators", "1,234,567", 1234567, true},
		{"currency", "$4.25", 4.25, true},
		{"percent sign stripped", "0.45%", 0.45, true},
		{"whitespace", " 12.5 ", 12.5, true},
		{"negative", "-3.2", -3.2, true},
		{"parenthesized negative", "($1,250.50)", -1250.50, true},
		{"empty", "", 0, false},
		{"dash placeholder", "-", 0, false},
		{"not a number", "abc", 0, false},
		{"n/a placeholder", "N/A", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseNumber(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestPickSheetBounds(t *testing.T) {
	t.Parallel()

	f := xlsx.NewFile()
	_, err := f.AddSheet("Data")
	require.NoError(t, err)

	_, err = pickSheet(f, Options{SheetIndex: 0})
	require.NoError(t, err)

	_, err = pickSheet(f, Options{SheetIndex: -1})
	assert.ErrorContains(t, err, "out of range")

	_, err = pickSheet(f, Options{SheetIndex: 1})
	assert.ErrorContains(t, err, "out of range")

	_, err = pickSheet(f, Options{SheetName: "Missing"})
	assert.Error(t, err)
}

func TestIsPercent(t *testing.T) {
	t.Parallel()
	assert.True(t, IsPercent("0.4%"))
	assert.False(t, IsPercent("0.004"))
}

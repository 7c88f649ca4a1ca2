package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/caliber-analytics/caliber-cli/internal/model"
	"github.com/caliber-analytics/caliber-cli/internal/pipeline"
)

func writeJSON(w io.Writer, result *pipeline.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Summary *model.PipelineSummary `json:"summary"`
		Rows    []*model.InventoryRow  `json:"rows"`
	}{result.Summary, result.Rows})
}

var csvHeader = []string{
	"identifier", "vendor", "impressions", "score", "status",
	"percentile_rank", "performance_tier", "explanation", "quality_flags",
}

func writeCSV(w io.Writer, rows []*model.InventoryRow) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.Identifier,
			row.Vendor,
			strconv.FormatFloat(row.Impressions, 'f', 0, 64),
			strconv.FormatFloat(row.Score, 'f', 2, 64),
			string(row.Status),
			strconv.FormatFloat(row.PercentileRank, 'f', 1, 64),
			string(row.Tier),
			row.Explanation,
			strings.Join(row.QualityFlags, ";"),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var (
	statusGreen  = color.New(color.FgGreen).SprintFunc()
	statusYellow = color.New(color.FgYellow).SprintFunc()
	statusRed    = color.New(color.FgRed).SprintFunc()
)

func colorStatus(status model.Status) string {
	switch status {
	case model.StatusGood:
		return statusGreen(string(status))
	case model.StatusModerate:
		return statusYellow(string(status))
	default:
		return statusRed(string(status))
	}
}

func writeTable(w io.Writer, result *pipeline.Result) error {
	sum := result.Summary

	fmt.Fprintf(w, "Source: %s  Channel: %s  Goal: %s  Level: %s  (confidence %.0f%%)\n",
		sum.Source, sum.Channel, sum.Goal, sum.AnalysisLevel, sum.DetectionConfidence*100)
	fmt.Fprintf(w, "Rows: %d of %d kept  Campaign score: %.1f\n", sum.FinalRows, sum.OriginalRows, sum.CampaignScore)
	if sum.ReducedFeatureSet {
		fmt.Fprintf(w, "Warning: scored without %s; not comparable with full-featured runs\n",
			strings.Join(sum.MissingMetrics, ", "))
	}
	fmt.Fprintln(w)

	rows := append([]*model.InventoryRow(nil), result.Rows...)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Score > rows[j].Score })

	table := tablewriter.NewWriter(w)
	table.Header([]string{"Rank", "Identifier", "Impressions", "Score", "Status", "Pctl", "Tier", "Explanation"})

	data := make([][]string, 0, len(rows))
	for i, row := range rows {
		data = append(data, []string{
			strconv.Itoa(i + 1),
			row.Identifier,
			strconv.FormatFloat(row.Impressions, 'f', 0, 64),
			strconv.FormatFloat(row.Score, 'f', 1, 64),
			colorStatus(row.Status),
			strconv.FormatFloat(row.PercentileRank, 'f', 0, 64),
			string(row.Tier),
			row.Explanation,
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	writeLists(w, sum)
	return nil
}

func writeLists(w io.Writer, sum *model.PipelineSummary) {
	if len(sum.Whitelist) > 0 {
		fmt.Fprintf(w, "\nWhitelist (%d): %s\n", len(sum.Whitelist), strings.Join(sum.Whitelist, ", "))
	}
	if len(sum.Blacklist) > 0 {
		fmt.Fprintf(w, "Blacklist (%d): %s\n", len(sum.Blacklist), strings.Join(sum.Blacklist, ", "))
	}
	if len(sum.VendorGuidance) > 0 {
		fmt.Fprintln(w, "\nBenchmark vendors:")
		for _, v := range sum.VendorGuidance {
			fmt.Fprintf(w, "  %-30s avg %.1f over %d rows\n", v.Name, v.AverageScore, v.RowCount)
		}
	}
}

package pipeline

import (
	"fmt"
	"strings"

	"github.com/caliber-analytics/caliber-cli/internal/model"
)

// Explain attaches a one-line, rule-based rationale to every row built from
// the dominant weighted metric and the row's quality tier. No external
// calls; the output must stay reproducible from the inputs alone.
func Explain(rows []*model.InventoryRow, cfg model.ScoringConfig, weights map[string]float64) {
	dominant := dominantMetric(weights)
	if dominant == "" {
		return
	}
	spec, _ := cfg.Metric(dominant)

	for _, row := range rows {
		raw, _ := row.Raw(dominant)
		value := formatMetricValue(dominant, raw)
		label := metricLabel(dominant)

		switch {
		case row.Status == model.StatusGood && spec.Direction == model.DirectionLower:
			row.Explanation = fmt.Sprintf("Efficient %s of %s with solid engagement", label, value)
		case row.Status == model.StatusGood:
			row.Explanation = fmt.Sprintf("High %s of %s drives strong performance", label, value)
		case row.Status == model.StatusModerate && spec.Direction == model.DirectionLower:
			row.Explanation = fmt.Sprintf("%s of %s is acceptable but could be optimized", label, value)
		case row.Status == model.StatusModerate:
			row.Explanation = fmt.Sprintf("Moderate %s of %s with room for improvement", label, value)
		case spec.Direction == model.DirectionLower:
			row.Explanation = fmt.Sprintf("High %s of %s reduces cost efficiency", label, value)
		default:
			row.Explanation = fmt.Sprintf("Low %s of %s significantly impacts performance", label, value)
		}
	}
}

// dominantMetric returns the metric carrying the largest weight, breaking
// ties by name so explanations stay deterministic.
func dominantMetric(weights map[string]float64) string {
	var best string
	bestWeight := -1.0
	for name, w := range weights {
		if w > bestWeight || (w == bestWeight && name < best) {
			best = name
			bestWeight = w
		}
	}
	return best
}

var metricLabels = map[string]string{
	"cpm":                          "CPM",
	"ecpm":                         "eCPM",
	"ctr":                          "CTR",
	"conversion_rate":              "conversion rate",
	"completion_rate":              "completion rate",
	"ias_display_fully_in_view_1s": "viewability",
	"ad_load_rate":                 "ad load rate",
	"ad_refresh_rate":              "ad refresh rate",
	"sampled_in_view":              "in-view rate",
	"player_completion":            "player completion",
	"player_errors":                "player error rate",
	"player_mute":                  "mute rate",
	"tv_quality_index_ratio":       "TV quality index",
	"unique_id_ratio":              "unique ID ratio",
}

func metricLabel(name string) string {
	if label, ok := metricLabels[name]; ok {
		return label
	}
	return strings.ReplaceAll(name, "_", " ")
}

// formatMetricValue renders the raw metric the way media buyers read it:
// cost metrics as dollars, rates as percentages, ratios as plain numbers.
func formatMetricValue(name string, v float64) string {
	switch {
	case name == "cpm" || name == "ecpm":
		return fmt.Sprintf("$%.2f", v)
	case rateColumns[name]:
		return fmt.Sprintf("%.2f%%", v*100)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

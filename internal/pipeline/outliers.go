package pipeline

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/caliber-analytics/caliber-cli/internal/model"
)

// OutlierOptions tunes extreme-outlier removal.
type OutlierOptions struct {
	// ZThreshold is the modified z-score cutoff.
	ZThreshold float64
	// MaxFraction skips removal for a metric when more than this fraction
	// of values would be flagged, to avoid gutting legitimately skewed
	// distributions.
	MaxFraction float64
	// MinValues is the minimum number of valid values a metric needs
	// before outlier detection applies at all.
	MinValues int
}

// winsorBounds holds the percentile caps applied to one metric class.
type winsorBounds struct {
	low, high float64
}

// Rates get tighter caps than cost metrics; volume and spend get the
// loosest because heavy tails there are usually real.
var winsorClasses = map[string]winsorBounds{
	"cpm":  {0.01, 0.99},
	"ecpm": {0.01, 0.99},

	"ctr": {0.005, 0.995}, "conversion_rate": {0.005, 0.995},
	"completion_rate": {0.005, 0.995}, "ias_display_fully_in_view_1s": {0.005, 0.995},
	"ad_load_rate": {0.005, 0.995}, "ad_refresh_rate": {0.005, 0.995},
	"sampled_in_view": {0.005, 0.995}, "player_completion": {0.005, 0.995},
	"player_errors": {0.005, 0.995}, "player_mute": {0.005, 0.995},
	"tv_quality_index_ratio": {0.005, 0.995}, "unique_id_ratio": {0.005, 0.995},

	"impressions": {0.02, 0.98},
	"total_spend": {0.02, 0.98},
}

// HandleOutliers removes rows carrying extreme values and then winsorizes
// the surviving tails per configured metric. Winsorized values go into each
// row's Winsorized map; raw values stay untouched for display.
func HandleOutliers(rows []*model.InventoryRow, cfg model.ScoringConfig, opts OutlierOptions, sum *model.PipelineSummary) []*model.InventoryRow {
	metrics := outlierMetrics(cfg)

	for _, metric := range metrics {
		var stats model.OutlierStats
		rows, stats = removeExtremes(rows, metric, opts)
		sum.OutlierStats = append(sum.OutlierStats, stats)
		sum.Exclude("extreme_outlier_"+metric, stats.RowsRemoved)
	}

	for _, metric := range metrics {
		bounds, ok := winsorClasses[metric]
		if !ok {
			bounds = winsorBounds{0.01, 0.99}
		}
		capped, lower, upper := winsorize(rows, metric, bounds, opts.MinValues)
		if capped < 0 {
			continue
		}
		for i := range sum.OutlierStats {
			if sum.OutlierStats[i].Metric == metric {
				sum.OutlierStats[i].LowerCap = lower
				sum.OutlierStats[i].UpperCap = upper
				sum.OutlierStats[i].ValuesCapped = capped
			}
		}
	}

	return rows
}

// outlierMetrics is the configured metric set plus impressions, whose
// extremes distort the volume-sensitive downstream stages.
func outlierMetrics(cfg model.ScoringConfig) []string {
	metrics := make([]string, 0, len(cfg.Metrics)+1)
	for _, m := range cfg.Metrics {
		metrics = append(metrics, m.Name)
	}
	metrics = append(metrics, "impressions")
	return metrics
}

// removeExtremes drops rows whose modified z-score for the metric exceeds
// the threshold. The modified z-score uses the median and MAD, so a handful
// of wild values cannot mask each other the way they do with mean/stddev.
func removeExtremes(rows []*model.InventoryRow, metric string, opts OutlierOptions) ([]*model.InventoryRow, model.OutlierStats) {
	stats := model.OutlierStats{Metric: metric}

	values := make([]float64, 0, len(rows))
	for _, row := range rows {
		if v, ok := row.RawMetrics[metric]; ok {
			values = append(values, v)
		}
	}
	if len(values) < opts.MinValues {
		stats.Skipped = true
		stats.SkipReason = fmt.Sprintf("only %d values, need %d", len(values), opts.MinValues)
		return rows, stats
	}

	median, mad := medianMAD(values)
	stats.Median = median
	stats.MAD = mad

	outlier := func(v float64) bool {
		if mad == 0 {
			return false
		}
		return math.Abs(0.6745*(v-median)/mad) > opts.ZThreshold
	}

	flagged := 0
	for _, v := range values {
		if outlier(v) {
			flagged++
		}
	}
	fraction := float64(flagged) / float64(len(values))
	stats.OutlierFraction = fraction

	if fraction >= opts.MaxFraction {
		stats.Skipped = true
		stats.SkipReason = fmt.Sprintf("%.0f%% of values flagged, distribution looks skewed rather than noisy", fraction*100)
		return rows, stats
	}

	kept := rows[:0]
	for _, row := range rows {
		v, ok := row.RawMetrics[metric]
		if ok && outlier(v) {
			stats.RowsRemoved++
			continue
		}
		kept = append(kept, row)
	}
	return kept, stats
}

// medianMAD returns the median and the median absolute deviation. When the
// MAD collapses to zero (over half the values identical), it falls back to
// a scaled deviation around the mean so the z-score stays usable.
func medianMAD(values []float64) (median, mad float64) {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	median = stat.Quantile(0.5, stat.LinInterp, sorted, nil)

	deviations := make([]float64, len(values))
	for i, v := range values {
		deviations[i] = math.Abs(v - median)
	}
	sort.Float64s(deviations)
	mad = stat.Quantile(0.5, stat.LinInterp, deviations, nil)

	if mad == 0 {
		mean := stat.Mean(values, nil)
		for i, v := range values {
			deviations[i] = math.Abs(v - mean)
		}
		sort.Float64s(deviations)
		mad = 1.4826 * stat.Quantile(0.5, stat.LinInterp, deviations, nil)
	}
	return median, mad
}

// winsorize caps the metric at the class percentiles, writing results into
// each row's Winsorized map and flagging capped rows. Returns -1 capped
// values when the metric had too few values to winsorize.
func winsorize(rows []*model.InventoryRow, metric string, bounds winsorBounds, minValues int) (capped int, lower, upper float64) {
	values := make([]float64, 0, len(rows))
	for _, row := range rows {
		if v, ok := row.RawMetrics[metric]; ok {
			values = append(values, v)
		}
	}
	if len(values) < minValues {
		return -1, 0, 0
	}

	sort.Float64s(values)
	lower = stat.Quantile(bounds.low, stat.LinInterp, values, nil)
	upper = stat.Quantile(bounds.high, stat.LinInterp, values, nil)

	for _, row := range rows {
		v, ok := row.RawMetrics[metric]
		if !ok {
			continue
		}
		switch {
		case v < lower:
			row.Winsorized[metric] = lower
			row.Flag("winsorized_" + strings.ToLower(metric))
			capped++
		case v > upper:
			row.Winsorized[metric] = upper
			row.Flag("winsorized_" + strings.ToLower(metric))
			capped++
		default:
			row.Winsorized[metric] = v
		}
	}
	return capped, lower, upper
}

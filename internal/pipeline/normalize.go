package pipeline

import (
	"github.com/caliber-analytics/caliber-cli/internal/model"
)

// Normalize rescales every configured metric to [0,1] and writes the result
// into each row's Normalized map.
//
// Lower-is-better metrics are inverted so 1 is always the best value. A
// metric with a single distinct value normalizes to 0 for every row, and a
// row missing the metric entirely gets 0 — both are deliberate policies,
// recorded on the summary, not statistical imputation.
func Normalize(rows []*model.InventoryRow, cfg model.ScoringConfig, sum *model.PipelineSummary) {
	for _, spec := range cfg.Metrics {
		stats := normalizeMetric(rows, spec)
		sum.Normalization = append(sum.Normalization, stats)
	}
}

func normalizeMetric(rows []*model.InventoryRow, spec model.MetricSpec) model.NormalizationStats {
	stats := model.NormalizationStats{
		Metric:    spec.Name,
		Direction: spec.Direction,
		Inverted:  spec.Direction == model.DirectionLower,
	}

	min, max := 0.0, 0.0
	distinct := 0
	for _, row := range rows {
		v, ok := row.ScoringValue(spec.Name)
		if !ok {
			continue
		}
		if distinct == 0 {
			min, max = v, v
			distinct = 1
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		if v != min || v != max {
			distinct = 2
		}
	}
	stats.Min = min
	stats.Max = max

	if distinct == 0 {
		stats.Method = "absent"
		return stats
	}

	if min == max {
		stats.Method = "uniform"
		stats.AllEqual = true
		for _, row := range rows {
			if _, ok := row.ScoringValue(spec.Name); ok {
				row.Normalized[spec.Name] = 0
				row.Flag("degenerate_" + spec.Name)
			}
		}
		return stats
	}

	if stats.Inverted {
		stats.Method = "min_max_inverted"
	} else {
		stats.Method = "min_max"
	}

	span := max - min
	for _, row := range rows {
		v, ok := row.ScoringValue(spec.Name)
		if !ok {
			continue
		}
		scaled := (v - min) / span
		if stats.Inverted {
			scaled = 1 - scaled
		}
		row.Normalized[spec.Name] = scaled
	}
	return stats
}

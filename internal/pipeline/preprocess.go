package pipeline

import (
	"strings"

	"github.com/caliber-analytics/caliber-cli/internal/ingest"
	"github.com/caliber-analytics/caliber-cli/internal/model"
)

// headerSynonyms maps normalized header variants to canonical metric names.
// Applied after normalizeHeader, so keys are already lowercase/underscored.
var headerSynonyms = map[string]string{
	"domains": "domain", "site": "domain", "website": "domain",
	"app": "app_name", "application": "app_name",
	"impression": "impressions", "imps": "impressions", "views": "impressions", "view": "impressions",
	"click_through_rate": "ctr", "clickthrough_rate": "ctr", "click_rate": "ctr", "clicks_per_impression": "ctr",
	"conversion": "conversions", "conv": "conversions", "actions": "conversions", "action": "conversions",
	"spend": "total_spend", "cost": "total_spend", "total_cost": "total_spend", "budget": "total_spend",
	"pub":    "publisher",
	"vendor": "supply_vendor", "supplier": "supply_vendor", "partner": "supply_vendor", "ssp": "supply_vendor",
	"cost_per_mille": "cpm", "cost_per_thousand": "cpm",
	"effective_cpm":  "ecpm",
	"click":          "clicks",
	// The trade desk's attribution column feeds the conversion_rate metric.
	"all_last_click_view_conversion_rate": "conversion_rate",
}

// numericColumns are parsed into row metric maps; everything else is text.
var numericColumns = map[string]bool{
	"impressions": true, "total_spend": true, "advertiser_cost": true,
	"cpm": true, "ecpm": true, "ctr": true, "clicks": true,
	"conversions": true, "conversion_rate": true, "completion_rate": true,
	"ias_display_fully_in_view_1s": true,
	"ad_load_xl_imps":              true, "ad_refresh_15s_imps": true,
	"sampled_in_view": true, "player_completion": true,
	"player_errors": true, "player_mute": true,
	"sampled_tracked_impressions": true, "sampled_viewed_impressions": true,
	"player_completed_views": true, "player_starts": true,
	"tv_quality_index_raw": true, "tv_quality_index_measured": true,
	"unique_ids": true,
}

// rateColumns hold fractions in [0,1]. Cells written as percentages are
// divided by 100 at parse time.
var rateColumns = map[string]bool{
	"ctr": true, "conversion_rate": true, "completion_rate": true,
	"ias_display_fully_in_view_1s": true, "sampled_in_view": true,
	"player_completion": true, "player_errors": true, "player_mute": true,
	"ad_load_rate": true, "ad_refresh_rate": true,
}

// boundedRates must stay within [0,1] after cleaning; rows that still
// exceed 1 are dropped rather than clamped.
var boundedRates = []string{"ctr", "conversion_rate", "completion_rate", "ad_load_rate", "ad_refresh_rate"}

// exclusionVocabulary matches aggregate/summary rows by their identifier.
// Matching is exact (case-insensitive) and restricted to the first column.
var exclusionVocabulary = map[string]bool{
	"row labels":       true,
	"grand total":      true,
	"tail aggregate":   true,
	"[tail aggregate]": true,
	"summary":          true,
}

// PreprocessOptions carries the source-specific minimum-volume floors.
type PreprocessOptions struct {
	TradeDeskImpressionFloor  float64
	MobileAppImpressionFloor  float64
	PulsePointImpressionFloor float64
	// PulsePointImpressionShare is the fraction of total impressions a
	// pulsepoint row must reach; the effective floor is
	// max(PulsePointImpressionFloor, share × total).
	PulsePointImpressionShare float64
}

// CanonicalColumn resolves a raw header to its canonical metric name.
func CanonicalColumn(col string) string {
	normalized := normalizeHeader(col)
	if canonical, ok := headerSynonyms[normalized]; ok {
		return canonical
	}
	return normalized
}

// Preprocess turns the raw table into cleaned inventory rows: it
// canonicalizes headers, strips aggregate rows, parses and cleans values,
// aggregates duplicates, derives calculated metrics, and applies the
// minimum-volume and validity filters. Exclusion counts are tallied on sum.
func Preprocess(tbl *model.Table, cfg model.ScoringConfig, opts PreprocessOptions, sum *model.PipelineSummary) ([]*model.InventoryRow, error) {
	columns := make([]string, len(tbl.Columns))
	for i, col := range tbl.Columns {
		columns[i] = CanonicalColumn(col)
	}

	colIndex := make(map[string]int, len(columns))
	for i, col := range columns {
		if _, seen := colIndex[col]; !seen {
			colIndex[col] = i
		}
	}

	// A canonicalized view of the table for by-name column lookups.
	canon := &model.Table{Columns: columns, Rows: tbl.Rows}
	idCol := identifierColumn(canon, cfg.AnalysisLevel)
	vendorCol := canon.ColumnIndex("supply_vendor")
	appCol := canon.ColumnIndex("app_name")
	hasVendor := vendorCol >= 0
	hasApp := appCol >= 0

	rows := make([]*model.InventoryRow, 0, len(tbl.Rows))
	excluded := 0
	for r := range tbl.Rows {
		first := strings.ToLower(strings.TrimSpace(tbl.Cell(r, 0)))
		if exclusionVocabulary[first] {
			excluded++
			continue
		}

		row := &model.InventoryRow{
			Identifier: strings.TrimSpace(tbl.Cell(r, idCol)),
			RawMetrics: make(map[string]float64),
			Winsorized: make(map[string]float64),
			Normalized: make(map[string]float64),
		}
		if hasVendor {
			row.Vendor = strings.TrimSpace(tbl.Cell(r, vendorCol))
		}
		if hasApp && strings.TrimSpace(tbl.Cell(r, appCol)) != "" {
			row.MobileApp = true
		}

		for col, i := range colIndex {
			if !numericColumns[col] {
				continue
			}
			cell := tbl.Cell(r, i)
			v, ok := ingest.ParseNumber(cell)
			if !ok {
				continue
			}
			if rateColumns[col] && ingest.IsPercent(cell) {
				v /= 100
			}
			row.RawMetrics[col] = v
		}
		row.Impressions = row.RawMetrics["impressions"]
		rows = append(rows, row)
	}
	sum.Exclude("aggregate_row", excluded)

	normalizeCTRScale(rows)

	if cfg.Source == model.SourcePulsePoint {
		before := len(rows)
		rows = aggregateByIdentifier(rows)
		sum.Exclude("aggregated_duplicate", before-len(rows))
		recalcPulsePoint(rows)
	}

	if cfg.AnalysisLevel == model.LevelSupplyVendor && cfg.Source == model.SourceTradeDesk {
		before := len(rows)
		rows = groupBySupplyVendor(rows)
		sum.Exclude("grouped_by_vendor", before-len(rows))
	}

	deriveMetrics(rows, cfg)

	before := len(rows)
	rows = applyVolumeFloor(rows, cfg.Source, opts)
	sum.Exclude("below_volume_floor", before-len(rows))

	before = len(rows)
	rows = finalClean(rows)
	sum.Exclude("invalid_values", before-len(rows))

	if len(rows) == 0 {
		return nil, &model.EmptyResultError{Stage: "preprocessing"}
	}
	return rows, nil
}

// identifierColumn picks the column rows are identified by: the supply
// vendor at vendor level, otherwise the domain with vendor and app
// fallbacks for files that carry no domain column.
func identifierColumn(canon *model.Table, level model.AnalysisLevel) int {
	if level == model.LevelSupplyVendor {
		if i := canon.ColumnIndex("supply_vendor"); i >= 0 {
			return i
		}
	}
	for _, col := range []string{"domain", "supply_vendor", "app_name"} {
		if i := canon.ColumnIndex(col); i >= 0 {
			return i
		}
	}
	return 0
}

// normalizeCTRScale converts a CTR column reported in percentage points
// (max > 1) to a decimal fraction. Applied across the whole column so mixed
// scales cannot result.
func normalizeCTRScale(rows []*model.InventoryRow) {
	maxCTR := 0.0
	any := false
	for _, row := range rows {
		if v, ok := row.RawMetrics["ctr"]; ok {
			any = true
			if v > maxCTR {
				maxCTR = v
			}
		}
	}
	if !any || maxCTR <= 1 {
		return
	}
	for _, row := range rows {
		if v, ok := row.RawMetrics["ctr"]; ok {
			row.RawMetrics["ctr"] = v / 100
		}
	}
}

// summedMetrics are the counters that may be added when rows merge.
var summedMetrics = []string{
	"impressions", "total_spend", "advertiser_cost", "clicks", "conversions",
	"ad_load_xl_imps", "ad_refresh_15s_imps",
	"sampled_tracked_impressions", "sampled_viewed_impressions",
	"player_completed_views", "player_starts",
	"tv_quality_index_raw", "tv_quality_index_measured", "unique_ids",
}

// weightedMetrics are rates merged as impression-weighted means. Rates that
// can be re-derived from summed counters are recomputed afterward instead.
var weightedMetrics = []string{
	"ctr", "completion_rate", "ias_display_fully_in_view_1s",
	"sampled_in_view", "player_completion", "player_errors", "player_mute",
}

// aggregateByIdentifier merges rows sharing one identifier by summing
// counters and impression-weighting rates. Never averages pre-aggregation
// rates with equal weight.
func aggregateByIdentifier(rows []*model.InventoryRow) []*model.InventoryRow {
	return mergeRows(rows, func(row *model.InventoryRow) string { return row.Identifier })
}

// groupBySupplyVendor re-keys rows on their supply vendor for vendor-level
// analysis, merging per-site rows into one row per vendor.
func groupBySupplyVendor(rows []*model.InventoryRow) []*model.InventoryRow {
	merged := mergeRows(rows, func(row *model.InventoryRow) string {
		if row.Vendor != "" {
			return row.Vendor
		}
		return row.Identifier
	})
	for _, row := range merged {
		if row.Vendor != "" {
			row.Identifier = row.Vendor
		}
	}
	return merged
}

func mergeRows(rows []*model.InventoryRow, keyOf func(*model.InventoryRow) string) []*model.InventoryRow {
	groups := make(map[string][]*model.InventoryRow)
	order := make([]string, 0, len(rows))
	for _, row := range rows {
		key := keyOf(row)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], row)
	}

	merged := make([]*model.InventoryRow, 0, len(order))
	for _, key := range order {
		group := groups[key]
		if len(group) == 1 {
			merged = append(merged, group[0])
			continue
		}

		out := &model.InventoryRow{
			Identifier: group[0].Identifier,
			Vendor:     group[0].Vendor,
			MobileApp:  group[0].MobileApp,
			RawMetrics: make(map[string]float64),
			Winsorized: make(map[string]float64),
			Normalized: make(map[string]float64),
		}

		for _, name := range summedMetrics {
			total, present := 0.0, false
			for _, row := range group {
				if v, ok := row.RawMetrics[name]; ok {
					total += v
					present = true
				}
			}
			if present {
				out.RawMetrics[name] = total
			}
		}

		for _, name := range weightedMetrics {
			var weighted, weight float64
			present := false
			for _, row := range group {
				v, ok := row.RawMetrics[name]
				if !ok {
					continue
				}
				present = true
				w := row.RawMetrics["impressions"]
				weighted += v * w
				weight += w
			}
			if !present {
				continue
			}
			if weight > 0 {
				out.RawMetrics[name] = weighted / weight
			} else {
				out.RawMetrics[name] = 0
			}
		}

		out.Impressions = out.RawMetrics["impressions"]
		merged = append(merged, out)
	}
	return merged
}

// recalcPulsePoint re-derives rate KPIs from the aggregated sums.
func recalcPulsePoint(rows []*model.InventoryRow) {
	for _, row := range rows {
		imps := row.RawMetrics["impressions"]
		if spend, ok := row.RawMetrics["total_spend"]; ok {
			row.RawMetrics["ecpm"] = safeRatio(spend, imps) * 1000
		}
		if conv, ok := row.RawMetrics["conversions"]; ok {
			row.RawMetrics["conversion_rate"] = safeRatio(conv, imps)
		}
		if clicks, ok := row.RawMetrics["clicks"]; ok {
			row.RawMetrics["ctr"] = safeRatio(clicks, imps)
		}
	}
}

// deriveMetrics fills in the calculated metrics the scoring model needs.
// Every ratio is guarded: a zero denominator yields 0, never an error.
func deriveMetrics(rows []*model.InventoryRow, cfg model.ScoringConfig) {
	for _, row := range rows {
		m := row.RawMetrics
		imps := m["impressions"]

		if _, ok := m["cpm"]; !ok {
			if cost, has := m["advertiser_cost"]; has {
				m["cpm"] = safeRatio(cost, imps) * 1000
			}
		}
		if _, ok := m["ecpm"]; !ok {
			if spend, has := m["total_spend"]; has {
				m["ecpm"] = safeRatio(spend, imps) * 1000
			}
		}
		if _, ok := m["conversion_rate"]; !ok {
			if conv, has := m["conversions"]; has {
				m["conversion_rate"] = safeRatio(conv, imps)
			}
		}

		switch {
		case cfg.Source == model.SourceTradeDesk && cfg.Channel == model.ChannelDisplay:
			if loads, ok := m["ad_load_xl_imps"]; ok {
				m["ad_load_rate"] = safeRatio(loads, imps)
			}
			if refreshes, ok := m["ad_refresh_15s_imps"]; ok {
				m["ad_refresh_rate"] = safeRatio(refreshes, imps)
			}
		case cfg.Source == model.SourceTradeDesk && cfg.Channel == model.ChannelCTV:
			if raw, ok := m["tv_quality_index_raw"]; ok {
				m["tv_quality_index_ratio"] = safeRatio(raw, m["tv_quality_index_measured"])
			}
			if ids, ok := m["unique_ids"]; ok {
				m["unique_id_ratio"] = safeRatio(ids, imps)
			}
		case cfg.Source == model.SourceTradeDesk && cfg.Channel == model.ChannelVideoMobile:
			// Mobile app exports report raw player counters instead of
			// the precomputed viewability/completion rates.
			if _, ok := m["sampled_in_view"]; !ok {
				if viewed, has := m["sampled_viewed_impressions"]; has {
					m["sampled_in_view"] = safeRatio(viewed, m["sampled_tracked_impressions"])
				}
			}
			if _, ok := m["player_completion"]; !ok {
				if completed, has := m["player_completed_views"]; has {
					m["player_completion"] = safeRatio(completed, m["player_starts"])
				}
			}
		}
	}
}

func safeRatio(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return num / den
}

// applyVolumeFloor drops rows below the source-specific impression floor.
func applyVolumeFloor(rows []*model.InventoryRow, source model.Source, opts PreprocessOptions) []*model.InventoryRow {
	var floor float64
	switch source {
	case model.SourcePulsePoint:
		var total float64
		for _, row := range rows {
			total += row.Impressions
		}
		floor = opts.PulsePointImpressionFloor
		if share := total * opts.PulsePointImpressionShare; share > floor {
			floor = share
		}
	default:
		floor = opts.TradeDeskImpressionFloor
	}

	kept := rows[:0]
	for _, row := range rows {
		rowFloor := floor
		if source == model.SourceTradeDesk && row.MobileApp {
			rowFloor = opts.MobileAppImpressionFloor
		}
		if row.Impressions >= rowFloor {
			kept = append(kept, row)
		}
	}
	return kept
}

// finalClean drops rows with impossible values: negative volume or cost,
// rates above 1, or zero impressions.
func finalClean(rows []*model.InventoryRow) []*model.InventoryRow {
	kept := rows[:0]
	for _, row := range rows {
		if !rowValid(row) {
			continue
		}
		kept = append(kept, row)
	}
	return kept
}

func rowValid(row *model.InventoryRow) bool {
	if row.Impressions <= 0 {
		return false
	}
	for _, col := range []string{"impressions", "total_spend", "advertiser_cost", "cpm", "ecpm"} {
		if v, ok := row.RawMetrics[col]; ok && v < 0 {
			return false
		}
	}
	for _, col := range boundedRates {
		if v, ok := row.RawMetrics[col]; ok && v > 1 {
			return false
		}
	}
	return true
}

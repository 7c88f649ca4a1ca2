package pipeline

import (
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/caliber-analytics/caliber-cli/internal/model"
)

// ResultsOptions tunes whitelist/blacklist derivation and vendor guidance.
type ResultsOptions struct {
	WhitelistPercentile float64
	BlacklistPercentile float64

	TradeDeskImpressionFloor  float64
	MobileAppImpressionFloor  float64
	PulsePointImpressionFloor float64
	PulsePointImpressionShare float64

	// VendorGuidanceMinVendors is how many distinct supply vendors a file
	// must span before benchmark guidance is produced.
	VendorGuidanceMinVendors int
	// VendorGuidanceMinRows is the minimum row count per vendor to be
	// considered as a benchmark.
	VendorGuidanceMinRows int
}

// ProcessResults fills the campaign-level fields of the summary: the
// impression-weighted campaign score, top/bottom performers, the
// whitelist/blacklist recommendations, and vendor benchmark guidance.
func ProcessResults(rows []*model.InventoryRow, cfg model.ScoringConfig, opts ResultsOptions, sum *model.PipelineSummary) {
	var totalImps, weighted float64
	for _, row := range rows {
		totalImps += row.Impressions
		weighted += row.Score * row.Impressions
	}
	sum.TotalImpressions = totalImps
	if totalImps > 0 {
		sum.CampaignScore = weighted / totalImps
	} else if len(rows) > 0 {
		var mean float64
		for _, row := range rows {
			mean += row.Score
		}
		sum.CampaignScore = mean / float64(len(rows))
	}

	sum.TopPerformers, sum.BottomPerformers = performanceExtremes(rows, 5)
	sum.Whitelist, sum.Blacklist = optimizationLists(rows, cfg.Source, opts)

	if cfg.Source == model.SourceTradeDesk {
		sum.VendorGuidance = vendorGuidance(rows, opts)
	}
}

// performanceExtremes returns the n best and n worst rows by score.
func performanceExtremes(rows []*model.InventoryRow, n int) (top, bottom []model.Performer) {
	sorted := append([]*model.InventoryRow(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	if n > len(sorted) {
		n = len(sorted)
	}
	for _, row := range sorted[:n] {
		top = append(top, performer(row))
	}
	for i := len(sorted) - 1; i >= len(sorted)-n; i-- {
		bottom = append(bottom, performer(sorted[i]))
	}
	return top, bottom
}

func performer(row *model.InventoryRow) model.Performer {
	return model.Performer{
		Identifier:  row.Identifier,
		Score:       row.Score,
		Impressions: row.Impressions,
		Status:      row.Status,
	}
}

// optimizationLists derives the whitelist (rows at or above the whitelist
// score percentile) and blacklist (at or below the blacklist percentile)
// among rows passing the minimum-volume floor. Aggregate-marker identifiers
// are dropped from both lists even when they qualify numerically.
func optimizationLists(rows []*model.InventoryRow, source model.Source, opts ResultsOptions) (whitelist, blacklist []string) {
	floor := listVolumeFloor(rows, source, opts)

	eligible := make([]*model.InventoryRow, 0, len(rows))
	for _, row := range rows {
		rowFloor := floor
		if source == model.SourceTradeDesk && row.MobileApp {
			rowFloor = opts.MobileAppImpressionFloor
		}
		if row.Impressions >= rowFloor {
			eligible = append(eligible, row)
		}
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	scores := make([]float64, len(eligible))
	for i, row := range eligible {
		scores[i] = row.Score
	}
	sort.Float64s(scores)
	upper := stat.Quantile(opts.WhitelistPercentile, stat.LinInterp, scores, nil)
	lower := stat.Quantile(opts.BlacklistPercentile, stat.LinInterp, scores, nil)

	for _, row := range eligible {
		if isAggregateMarker(row.Identifier) {
			continue
		}
		// Exclusive branches keep the lists disjoint even when a uniform
		// score population collapses both cutoffs to the same value.
		if row.Score >= upper {
			whitelist = append(whitelist, row.Identifier)
		} else if row.Score <= lower {
			blacklist = append(blacklist, row.Identifier)
		}
	}
	return whitelist, blacklist
}

func listVolumeFloor(rows []*model.InventoryRow, source model.Source, opts ResultsOptions) float64 {
	if source != model.SourcePulsePoint {
		return opts.TradeDeskImpressionFloor
	}
	var total float64
	for _, row := range rows {
		total += row.Impressions
	}
	floor := opts.PulsePointImpressionFloor
	if share := total * opts.PulsePointImpressionShare; share > floor {
		floor = share
	}
	return floor
}

func isAggregateMarker(identifier string) bool {
	return strings.Contains(strings.ToLower(identifier), "tail aggregate")
}

// vendorGuidance recommends benchmark supply vendors when a file spans many
// of them: the 5-7 highest-scoring vendors with enough rows to trust.
func vendorGuidance(rows []*model.InventoryRow, opts ResultsOptions) []model.VendorBenchmark {
	type vendorAgg struct {
		total float64
		count int
	}
	vendors := make(map[string]*vendorAgg)
	for _, row := range rows {
		if row.Vendor == "" {
			continue
		}
		agg, ok := vendors[row.Vendor]
		if !ok {
			agg = &vendorAgg{}
			vendors[row.Vendor] = agg
		}
		agg.total += row.Score
		agg.count++
	}

	if len(vendors) <= opts.VendorGuidanceMinVendors {
		return nil
	}

	benchmarks := make([]model.VendorBenchmark, 0, len(vendors))
	for name, agg := range vendors {
		if agg.count < opts.VendorGuidanceMinRows {
			continue
		}
		benchmarks = append(benchmarks, model.VendorBenchmark{
			Name:         name,
			AverageScore: agg.total / float64(agg.count),
			RowCount:     agg.count,
		})
	}
	sort.SliceStable(benchmarks, func(i, j int) bool {
		if benchmarks[i].AverageScore != benchmarks[j].AverageScore {
			return benchmarks[i].AverageScore > benchmarks[j].AverageScore
		}
		return benchmarks[i].Name < benchmarks[j].Name
	})

	limit := len(vendors) / 3
	if limit < 5 {
		limit = 5
	}
	if limit > 7 {
		limit = 7
	}
	if limit > len(benchmarks) {
		limit = len(benchmarks)
	}
	return benchmarks[:limit]
}

package pipeline

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/caliber-analytics/caliber-cli/internal/model"
)

// ScoreOptions carries the quality-tier thresholds.
type ScoreOptions struct {
	GoodThreshold     float64
	ModerateThreshold float64
}

// Score computes the weighted composite per row, rescales the population to
// 0-100, and assigns quality tiers, percentile ranks, and performance
// tiers. The weights map must already be renormalized for missing metrics.
func Score(rows []*model.InventoryRow, weights map[string]float64, opts ScoreOptions, sum *model.PipelineSummary) {
	for _, row := range rows {
		var score float64
		for name, weight := range weights {
			// Missing normalized values contribute 0.
			score += weight * row.Normalized[name]
		}
		row.RawScore = score
	}

	scaleScores(rows)

	sum.StatusCount = make(map[model.Status]int, 3)
	for _, row := range rows {
		switch {
		case row.Score >= opts.GoodThreshold:
			row.Status = model.StatusGood
		case row.Score >= opts.ModerateThreshold:
			row.Status = model.StatusModerate
		default:
			row.Status = model.StatusPoor
		}
		sum.StatusCount[row.Status]++
	}

	rankRows(rows, sum)
	sum.Scores = scoreDistribution(rows)
}

// scaleScores min-max scales raw scores to 0-100. An all-equal population
// gets 50 everywhere rather than a divide-by-zero.
func scaleScores(rows []*model.InventoryRow) {
	if len(rows) == 0 {
		return
	}
	min, max := rows[0].RawScore, rows[0].RawScore
	for _, row := range rows[1:] {
		if row.RawScore < min {
			min = row.RawScore
		}
		if row.RawScore > max {
			max = row.RawScore
		}
	}

	if min == max {
		for _, row := range rows {
			row.Score = 50
			row.Flag("uniform_scores")
		}
		return
	}

	span := max - min
	for _, row := range rows {
		row.Score = (row.RawScore - min) / span * 100
	}
}

// rankRows assigns dense percentile ranks (ties share a rank) and buckets
// rows into Top/Middle/Bottom performance tiers by the top and bottom
// quarter of ranks.
func rankRows(rows []*model.InventoryRow, sum *model.PipelineSummary) {
	distinct := distinctScores(rows)
	k := len(distinct)

	// Rank of a score among distinct scores, ascending 1..k.
	rankOf := make(map[float64]int, k)
	for i, s := range distinct {
		rankOf[s] = i + 1
	}

	for _, row := range rows {
		row.PercentileRank = float64(rankOf[row.Score]) / float64(k) * 100
	}

	n := len(rows)
	quarter := n / 4
	if quarter < 1 {
		quarter = 1
	}

	sum.TierCount = make(map[model.PerformanceTier]int, 3)
	for _, row := range rows {
		// Dense rank descending: the best score has rank 1.
		desc := k - rankOf[row.Score] + 1
		switch {
		case desc <= quarter:
			row.Tier = model.TierTop
		case desc > k-quarter:
			row.Tier = model.TierBottom
		default:
			row.Tier = model.TierMiddle
		}
		sum.TierCount[row.Tier]++
	}
}

func distinctScores(rows []*model.InventoryRow) []float64 {
	seen := make(map[float64]bool, len(rows))
	distinct := make([]float64, 0, len(rows))
	for _, row := range rows {
		if !seen[row.Score] {
			seen[row.Score] = true
			distinct = append(distinct, row.Score)
		}
	}
	sort.Float64s(distinct)
	return distinct
}

func scoreDistribution(rows []*model.InventoryRow) model.ScoreDistribution {
	if len(rows) == 0 {
		return model.ScoreDistribution{}
	}
	scores := make([]float64, len(rows))
	for i, row := range rows {
		scores[i] = row.Score
	}
	sort.Float64s(scores)

	return model.ScoreDistribution{
		Min:    scores[0],
		Max:    scores[len(scores)-1],
		Mean:   stat.Mean(scores, nil),
		Median: stat.Quantile(0.5, stat.LinInterp, scores, nil),
		Q25:    stat.Quantile(0.25, stat.LinInterp, scores, nil),
		Q75:    stat.Quantile(0.75, stat.LinInterp, scores, nil),
	}
}

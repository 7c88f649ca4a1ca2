package pipeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caliber-analytics/caliber-cli/internal/model"
)

func defaultOutlierOptions() OutlierOptions {
	return OutlierOptions{ZThreshold: 4.5, MaxFraction: 0.20, MinValues: 10}
}

func rowsWithMetric(metric string, values ...float64) []*model.InventoryRow {
	rows := make([]*model.InventoryRow, len(values))
	for i, v := range values {
		rows[i] = &model.InventoryRow{
			Identifier: fmt.Sprintf("row-%d", i),
			RawMetrics: map[string]float64{metric: v},
			Winsorized: map[string]float64{},
			Normalized: map[string]float64{},
		}
	}
	return rows
}

func TestRemoveExtremes(t *testing.T) {
	t.Parallel()

	t.Run("drops a single wild value", func(t *testing.T) {
		t.Parallel()
		values := []float64{5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 500}
		rows := rowsWithMetric("cpm", values...)

		kept, stats := removeExtremes(rows, "cpm", defaultOutlierOptions())
		assert.Len(t, kept, 11)
		assert.Equal(t, 1, stats.RowsRemoved)
		assert.False(t, stats.Skipped)
		for _, row := range kept {
			assert.InDelta(t, 5, row.RawMetrics["cpm"], 1e-9)
		}
	})

	t.Run("skips heavily skewed distributions", func(t *testing.T) {
		t.Parallel()
		values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 1000, 2000}
		rows := rowsWithMetric("cpm", values...)

		kept, stats := removeExtremes(rows, "cpm", defaultOutlierOptions())
		assert.Len(t, kept, 10)
		assert.True(t, stats.Skipped)
		assert.Equal(t, 0, stats.RowsRemoved)
		assert.GreaterOrEqual(t, stats.OutlierFraction, 0.20)
	})

	t.Run("skips small populations", func(t *testing.T) {
		t.Parallel()
		rows := rowsWithMetric("cpm", 1, 2, 3, 1000)

		kept, stats := removeExtremes(rows, "cpm", defaultOutlierOptions())
		assert.Len(t, kept, 4)
		assert.True(t, stats.Skipped)
		assert.Contains(t, stats.SkipReason, "need 10")
	})

	t.Run("identical values remove nothing", func(t *testing.T) {
		t.Parallel()
		values := make([]float64, 15)
		for i := range values {
			values[i] = 3.5
		}
		rows := rowsWithMetric("cpm", values...)

		kept, stats := removeExtremes(rows, "cpm", defaultOutlierOptions())
		assert.Len(t, kept, 15)
		assert.Equal(t, 0, stats.RowsRemoved)
	})
}

func TestWinsorize(t *testing.T) {
	t.Parallel()

	values := make([]float64, 0, 20)
	for i := 1; i <= 19; i++ {
		values = append(values, float64(i))
	}
	values = append(values, 1000)
	rows := rowsWithMetric("cpm", values...)

	capped, lower, upper := winsorize(rows, "cpm", winsorBounds{0.01, 0.99}, 10)
	require.GreaterOrEqual(t, capped, 1)
	assert.Less(t, upper, 1000.0)
	assert.LessOrEqual(t, lower, 1.0)

	extreme := rows[len(rows)-1]
	// The raw value stays for display; only the winsorized copy is capped.
	assert.InDelta(t, 1000, extreme.RawMetrics["cpm"], 1e-9)
	assert.InDelta(t, upper, extreme.Winsorized["cpm"], 1e-9)
	assert.Contains(t, extreme.QualityFlags, "winsorized_cpm")

	middle := rows[9]
	assert.InDelta(t, 10, middle.Winsorized["cpm"], 1e-9)
	assert.NotContains(t, middle.QualityFlags, "winsorized_cpm")
}

func TestWinsorizeTooFewValues(t *testing.T) {
	t.Parallel()

	rows := rowsWithMetric("cpm", 1, 2, 3)
	capped, _, _ := winsorize(rows, "cpm", winsorBounds{0.01, 0.99}, 10)
	assert.Equal(t, -1, capped)
	assert.Empty(t, rows[0].Winsorized)
}

func TestHandleOutliers(t *testing.T) {
	t.Parallel()

	cfg, err := ModelFor(model.SourcePulsePoint, model.ChannelDisplay, model.GoalAwareness, false, model.LevelDomain)
	require.NoError(t, err)

	rows := make([]*model.InventoryRow, 0, 12)
	for i := 0; i < 12; i++ {
		ecpm := 5.0
		if i == 11 {
			ecpm = 500
		}
		rows = append(rows, &model.InventoryRow{
			Identifier:  fmt.Sprintf("site-%d", i),
			Impressions: 1000,
			RawMetrics: map[string]float64{
				"ecpm":            ecpm,
				"ctr":             0.01,
				"conversion_rate": 0.002,
				"impressions":     1000,
			},
			Winsorized: map[string]float64{},
			Normalized: map[string]float64{},
		})
	}

	sum := &model.PipelineSummary{}
	kept := HandleOutliers(rows, cfg, defaultOutlierOptions(), sum)

	assert.Len(t, kept, 11)
	assert.Equal(t, 1, sum.ExcludedRows["extreme_outlier_ecpm"])

	// One stats entry per configured metric plus impressions.
	assert.Len(t, sum.OutlierStats, len(cfg.Metrics)+1)
	for _, row := range kept {
		assert.Contains(t, row.Winsorized, "ecpm")
	}
}

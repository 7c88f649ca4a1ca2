package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caliber-analytics/caliber-cli/internal/model"
)

func TestScoringModelWeights(t *testing.T) {
	t.Parallel()

	for key, metrics := range scoringModels {
		var sum float64
		for _, m := range metrics {
			sum += m.Weight
			assert.NotEmpty(t, m.Name)
			assert.Contains(t, []model.Direction{model.DirectionHigher, model.DirectionLower}, m.Direction)
		}
		assert.InDelta(t, 1.0, sum, 1e-3, "%s %s %s ctr=%v", key.Source, key.Channel, key.Goal, key.CTRSensitive)
	}
}

func TestScoringModelsHaveRequiredColumns(t *testing.T) {
	t.Parallel()

	for key := range scoringModels {
		cols, ok := requiredColumns[key]
		require.True(t, ok, "%s %s %s ctr=%v has no required columns", key.Source, key.Channel, key.Goal, key.CTRSensitive)
		assert.Contains(t, cols, "impressions")
	}
}

func TestModelFor(t *testing.T) {
	t.Parallel()

	t.Run("ctr sensitive variant for trade desk display awareness", func(t *testing.T) {
		t.Parallel()
		cfg, err := ModelFor(model.SourceTradeDesk, model.ChannelDisplay, model.GoalAwareness, true, model.LevelDomain)
		require.NoError(t, err)
		assert.True(t, cfg.CTRSensitive)

		ctr, ok := cfg.Metric("ctr")
		require.True(t, ok)
		assert.InDelta(t, 0.30, ctr.Weight, 1e-9)
	})

	t.Run("ctr flag ignored elsewhere", func(t *testing.T) {
		t.Parallel()
		cfg, err := ModelFor(model.SourcePulsePoint, model.ChannelDisplay, model.GoalAwareness, true, model.LevelDomain)
		require.NoError(t, err)
		assert.False(t, cfg.CTRSensitive)

		ctr, ok := cfg.Metric("ctr")
		require.True(t, ok)
		assert.InDelta(t, 0.40, ctr.Weight, 1e-9)
	})

	t.Run("action goal shifts weight to conversions", func(t *testing.T) {
		t.Parallel()
		cfg, err := ModelFor(model.SourcePulsePoint, model.ChannelDisplay, model.GoalAction, false, model.LevelDomain)
		require.NoError(t, err)

		conv, ok := cfg.Metric("conversion_rate")
		require.True(t, ok)
		assert.InDelta(t, 0.60, conv.Weight, 1e-9)
	})

	t.Run("unsupported combination", func(t *testing.T) {
		t.Parallel()
		_, err := ModelFor(model.SourcePulsePoint, model.ChannelAudio, model.GoalAwareness, false, model.LevelDomain)
		require.Error(t, err)
	})

	t.Run("analysis level carried through", func(t *testing.T) {
		t.Parallel()
		cfg, err := ModelFor(model.SourceTradeDesk, model.ChannelCTV, model.GoalAction, false, model.LevelSupplyVendor)
		require.NoError(t, err)
		assert.Equal(t, model.LevelSupplyVendor, cfg.AnalysisLevel)
	})
}

func TestResolveWeights(t *testing.T) {
	t.Parallel()

	cfg, err := ModelFor(model.SourceTradeDesk, model.ChannelDisplay, model.GoalAwareness, false, model.LevelDomain)
	require.NoError(t, err)

	t.Run("all metrics present", func(t *testing.T) {
		t.Parallel()
		row := &model.InventoryRow{Normalized: map[string]float64{}}
		for _, m := range cfg.Metrics {
			row.Normalized[m.Name] = 0.5
		}

		used, missing := ResolveWeights(cfg, []*model.InventoryRow{row})
		assert.Empty(t, missing)
		for _, m := range cfg.Metrics {
			assert.InDelta(t, m.Weight, used[m.Name], 1e-9)
		}
	})

	t.Run("missing metrics rescale the remainder", func(t *testing.T) {
		t.Parallel()
		row := &model.InventoryRow{Normalized: map[string]float64{
			"cpm": 0.2,
			"ctr": 0.8,
		}}

		used, missing := ResolveWeights(cfg, []*model.InventoryRow{row})
		assert.Equal(t, []string{"ad_load_rate", "ad_refresh_rate", "ias_display_fully_in_view_1s"}, missing)

		// cpm 0.15 and ctr 0.20 rescaled proportionally to sum 1.0.
		assert.InDelta(t, 0.15/0.35, used["cpm"], 1e-9)
		assert.InDelta(t, 0.20/0.35, used["ctr"], 1e-9)

		var total float64
		for _, w := range used {
			total += w
		}
		assert.InDelta(t, 1.0, total, 1e-9)
	})

	t.Run("no data at all", func(t *testing.T) {
		t.Parallel()
		used, missing := ResolveWeights(cfg, []*model.InventoryRow{{Normalized: map[string]float64{}}})
		assert.Empty(t, used)
		assert.Len(t, missing, len(cfg.Metrics))
	})
}

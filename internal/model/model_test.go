package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoringConfigWeights(t *testing.T) {
	t.Parallel()

	cfg := ScoringConfig{
		Source:  SourcePulsePoint,
		Channel: ChannelDisplay,
		Goal:    GoalAwareness,
		Metrics: []MetricSpec{
			{Name: "ecpm", Weight: 0.35, Direction: DirectionLower},
			{Name: "ctr", Weight: 0.40, Direction: DirectionHigher},
			{Name: "conversion_rate", Weight: 0.25, Direction: DirectionHigher},
		},
	}

	t.Run("WeightSum adds all metric weights", func(t *testing.T) {
		t.Parallel()
		assert.InDelta(t, 1.0, cfg.WeightSum(), 1e-9)
	})

	t.Run("WeightsValid accepts sums within tolerance", func(t *testing.T) {
		t.Parallel()
		assert.True(t, cfg.WeightsValid())
	})

	t.Run("WeightsValid rejects drifted sums", func(t *testing.T) {
		t.Parallel()
		bad := cfg
		bad.Metrics = append([]MetricSpec{}, cfg.Metrics...)
		bad.Metrics[0].Weight = 0.50
		assert.False(t, bad.WeightsValid())
	})

	t.Run("Metric finds spec by name", func(t *testing.T) {
		t.Parallel()
		m, ok := cfg.Metric("ctr")
		require.True(t, ok)
		assert.Equal(t, DirectionHigher, m.Direction)
	})

	t.Run("Metric reports unknown names", func(t *testing.T) {
		t.Parallel()
		_, ok := cfg.Metric("player_mute")
		assert.False(t, ok)
	})
}

func TestTableAccess(t *testing.T) {
	t.Parallel()

	tbl := Table{
		Columns: []string{"Site", "Impressions", "CTR"},
		Rows: [][]string{
			{"example.com", "1200", "0.4%"},
			{"short.row"},
		},
	}

	t.Run("ColumnIndex is case-insensitive", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 1, tbl.ColumnIndex("impressions"))
		assert.Equal(t, -1, tbl.ColumnIndex("spend"))
	})

	t.Run("Cell tolerates ragged rows", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "0.4%", tbl.Cell(0, 2))
		assert.Equal(t, "", tbl.Cell(1, 2))
	})
}

func TestInventoryRowValues(t *testing.T) {
	t.Parallel()

	row := InventoryRow{
		Identifier: "example.com",
		RawMetrics: map[string]float64{"cpm": 4.2},
		Winsorized: map[string]float64{"cpm": 3.9},
	}

	t.Run("ScoringValue prefers winsorized", func(t *testing.T) {
		t.Parallel()
		v, ok := row.ScoringValue("cpm")
		require.True(t, ok)
		assert.InDelta(t, 3.9, v, 1e-9)
	})

	t.Run("ScoringValue falls back to raw", func(t *testing.T) {
		t.Parallel()
		r := InventoryRow{RawMetrics: map[string]float64{"ctr": 0.01}}
		v, ok := r.ScoringValue("ctr")
		require.True(t, ok)
		assert.InDelta(t, 0.01, v, 1e-9)
	})

	t.Run("Flag deduplicates", func(t *testing.T) {
		t.Parallel()
		r := InventoryRow{}
		r.Flag("outlier_cpm")
		r.Flag("outlier_cpm")
		assert.Len(t, r.QualityFlags, 1)
	})
}

func TestTypedErrors(t *testing.T) {
	t.Parallel()

	t.Run("unknown source names columns", func(t *testing.T) {
		t.Parallel()
		err := &UnknownSourceError{Columns: []string{"a", "b"}}
		assert.Contains(t, err.Error(), "a, b")
	})

	t.Run("missing fields names combination", func(t *testing.T) {
		t.Parallel()
		err := &MissingRequiredFieldsError{
			Source: SourceTradeDesk, Channel: ChannelCTV, Goal: GoalAction,
			Fields: []string{"tv_quality_index"},
		}
		assert.Contains(t, err.Error(), "trade_desk ctv action")
		assert.Contains(t, err.Error(), "tv_quality_index")
	})
}

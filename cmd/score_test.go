package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caliber-analytics/caliber-cli/internal/model"
)

func resetScoreFlags() {
	scoreGoal = "awareness"
	scoreSource = ""
	scoreChannel = ""
	scoreLevel = "domain"
	scoreCTRSensitive = false
}

func TestParseScoreOptions(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		resetScoreFlags()
		opts, err := parseScoreOptions()
		require.NoError(t, err)
		assert.Equal(t, model.GoalAwareness, opts.Goal)
		assert.Equal(t, model.LevelDomain, opts.AnalysisLevel)
		assert.Empty(t, opts.Source)
		assert.Empty(t, opts.Channel)
	})

	t.Run("full overrides", func(t *testing.T) {
		resetScoreFlags()
		scoreGoal = "action"
		scoreSource = "pulsepoint"
		scoreChannel = "video"
		scoreLevel = "supply_vendor"
		scoreCTRSensitive = true

		opts, err := parseScoreOptions()
		require.NoError(t, err)
		assert.Equal(t, model.GoalAction, opts.Goal)
		assert.Equal(t, model.SourcePulsePoint, opts.Source)
		assert.Equal(t, model.ChannelVideo, opts.Channel)
		assert.Equal(t, model.LevelSupplyVendor, opts.AnalysisLevel)
		assert.True(t, opts.CTRSensitive)
	})

	t.Run("invalid values", func(t *testing.T) {
		for name, mutate := range map[string]func(){
			"goal":    func() { scoreGoal = "branding" },
			"source":  func() { scoreSource = "dv360" },
			"channel": func() { scoreChannel = "native" },
			"level":   func() { scoreLevel = "publisher" },
		} {
			resetScoreFlags()
			mutate()
			_, err := parseScoreOptions()
			assert.Error(t, err, name)
		}
	})
}

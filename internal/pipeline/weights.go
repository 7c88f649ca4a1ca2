package pipeline

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/caliber-analytics/caliber-cli/internal/model"
)

// modelKey selects one scoring model from the weight table.
type modelKey struct {
	Source       model.Source
	Channel      model.Channel
	Goal         model.Goal
	CTRSensitive bool
}

// scoringModels is the full weight table. Each entry's weights sum to 1.0;
// TestScoringModelWeights enforces that invariant over the whole table.
// The CTR-sensitive variant exists only for trade desk display awareness.
var scoringModels = map[modelKey][]model.MetricSpec{
	{model.SourcePulsePoint, model.ChannelDisplay, model.GoalAwareness, false}: {
		{Name: "ecpm", Weight: 0.35, Direction: model.DirectionLower},
		{Name: "ctr", Weight: 0.40, Direction: model.DirectionHigher},
		{Name: "conversion_rate", Weight: 0.25, Direction: model.DirectionHigher},
	},
	{model.SourcePulsePoint, model.ChannelDisplay, model.GoalAction, false}: {
		{Name: "ecpm", Weight: 0.15, Direction: model.DirectionLower},
		{Name: "ctr", Weight: 0.25, Direction: model.DirectionHigher},
		{Name: "conversion_rate", Weight: 0.60, Direction: model.DirectionHigher},
	},
	{model.SourcePulsePoint, model.ChannelVideo, model.GoalAwareness, false}: {
		{Name: "ecpm", Weight: 0.20, Direction: model.DirectionLower},
		{Name: "ctr", Weight: 0.10, Direction: model.DirectionHigher},
		{Name: "completion_rate", Weight: 0.50, Direction: model.DirectionHigher},
		{Name: "conversion_rate", Weight: 0.20, Direction: model.DirectionHigher},
	},
	{model.SourcePulsePoint, model.ChannelVideo, model.GoalAction, false}: {
		{Name: "ecpm", Weight: 0.20, Direction: model.DirectionLower},
		{Name: "ctr", Weight: 0.10, Direction: model.DirectionHigher},
		{Name: "completion_rate", Weight: 0.50, Direction: model.DirectionHigher},
		{Name: "conversion_rate", Weight: 0.20, Direction: model.DirectionHigher},
	},

	{model.SourceTradeDesk, model.ChannelDisplay, model.GoalAwareness, false}: {
		{Name: "cpm", Weight: 0.15, Direction: model.DirectionLower},
		{Name: "ias_display_fully_in_view_1s", Weight: 0.25, Direction: model.DirectionHigher},
		{Name: "ctr", Weight: 0.20, Direction: model.DirectionHigher},
		{Name: "ad_load_rate", Weight: 0.20, Direction: model.DirectionLower},
		{Name: "ad_refresh_rate", Weight: 0.20, Direction: model.DirectionLower},
	},
	{model.SourceTradeDesk, model.ChannelDisplay, model.GoalAwareness, true}: {
		{Name: "cpm", Weight: 0.10, Direction: model.DirectionLower},
		{Name: "ias_display_fully_in_view_1s", Weight: 0.25, Direction: model.DirectionHigher},
		{Name: "ctr", Weight: 0.30, Direction: model.DirectionHigher},
		{Name: "ad_load_rate", Weight: 0.15, Direction: model.DirectionLower},
		{Name: "ad_refresh_rate", Weight: 0.20, Direction: model.DirectionLower},
	},
	{model.SourceTradeDesk, model.ChannelDisplay, model.GoalAction, false}: {
		{Name: "cpm", Weight: 0.10, Direction: model.DirectionLower},
		{Name: "ias_display_fully_in_view_1s", Weight: 0.10, Direction: model.DirectionHigher},
		{Name: "conversion_rate", Weight: 0.30, Direction: model.DirectionHigher},
		{Name: "ctr", Weight: 0.15, Direction: model.DirectionHigher},
		{Name: "ad_load_rate", Weight: 0.15, Direction: model.DirectionLower},
		{Name: "ad_refresh_rate", Weight: 0.20, Direction: model.DirectionLower},
	},

	{model.SourceTradeDesk, model.ChannelVideo, model.GoalAwareness, false}:       ttdPlayerMetrics(),
	{model.SourceTradeDesk, model.ChannelVideo, model.GoalAction, false}:          ttdPlayerMetrics(),
	{model.SourceTradeDesk, model.ChannelAudio, model.GoalAwareness, false}:       ttdPlayerMetrics(),
	{model.SourceTradeDesk, model.ChannelAudio, model.GoalAction, false}:          ttdPlayerMetrics(),
	{model.SourceTradeDesk, model.ChannelVideoMobile, model.GoalAwareness, false}: ttdPlayerMetrics(),
	{model.SourceTradeDesk, model.ChannelVideoMobile, model.GoalAction, false}:    ttdPlayerMetrics(),

	{model.SourceTradeDesk, model.ChannelCTV, model.GoalAwareness, false}: {
		{Name: "tv_quality_index_ratio", Weight: 0.70, Direction: model.DirectionHigher},
		{Name: "unique_id_ratio", Weight: 0.30, Direction: model.DirectionHigher},
	},
	{model.SourceTradeDesk, model.ChannelCTV, model.GoalAction, false}: {
		{Name: "tv_quality_index_ratio", Weight: 0.70, Direction: model.DirectionHigher},
		{Name: "unique_id_ratio", Weight: 0.30, Direction: model.DirectionHigher},
	},
}

// ttdPlayerMetrics is the shared model for trade desk video, audio, and
// mobile video. Goal does not change the weights for these channels.
func ttdPlayerMetrics() []model.MetricSpec {
	return []model.MetricSpec{
		{Name: "cpm", Weight: 0.10, Direction: model.DirectionLower},
		{Name: "sampled_in_view", Weight: 0.20, Direction: model.DirectionHigher},
		{Name: "player_completion", Weight: 0.35, Direction: model.DirectionHigher},
		{Name: "player_errors", Weight: 0.20, Direction: model.DirectionLower},
		{Name: "player_mute", Weight: 0.15, Direction: model.DirectionLower},
	}
}

// requiredColumns lists the canonical columns a file must carry per model
// key, beyond what detection already checked.
var requiredColumns = map[modelKey][]string{
	{model.SourceTradeDesk, model.ChannelDisplay, model.GoalAwareness, false}: {
		"domain", "supply_vendor", "advertiser_cost", "impressions", "cpm",
		"ias_display_fully_in_view_1s", "ad_load_xl_imps", "ad_refresh_15s_imps",
	},
	{model.SourceTradeDesk, model.ChannelDisplay, model.GoalAwareness, true}: {
		"domain", "supply_vendor", "advertiser_cost", "impressions", "cpm",
		"clicks", "ctr", "ias_display_fully_in_view_1s", "ad_load_xl_imps", "ad_refresh_15s_imps",
	},
	{model.SourceTradeDesk, model.ChannelDisplay, model.GoalAction, false}: {
		"domain", "supply_vendor", "advertiser_cost", "impressions", "cpm",
		"clicks", "ctr", "conversion_rate", "ad_load_xl_imps", "ad_refresh_15s_imps",
	},
	{model.SourceTradeDesk, model.ChannelVideo, model.GoalAwareness, false}:       ttdPlayerRequired(),
	{model.SourceTradeDesk, model.ChannelVideo, model.GoalAction, false}:          ttdPlayerRequired(),
	{model.SourceTradeDesk, model.ChannelAudio, model.GoalAwareness, false}:       ttdPlayerRequired(),
	{model.SourceTradeDesk, model.ChannelAudio, model.GoalAction, false}:          ttdPlayerRequired(),
	{model.SourceTradeDesk, model.ChannelVideoMobile, model.GoalAwareness, false}: ttdMobileRequired(),
	{model.SourceTradeDesk, model.ChannelVideoMobile, model.GoalAction, false}:    ttdMobileRequired(),
	{model.SourceTradeDesk, model.ChannelCTV, model.GoalAwareness, false}: {
		"supply_vendor", "advertiser_cost", "impressions",
		"tv_quality_index_raw", "tv_quality_index_measured", "unique_ids",
	},
	{model.SourceTradeDesk, model.ChannelCTV, model.GoalAction, false}: {
		"supply_vendor", "advertiser_cost", "impressions",
		"tv_quality_index_raw", "tv_quality_index_measured", "unique_ids",
	},
	{model.SourcePulsePoint, model.ChannelDisplay, model.GoalAwareness, false}: {
		"domain", "total_spend", "impressions", "ecpm", "ctr", "conversions",
	},
	{model.SourcePulsePoint, model.ChannelDisplay, model.GoalAction, false}: {
		"domain", "total_spend", "impressions", "ecpm", "ctr", "conversions",
	},
	{model.SourcePulsePoint, model.ChannelVideo, model.GoalAwareness, false}: {
		"domain", "total_spend", "impressions", "ecpm", "ctr", "completion_rate", "conversions",
	},
	{model.SourcePulsePoint, model.ChannelVideo, model.GoalAction, false}: {
		"domain", "total_spend", "impressions", "ecpm", "ctr", "completion_rate", "conversions",
	},
}

func ttdPlayerRequired() []string {
	return []string{
		"domain", "supply_vendor", "advertiser_cost", "impressions", "cpm",
		"sampled_in_view", "player_completion", "player_errors", "player_mute",
	}
}

func ttdMobileRequired() []string {
	return []string{
		"domain", "app_name", "impressions", "advertiser_cost", "player_errors", "player_mute",
		"sampled_tracked_impressions", "sampled_viewed_impressions", "player_completed_views", "player_starts",
	}
}

// ModelFor resolves the scoring configuration for one run. The CTR-sensitive
// flag only affects trade desk display awareness; for every other
// combination it is ignored.
func ModelFor(source model.Source, channel model.Channel, goal model.Goal, ctrSensitive bool, level model.AnalysisLevel) (model.ScoringConfig, error) {
	key := modelKey{source, channel, goal, false}
	effectiveCTR := false
	if ctrSensitive && source == model.SourceTradeDesk && channel == model.ChannelDisplay && goal == model.GoalAwareness {
		key.CTRSensitive = true
		effectiveCTR = true
	}

	metrics, ok := scoringModels[key]
	if !ok {
		return model.ScoringConfig{}, eris.Errorf("weights: no scoring model for %s %s %s", source, channel, goal)
	}

	specs := make([]model.MetricSpec, len(metrics))
	copy(specs, metrics)

	cfg := model.ScoringConfig{
		Source:        source,
		Channel:       channel,
		Goal:          goal,
		CTRSensitive:  effectiveCTR,
		AnalysisLevel: level,
		Metrics:       specs,
		RequiredCols:  requiredColumns[key],
	}
	if !cfg.WeightsValid() {
		return model.ScoringConfig{}, eris.Errorf("weights: model for %s %s %s sums to %.4f, want 1.0", source, channel, goal, cfg.WeightSum())
	}
	return cfg, nil
}

// ResolveWeights drops configured metrics with no data in any row and
// rescales the remainder proportionally so the used weights sum to 1.0
// again. Scores computed from a reduced set are not directly comparable
// across files, so the caller must surface the missing metrics.
func ResolveWeights(cfg model.ScoringConfig, rows []*model.InventoryRow) (used map[string]float64, missing []string) {
	present := make(map[string]bool, len(cfg.Metrics))
	for _, row := range rows {
		for _, m := range cfg.Metrics {
			if _, ok := row.Normalized[m.Name]; ok {
				present[m.Name] = true
			}
		}
	}

	used = make(map[string]float64, len(cfg.Metrics))
	var total float64
	for _, m := range cfg.Metrics {
		if present[m.Name] {
			used[m.Name] = m.Weight
			total += m.Weight
		} else {
			missing = append(missing, m.Name)
		}
	}
	sort.Strings(missing)

	if total > 0 && len(missing) > 0 {
		for name, w := range used {
			used[name] = w / total
		}
	}
	return used, missing
}

// RequestedWeights returns the configured metric→weight map before any
// renormalization.
func RequestedWeights(cfg model.ScoringConfig) map[string]float64 {
	weights := make(map[string]float64, len(cfg.Metrics))
	for _, m := range cfg.Metrics {
		weights[m.Name] = m.Weight
	}
	return weights
}

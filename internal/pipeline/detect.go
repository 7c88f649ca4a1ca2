package pipeline

import (
	"strings"

	"github.com/caliber-analytics/caliber-cli/internal/model"
)

// Detection is the outcome of source/channel inference from column headers.
type Detection struct {
	Source     model.Source  `json:"source"`
	Channel    model.Channel `json:"channel"`
	Confidence float64       `json:"confidence"`
	Matching   []string      `json:"matching_columns,omitempty"`
	Missing    []string      `json:"missing_columns,omitempty"`
}

// signature is the column fingerprint of one (source, channel) pair.
type signature struct {
	source    model.Source
	channel   model.Channel
	columns   []string
	anchors   []string // all must be present regardless of match ratio
	threshold float64
}

// Signatures are ordered most-specific-first and the first qualifying one
// wins: trade desk before pulsepoint, and pulsepoint video before display.
// The display column set is a strict subset of the video set, so video
// anchors on completion_rate — display exports lack it and fall through.
var signatures = []signature{
	{model.SourceTradeDesk, model.ChannelDisplay,
		[]string{"site", "supply_vendor", "advertiser_cost", "impressions", "cpm", "clicks", "ctr",
			"ias_display_fully_in_view_1s", "ad_load_xl_imps", "ad_refresh_15s_imps",
			"all_last_click_view_conversion_rate"},
		[]string{"site", "supply_vendor"}, 0.6},
	{model.SourceTradeDesk, model.ChannelVideo,
		[]string{"site", "supply_vendor", "advertiser_cost", "impressions", "cpm", "sampled_in_view",
			"player_completion", "player_errors", "player_mute"},
		[]string{"site", "supply_vendor"}, 0.6},
	{model.SourceTradeDesk, model.ChannelVideoMobile,
		[]string{"site", "app", "impressions", "advertiser_cost", "player_errors", "player_mute",
			"sampled_tracked_impressions", "sampled_viewed_impressions", "player_completed_views", "player_starts"},
		[]string{"site", "app"}, 0.6},
	{model.SourceTradeDesk, model.ChannelAudio,
		[]string{"site", "supply_vendor", "advertiser_cost", "impressions", "cpm", "sampled_in_view",
			"player_completion", "player_errors", "player_mute"},
		[]string{"site", "supply_vendor"}, 0.6},
	{model.SourceTradeDesk, model.ChannelCTV,
		[]string{"supply_vendor", "advertiser_cost", "impressions", "tv_quality_index_raw",
			"tv_quality_index_measured", "unique_ids"},
		[]string{"supply_vendor"}, 0.6},
	{model.SourcePulsePoint, model.ChannelVideo,
		[]string{"domain", "total_spend", "impressions", "ecpm", "ctr", "completion_rate", "conversions"},
		[]string{"domain", "completion_rate"}, 0.7},
	{model.SourcePulsePoint, model.ChannelDisplay,
		[]string{"domain", "total_spend", "impressions", "ecpm", "ctr", "conversions"},
		[]string{"domain"}, 0.7},
}

// DetectSource infers the platform and channel from the raw column headers.
// It returns an *model.UnknownSourceError when no signature qualifies;
// callers must treat that as a validation failure, never a default.
func DetectSource(columns []string) (Detection, error) {
	available := make(map[string]bool, len(columns))
	for _, col := range columns {
		available[normalizeHeader(col)] = true
	}

	for _, sig := range signatures {
		var matching, missing []string
		for _, col := range sig.columns {
			if available[col] {
				matching = append(matching, col)
			} else {
				missing = append(missing, col)
			}
		}
		ratio := float64(len(matching)) / float64(len(sig.columns))
		if ratio < sig.threshold {
			continue
		}

		anchored := true
		for _, anchor := range sig.anchors {
			if !available[anchor] {
				anchored = false
				break
			}
		}
		if !anchored {
			continue
		}

		return Detection{
			Source:     sig.source,
			Channel:    sig.channel,
			Confidence: ratio,
			Matching:   matching,
			Missing:    missing,
		}, nil
	}

	return Detection{Source: model.SourceUnknown, Channel: model.ChannelUnknown},
		&model.UnknownSourceError{Columns: columns}
}

// normalizeHeader lowercases a header and unifies separators so files
// exported with "Supply Vendor", "supply-vendor", or "supply_vendor" all
// resolve to the same name.
func normalizeHeader(col string) string {
	s := strings.ToLower(strings.TrimSpace(col))
	s = strings.NewReplacer(" ", "_", "-", "_", "(", "", ")", "", "<", "", ">", "", "+", "", "–", "").Replace(s)
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return strings.Trim(s, "_")
}

package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caliber-analytics/caliber-cli/internal/model"
)

func TestDetectSource(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		columns []string
		source  model.Source
		channel model.Channel
	}{
		{
			name: "trade desk display",
			columns: []string{
				"Site", "Supply Vendor", "Advertiser Cost", "Impressions", "CPM", "Clicks", "CTR",
				"IAS Display Fully In View 1s", "Ad Load – XL (Imps)", "Ad Refresh 15s (Imps)",
				"All Last Click + View Conversion Rate",
			},
			source:  model.SourceTradeDesk,
			channel: model.ChannelDisplay,
		},
		{
			name: "trade desk video",
			columns: []string{
				"Site", "Supply Vendor", "Advertiser Cost", "Impressions", "CPM",
				"Sampled In View", "Player Completion", "Player Errors", "Player Mute",
			},
			source:  model.SourceTradeDesk,
			channel: model.ChannelVideo,
		},
		{
			name: "trade desk mobile video",
			columns: []string{
				"Site", "App", "Impressions", "Advertiser Cost", "Player Errors", "Player Mute",
				"Sampled Tracked Impressions", "Sampled Viewed Impressions",
				"Player Completed Views", "Player Starts",
			},
			source:  model.SourceTradeDesk,
			channel: model.ChannelVideoMobile,
		},
		{
			name: "trade desk ctv",
			columns: []string{
				"Supply Vendor", "Advertiser Cost", "Impressions",
				"TV Quality Index Raw", "TV Quality Index Measured", "Unique IDs",
			},
			source:  model.SourceTradeDesk,
			channel: model.ChannelCTV,
		},
		{
			name:    "pulsepoint display",
			columns: []string{"Domain", "Total Spend", "Impressions", "eCPM", "CTR", "Conversions"},
			source:  model.SourcePulsePoint,
			channel: model.ChannelDisplay,
		},
		{
			name: "pulsepoint video",
			columns: []string{
				"Domain", "Total Spend", "Impressions", "eCPM", "CTR", "Completion Rate", "Conversions",
			},
			source:  model.SourcePulsePoint,
			channel: model.ChannelVideo,
		},
		{
			name: "header separator variants resolve",
			columns: []string{
				"site", "supply-vendor", "ADVERTISER COST", "impressions", "cpm", "clicks", "ctr",
				"ias display fully in view 1s", "ad_load_xl_imps", "ad refresh 15s (imps)",
			},
			source:  model.SourceTradeDesk,
			channel: model.ChannelDisplay,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d, err := DetectSource(tt.columns)
			require.NoError(t, err)
			assert.Equal(t, tt.source, d.Source)
			assert.Equal(t, tt.channel, d.Channel)
			assert.Greater(t, d.Confidence, 0.5)
		})
	}
}

func TestDetectSourceFullMatchConfidence(t *testing.T) {
	t.Parallel()

	d, err := DetectSource([]string{"Domain", "Total Spend", "Impressions", "eCPM", "CTR", "Conversions"})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d.Confidence, 1e-9)
	assert.Len(t, d.Matching, 6)
	assert.Empty(t, d.Missing)
}

func TestDetectSourceVideoPrecedence(t *testing.T) {
	t.Parallel()

	// The display column set is a strict subset of the video set, so a
	// video export matches display at full ratio too. Video must win.
	videoCols := []string{"Domain", "Total Spend", "Impressions", "eCPM", "CTR", "Completion Rate", "Conversions"}
	d, err := DetectSource(videoCols)
	require.NoError(t, err)
	assert.Equal(t, model.ChannelVideo, d.Channel)
	assert.InDelta(t, 1.0, d.Confidence, 1e-9)

	// Without the completion-rate anchor the same file is display.
	d, err = DetectSource(videoCols[:len(videoCols)-2])
	require.NoError(t, err)
	assert.Equal(t, model.ChannelDisplay, d.Channel)
}

func TestDetectSourceUnknown(t *testing.T) {
	t.Parallel()

	_, err := DetectSource([]string{"Foo", "Bar", "Baz"})
	require.Error(t, err)

	var unknownErr *model.UnknownSourceError
	require.True(t, errors.As(err, &unknownErr))
	assert.Equal(t, []string{"Foo", "Bar", "Baz"}, unknownErr.Columns)
}

func TestDetectSourceMissingAnchor(t *testing.T) {
	t.Parallel()

	// High column overlap does not qualify without the domain anchor.
	_, err := DetectSource([]string{"Total Spend", "Impressions", "eCPM", "CTR", "Conversions", "Completion Rate"})
	var unknownErr *model.UnknownSourceError
	require.True(t, errors.As(err, &unknownErr))
}

func TestNormalizeHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Supply Vendor", "supply_vendor"},
		{"supply-vendor", "supply_vendor"},
		{"  CTR  ", "ctr"},
		{"Ad Load – XL (Imps)", "ad_load_xl_imps"},
		{"Ad Refresh 15s (Imps)", "ad_refresh_15s_imps"},
		{"All Last Click + View Conversion Rate", "all_last_click_view_conversion_rate"},
		{"IAS Display Fully In View <1s>", "ias_display_fully_in_view_1s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeHeader(tt.in), tt.in)
	}
}

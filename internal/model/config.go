// Package model holds the shared types of the inventory scoring pipeline.
package model

import "math"

// Source identifies the ad platform that produced a performance export.
type Source string

const (
	SourceTradeDesk  Source = "trade_desk"
	SourcePulsePoint Source = "pulsepoint"
	SourceUnknown    Source = "unknown"
)

// Channel identifies the media channel of a campaign export.
type Channel string

const (
	ChannelDisplay     Channel = "display"
	ChannelVideo       Channel = "video"
	ChannelVideoMobile Channel = "video_mobile"
	ChannelAudio       Channel = "audio"
	ChannelCTV         Channel = "ctv"
	ChannelUnknown     Channel = "unknown"
)

// Goal is the campaign objective driving weight selection.
type Goal string

const (
	GoalAwareness Goal = "awareness"
	GoalAction    Goal = "action"
)

// AnalysisLevel is the granularity rows are scored at.
type AnalysisLevel string

const (
	LevelDomain       AnalysisLevel = "domain"
	LevelSupplyVendor AnalysisLevel = "supply_vendor"
)

// Direction states whether higher or lower raw values of a metric are better.
type Direction string

const (
	DirectionHigher Direction = "higher"
	DirectionLower  Direction = "lower"
)

// MetricSpec describes one metric of a scoring model.
type MetricSpec struct {
	Name      string    `json:"name"`
	Weight    float64   `json:"weight"`
	Direction Direction `json:"direction"`
	Required  bool      `json:"required"`
}

// ScoringConfig is the immutable configuration one pipeline run scores
// against. Instances are selected from the weight table, never mutated.
type ScoringConfig struct {
	Source        Source        `json:"source"`
	Channel       Channel       `json:"channel"`
	Goal          Goal          `json:"goal"`
	CTRSensitive  bool          `json:"ctr_sensitive"`
	AnalysisLevel AnalysisLevel `json:"analysis_level"`
	Metrics       []MetricSpec  `json:"metrics"`
	RequiredCols  []string      `json:"required_columns"`
}

// WeightSum returns the sum of all configured metric weights.
func (c ScoringConfig) WeightSum() float64 {
	var sum float64
	for _, m := range c.Metrics {
		sum += m.Weight
	}
	return sum
}

// WeightsValid reports whether the configured weights sum to 1.0 within
// floating-point tolerance.
func (c ScoringConfig) WeightsValid() bool {
	return math.Abs(c.WeightSum()-1.0) < 1e-3
}

// Metric returns the spec for the named metric, if configured.
func (c ScoringConfig) Metric(name string) (MetricSpec, bool) {
	for _, m := range c.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return MetricSpec{}, false
}

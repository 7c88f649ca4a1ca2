package model

// NormalizationStats records how one metric was rescaled.
type NormalizationStats struct {
	Metric    string    `json:"metric"`
	Method    string    `json:"method"`
	Direction Direction `json:"direction"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	Inverted  bool      `json:"inverted"`
	AllEqual  bool      `json:"all_equal"`
}

// OutlierStats records the effect of outlier handling on one metric.
type OutlierStats struct {
	Metric          string  `json:"metric"`
	Median          float64 `json:"median"`
	MAD             float64 `json:"mad"`
	RowsRemoved     int     `json:"rows_removed"`
	OutlierFraction float64 `json:"outlier_fraction"`
	Skipped         bool    `json:"skipped"`
	SkipReason      string  `json:"skip_reason,omitempty"`
	LowerCap        float64 `json:"lower_cap"`
	UpperCap        float64 `json:"upper_cap"`
	ValuesCapped    int     `json:"values_capped"`
}

// ScoreDistribution summarizes the final 0-100 score population.
type ScoreDistribution struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Q25    float64 `json:"q25"`
	Q75    float64 `json:"q75"`
}

// Performer is one entry of the top/bottom-5 lists.
type Performer struct {
	Identifier  string  `json:"identifier"`
	Score       float64 `json:"score"`
	Impressions float64 `json:"impressions"`
	Status      Status  `json:"status"`
}

// VendorBenchmark is one supply vendor recommended as a benchmark when a
// file spans many vendors.
type VendorBenchmark struct {
	Name         string  `json:"name"`
	AverageScore float64 `json:"average_score"`
	RowCount     int     `json:"row_count"`
}

// StageResult records the outcome of one pipeline stage.
type StageResult struct {
	Name       string         `json:"name"`
	DurationMS int64          `json:"duration_ms"`
	Notes      map[string]any `json:"notes,omitempty"`
}

// PipelineSummary is the aggregate diagnostics record built up across
// stages and returned once per run. Read-only after the run completes.
type PipelineSummary struct {
	Source        Source        `json:"source"`
	Channel       Channel       `json:"channel"`
	Goal          Goal          `json:"goal"`
	CTRSensitive  bool          `json:"ctr_sensitive"`
	AnalysisLevel AnalysisLevel `json:"analysis_level"`

	DetectionConfidence float64 `json:"detection_confidence"`

	OriginalRows  int                  `json:"original_rows"`
	FinalRows     int                  `json:"final_rows"`
	ExcludedRows  map[string]int       `json:"excluded_rows"` // reason -> count
	Normalization []NormalizationStats `json:"normalization"`
	OutlierStats  []OutlierStats       `json:"outlier_handling"`

	// WeightsRequested is the configured model; WeightsUsed is what was
	// applied after dropping metrics absent from the file and rescaling.
	WeightsRequested  map[string]float64 `json:"weights_requested"`
	WeightsUsed       map[string]float64 `json:"weights_used"`
	MissingMetrics    []string           `json:"missing_metrics,omitempty"`
	ReducedFeatureSet bool               `json:"reduced_feature_set"`

	Scores      ScoreDistribution       `json:"score_distribution"`
	StatusCount map[Status]int          `json:"status_counts"`
	TierCount   map[PerformanceTier]int `json:"tier_counts"`

	TopPerformers    []Performer `json:"top_performers"`
	BottomPerformers []Performer `json:"bottom_performers"`

	// CampaignScore is the impression-weighted mean of row scores.
	CampaignScore    float64  `json:"campaign_score"`
	TotalImpressions float64  `json:"total_impressions"`
	Whitelist        []string `json:"whitelist"`
	Blacklist        []string `json:"blacklist"`

	VendorGuidance []VendorBenchmark `json:"vendor_guidance,omitempty"`

	Stages []StageResult `json:"stages"`
}

// Exclude adds n rows to the excluded-row tally under the given reason.
func (s *PipelineSummary) Exclude(reason string, n int) {
	if n <= 0 {
		return
	}
	if s.ExcludedRows == nil {
		s.ExcludedRows = make(map[string]int)
	}
	s.ExcludedRows[reason] += n
}

package model

// Status is the quality tier assigned from score thresholds.
type Status string

const (
	StatusGood     Status = "Good"
	StatusModerate Status = "Moderate"
	StatusPoor     Status = "Poor"
)

// PerformanceTier buckets rows by percentile rank.
type PerformanceTier string

const (
	TierTop    PerformanceTier = "Top"
	TierMiddle PerformanceTier = "Middle"
	TierBottom PerformanceTier = "Bottom"
)

// InventoryRow is one scored entity (a domain or a supply vendor). Metric
// values are carried as explicit maps keyed by canonical metric name rather
// than suffixed table columns, so every stage resolves values by name.
//
// RawMetrics holds the cleaned input values and survives untouched for
// display and explanation. Winsorized holds the tail-capped copies used for
// normalization. Normalized holds the direction-adjusted [0,1] values.
type InventoryRow struct {
	Identifier string `json:"identifier"`

	// Vendor carries the supply vendor even when rows are scored at the
	// domain level, so vendor benchmarks can be derived afterward.
	Vendor string `json:"vendor,omitempty"`

	// Impressions is duplicated out of RawMetrics because nearly every
	// stage filters or weights by it.
	Impressions float64 `json:"impressions"`

	RawMetrics map[string]float64 `json:"raw_metrics"`
	Winsorized map[string]float64 `json:"-"`
	Normalized map[string]float64 `json:"normalized_metrics"`

	RawScore       float64         `json:"raw_score"`
	Score          float64         `json:"score"`
	Status         Status          `json:"status"`
	PercentileRank float64         `json:"percentile_rank"`
	Tier           PerformanceTier `json:"performance_tier"`
	Explanation    string          `json:"explanation"`

	QualityFlags []string `json:"quality_flags,omitempty"`

	// MobileApp marks rows from app inventory, which use a lower
	// impression floor.
	MobileApp bool `json:"mobile_app,omitempty"`
}

// Raw returns the raw value of the named metric and whether it is present.
func (r *InventoryRow) Raw(name string) (float64, bool) {
	v, ok := r.RawMetrics[name]
	return v, ok
}

// ScoringValue returns the value normalization should scale for the named
// metric: the winsorized copy when one exists, else the raw value.
func (r *InventoryRow) ScoringValue(name string) (float64, bool) {
	if v, ok := r.Winsorized[name]; ok {
		return v, true
	}
	v, ok := r.RawMetrics[name]
	return v, ok
}

// Flag appends a quality flag, skipping duplicates.
func (r *InventoryRow) Flag(flag string) {
	for _, f := range r.QualityFlags {
		if f == flag {
			return
		}
	}
	r.QualityFlags = append(r.QualityFlags, flag)
}

// Package pipeline implements the inventory scoring pipeline: source
// detection, preprocessing, outlier handling, normalization, weighting,
// composite scoring, explanations, and whitelist/blacklist derivation.
//
// The pipeline is a pure, synchronous transformation of (table, options)
// into (scored rows, summary): it performs no I/O and holds no shared
// state, so concurrent runs need no coordination.
package pipeline

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/caliber-analytics/caliber-cli/internal/config"
	"github.com/caliber-analytics/caliber-cli/internal/model"
)

// Options selects the scoring configuration for one run. Source and Channel
// may be left empty to use what detection infers.
type Options struct {
	Source        model.Source
	Channel       model.Channel
	Goal          model.Goal
	CTRSensitive  bool
	AnalysisLevel model.AnalysisLevel
}

// Result is the output of one pipeline run.
type Result struct {
	Rows    []*model.InventoryRow
	Summary *model.PipelineSummary
	Config  model.ScoringConfig
}

// Pipeline runs the scoring stages against one in-memory table.
type Pipeline struct {
	cfg *config.Config
}

// New creates a Pipeline with the given configuration.
func New(cfg *config.Config) *Pipeline {
	return &Pipeline{cfg: cfg}
}

// Run executes the full scoring pipeline. Validation failures (unknown
// source, missing required columns, nothing left after filtering) return
// typed errors; degenerate numeric conditions recover via the documented
// fallbacks and surface as summary flags instead.
func (p *Pipeline) Run(tbl *model.Table, opts Options) (*Result, error) {
	if opts.Goal == "" {
		opts.Goal = model.GoalAwareness
	}
	if opts.AnalysisLevel == "" {
		opts.AnalysisLevel = model.LevelDomain
	}

	sum := &model.PipelineSummary{
		Goal:          opts.Goal,
		AnalysisLevel: opts.AnalysisLevel,
		OriginalRows:  len(tbl.Rows),
	}

	log := zap.L().With(zap.String("goal", string(opts.Goal)))

	trackStage := func(name string, notes map[string]any, fn func() error) error {
		start := time.Now()
		err := fn()
		duration := time.Since(start).Milliseconds()
		sum.Stages = append(sum.Stages, model.StageResult{Name: name, DurationMS: duration, Notes: notes})
		if err != nil {
			log.Error("pipeline: stage failed", zap.String("stage", name), zap.Int64("duration_ms", duration), zap.Error(err))
			return err
		}
		log.Info("pipeline: stage complete", zap.String("stage", name), zap.Int64("duration_ms", duration))
		return nil
	}

	// Detection. Explicit source/channel overrides are honored, but the
	// file must still look like a known platform export.
	var detection Detection
	detectNotes := map[string]any{}
	if err := trackStage("detect", detectNotes, func() error {
		d, err := DetectSource(tbl.Columns)
		if err != nil {
			return err
		}
		detection = d
		detectNotes["source"] = string(d.Source)
		detectNotes["channel"] = string(d.Channel)
		detectNotes["confidence"] = d.Confidence
		return nil
	}); err != nil {
		return nil, err
	}

	source, channel := detection.Source, detection.Channel
	if opts.Source != "" {
		source = opts.Source
	}
	if opts.Channel != "" {
		channel = opts.Channel
	}
	sum.Source = source
	sum.Channel = channel
	sum.DetectionConfidence = detection.Confidence
	log = log.With(zap.String("source", string(source)), zap.String("channel", string(channel)))

	// Weight table lookup and required-column validation.
	cfg, err := ModelFor(source, channel, opts.Goal, opts.CTRSensitive, opts.AnalysisLevel)
	if err != nil {
		return nil, err
	}
	sum.CTRSensitive = cfg.CTRSensitive
	sum.WeightsRequested = RequestedWeights(cfg)

	if err := validateColumns(tbl.Columns, cfg); err != nil {
		return nil, err
	}

	// Preprocess.
	var rows []*model.InventoryRow
	if err := trackStage("preprocess", nil, func() error {
		var preErr error
		rows, preErr = Preprocess(tbl, cfg, PreprocessOptions{
			TradeDeskImpressionFloor:  p.cfg.Scoring.TradeDeskImpressionFloor,
			MobileAppImpressionFloor:  p.cfg.Scoring.MobileAppImpressionFloor,
			PulsePointImpressionFloor: p.cfg.Scoring.PulsePointImpressionFloor,
			PulsePointImpressionShare: p.cfg.Scoring.PulsePointImpressionShare,
		}, sum)
		return preErr
	}); err != nil {
		return nil, err
	}

	// Outliers.
	_ = trackStage("outliers", nil, func() error {
		rows = HandleOutliers(rows, cfg, OutlierOptions{
			ZThreshold:  p.cfg.Scoring.OutlierZThreshold,
			MaxFraction: p.cfg.Scoring.MaxOutlierFraction,
			MinValues:   p.cfg.Scoring.MinOutlierValues,
		}, sum)
		return nil
	})
	if len(rows) == 0 {
		return nil, &model.EmptyResultError{Stage: "outlier handling"}
	}

	// Normalize.
	_ = trackStage("normalize", nil, func() error {
		Normalize(rows, cfg, sum)
		return nil
	})

	// Weight resolution for metrics absent from this file.
	used, missing := ResolveWeights(cfg, rows)
	sum.WeightsUsed = used
	sum.MissingMetrics = missing
	sum.ReducedFeatureSet = len(missing) > 0
	if sum.ReducedFeatureSet {
		log.Warn("pipeline: scoring with reduced feature set",
			zap.Strings("missing_metrics", missing))
	}
	if len(used) == 0 {
		return nil, eris.New("pipeline: no configured metrics present in file")
	}

	// Score, explain, results.
	_ = trackStage("score", nil, func() error {
		Score(rows, used, ScoreOptions{
			GoodThreshold:     p.cfg.Scoring.GoodThreshold,
			ModerateThreshold: p.cfg.Scoring.ModerateThreshold,
		}, sum)
		return nil
	})

	_ = trackStage("explain", nil, func() error {
		Explain(rows, cfg, used)
		return nil
	})

	_ = trackStage("results", nil, func() error {
		ProcessResults(rows, cfg, ResultsOptions{
			WhitelistPercentile:       p.cfg.Scoring.WhitelistPercentile,
			BlacklistPercentile:       p.cfg.Scoring.BlacklistPercentile,
			TradeDeskImpressionFloor:  p.cfg.Scoring.TradeDeskImpressionFloor,
			MobileAppImpressionFloor:  p.cfg.Scoring.MobileAppImpressionFloor,
			PulsePointImpressionFloor: p.cfg.Scoring.PulsePointImpressionFloor,
			PulsePointImpressionShare: p.cfg.Scoring.PulsePointImpressionShare,
			VendorGuidanceMinVendors:  p.cfg.Scoring.VendorGuidanceMinVendors,
			VendorGuidanceMinRows:     p.cfg.Scoring.VendorGuidanceMinRows,
		}, sum)
		return nil
	})

	sum.FinalRows = len(rows)
	log.Info("pipeline: run complete",
		zap.Int("original_rows", sum.OriginalRows),
		zap.Int("final_rows", sum.FinalRows),
		zap.Float64("campaign_score", sum.CampaignScore),
	)

	return &Result{Rows: rows, Summary: sum, Config: cfg}, nil
}

// validateColumns checks the file carries every required column for the
// selected configuration. Missing columns are a fatal validation error:
// the pipeline never substitutes defaults for required metrics.
func validateColumns(columns []string, cfg model.ScoringConfig) error {
	available := make(map[string]bool, len(columns))
	for _, col := range columns {
		available[CanonicalColumn(col)] = true
	}

	var missing []string
	for _, required := range cfg.RequiredCols {
		if !available[required] {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return &model.MissingRequiredFieldsError{
			Source:  cfg.Source,
			Channel: cfg.Channel,
			Goal:    cfg.Goal,
			Fields:  missing,
		}
	}
	return nil
}

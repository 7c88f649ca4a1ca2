package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/caliber-analytics/caliber-cli/internal/ingest"
	"github.com/caliber-analytics/caliber-cli/internal/model"
	"github.com/caliber-analytics/caliber-cli/internal/pipeline"
	"github.com/caliber-analytics/caliber-cli/internal/store"
)

var (
	scoreGoal         string
	scoreSource       string
	scoreChannel      string
	scoreLevel        string
	scoreCTRSensitive bool
	scoreSheetName    string
	scoreSheetIndex   int
	scoreSkipRows     int
	scoreFormat       string
	scoreOutput       string
	scoreNoStore      bool
)

var scoreCmd = &cobra.Command{
	Use:   "score <report-file>",
	Short: "Score inventory from a platform report export",
	Long: `Runs the full scoring pipeline on one CSV or XLSX report export.

The platform and channel are detected from the column headers; --source and
--channel override detection when a file is ambiguous.

Examples:
  # Score a report with defaults (awareness goal, domain level)
  caliber score report.csv

  # Action campaign at supply-vendor granularity
  caliber score report.xlsx --goal action --level supply_vendor

  # CTR-sensitive display scoring, results to JSON
  caliber score report.csv --ctr-sensitive --format json --output scores.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		opts, err := parseScoreOptions()
		if err != nil {
			return err
		}

		var st store.Store
		if !scoreNoStore {
			st, err = initStore()
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate store")
			}
		}

		result, err := runFile(ctx, st, args[0], args[0], opts)
		if err != nil {
			return err
		}

		return writeResult(result, scoreFormat, scoreOutput)
	},
}

func init() {
	scoreCmd.Flags().StringVar(&scoreGoal, "goal", "awareness", "campaign goal: awareness or action")
	scoreCmd.Flags().StringVar(&scoreSource, "source", "", "override detected source: trade_desk or pulsepoint")
	scoreCmd.Flags().StringVar(&scoreChannel, "channel", "", "override detected channel: display, video, video_mobile, audio, ctv")
	scoreCmd.Flags().StringVar(&scoreLevel, "level", "domain", "analysis level: domain or supply_vendor")
	scoreCmd.Flags().BoolVar(&scoreCTRSensitive, "ctr-sensitive", false, "use the CTR-weighted display awareness model")
	scoreCmd.Flags().StringVar(&scoreSheetName, "sheet", "", "XLSX sheet name (default first sheet)")
	scoreCmd.Flags().IntVar(&scoreSheetIndex, "sheet-index", 0, "XLSX sheet index")
	scoreCmd.Flags().IntVar(&scoreSkipRows, "skip-rows", 0, "rows to skip before the header")
	scoreCmd.Flags().StringVar(&scoreFormat, "format", "table", "output format: table, json, or csv")
	scoreCmd.Flags().StringVar(&scoreOutput, "output", "", "write output to file instead of stdout")
	scoreCmd.Flags().BoolVar(&scoreNoStore, "no-store", false, "skip recording the run in history")
	rootCmd.AddCommand(scoreCmd)
}

func parseScoreOptions() (pipeline.Options, error) {
	opts := pipeline.Options{CTRSensitive: scoreCTRSensitive}

	switch scoreGoal {
	case "awareness":
		opts.Goal = model.GoalAwareness
	case "action":
		opts.Goal = model.GoalAction
	default:
		return opts, eris.Errorf("invalid goal %q, want awareness or action", scoreGoal)
	}

	switch scoreLevel {
	case "", "domain":
		opts.AnalysisLevel = model.LevelDomain
	case "supply_vendor":
		opts.AnalysisLevel = model.LevelSupplyVendor
	default:
		return opts, eris.Errorf("invalid level %q, want domain or supply_vendor", scoreLevel)
	}

	switch scoreSource {
	case "":
	case "trade_desk":
		opts.Source = model.SourceTradeDesk
	case "pulsepoint":
		opts.Source = model.SourcePulsePoint
	default:
		return opts, eris.Errorf("invalid source %q, want trade_desk or pulsepoint", scoreSource)
	}

	switch scoreChannel {
	case "":
	case "display":
		opts.Channel = model.ChannelDisplay
	case "video":
		opts.Channel = model.ChannelVideo
	case "video_mobile":
		opts.Channel = model.ChannelVideoMobile
	case "audio":
		opts.Channel = model.ChannelAudio
	case "ctv":
		opts.Channel = model.ChannelCTV
	default:
		return opts, eris.Errorf("invalid channel %q", scoreChannel)
	}

	return opts, nil
}

func ingestOptions() ingest.Options {
	opts := ingest.Options{
		SheetName:  scoreSheetName,
		SheetIndex: scoreSheetIndex,
		SkipRows:   scoreSkipRows,
	}
	if opts.SheetName == "" && cfg.Ingest.SheetName != "" {
		opts.SheetName = cfg.Ingest.SheetName
	}
	if opts.SheetIndex == 0 {
		opts.SheetIndex = cfg.Ingest.SheetIndex
	}
	if opts.SkipRows == 0 {
		opts.SkipRows = cfg.Ingest.SkipRows
	}
	return opts
}

// runFile loads the report at path, runs the pipeline, and records the run
// in history under displayName when st is non-nil. A failed run is recorded
// too, with its error.
func runFile(ctx context.Context, st store.Store, path, displayName string, opts pipeline.Options) (*pipeline.Result, error) {
	tbl, err := ingest.Load(path, ingestOptions())
	if err != nil {
		return nil, err
	}

	var run *model.Run
	if st != nil {
		run = &model.Run{
			InputPath: displayName,
			Source:    opts.Source,
			Channel:   opts.Channel,
			Goal:      opts.Goal,
			Level:     opts.AnalysisLevel,
		}
		if run.Goal == "" {
			run.Goal = model.GoalAwareness
		}
		if run.Level == "" {
			run.Level = model.LevelDomain
		}
		if err := st.CreateRun(ctx, run); err != nil {
			return nil, err
		}
	}

	result, err := pipeline.New(cfg).Run(tbl, opts)
	if err != nil {
		if run != nil {
			if failErr := st.FailRun(ctx, run.ID, err); failErr != nil {
				zap.L().Warn("could not record failed run", zap.Error(failErr))
			}
		}
		return nil, err
	}

	if run != nil {
		if err := st.CompleteRun(ctx, run.ID, result.Summary); err != nil {
			zap.L().Warn("could not record run", zap.Error(err))
		}
	}

	zap.L().Info("scoring complete",
		zap.String("file", displayName),
		zap.String("source", string(result.Summary.Source)),
		zap.String("channel", string(result.Summary.Channel)),
		zap.Int("rows", result.Summary.FinalRows),
		zap.Float64("campaign_score", result.Summary.CampaignScore),
	)
	return result, nil
}

// writeResult renders the result in the requested format, to stdout or to
// the --output file.
func writeResult(result *pipeline.Result, format, outputPath string) error {
	out := os.Stdout
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return eris.Wrapf(err, "create %s", outputPath)
		}
		defer f.Close()
		out = f
	}

	switch format {
	case "json":
		return writeJSON(out, result)
	case "csv":
		return writeCSV(out, result.Rows)
	case "", "table":
		return writeTable(out, result)
	default:
		return eris.Errorf("invalid format %q, want table, json, or csv", format)
	}
}

package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/caliber-analytics/caliber-cli/internal/model"
	"github.com/caliber-analytics/caliber-cli/internal/pipeline"
)

var weightsFormat string

var weightsCmd = &cobra.Command{
	Use:   "weights",
	Short: "Show the scoring model for a source/channel/goal combination",
	Long: `Prints the metric weights and directions the pipeline would apply.
Useful for documenting what a score means before sharing results.

Examples:
  caliber weights --source trade_desk --channel display --goal awareness
  caliber weights --source pulsepoint --channel video --goal action --format yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := parseScoreOptions()
		if err != nil {
			return err
		}
		if opts.Source == "" {
			opts.Source = model.SourceTradeDesk
		}
		if opts.Channel == "" {
			opts.Channel = model.ChannelDisplay
		}

		scoring, err := pipeline.ModelFor(opts.Source, opts.Channel, opts.Goal, opts.CTRSensitive, opts.AnalysisLevel)
		if err != nil {
			return err
		}

		switch weightsFormat {
		case "yaml":
			enc := yaml.NewEncoder(os.Stdout)
			defer enc.Close()
			return enc.Encode(weightsView(scoring))
		case "table":
			return writeWeightsTable(scoring)
		default:
			return fmt.Errorf("invalid format %q: must be table or yaml", weightsFormat)
		}
	},
}

func writeWeightsTable(cfg model.ScoringConfig) error {
	fmt.Printf("Model: %s %s %s", cfg.Source, cfg.Channel, cfg.Goal)
	if cfg.CTRSensitive {
		fmt.Print(" (ctr-sensitive)")
	}
	fmt.Println()

	metrics := append([]model.MetricSpec(nil), cfg.Metrics...)
	sort.Slice(metrics, func(i, j int) bool {
		if metrics[i].Weight != metrics[j].Weight {
			return metrics[i].Weight > metrics[j].Weight
		}
		return metrics[i].Name < metrics[j].Name
	})

	table := tablewriter.NewWriter(os.Stdout)
	table.Header([]string{"Metric", "Weight", "Direction"})
	rows := make([][]string, 0, len(metrics))
	for _, m := range metrics {
		rows = append(rows, []string{m.Name, fmt.Sprintf("%.2f", m.Weight), string(m.Direction)})
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

type metricView struct {
	Weight    float64 `yaml:"weight"`
	Direction string  `yaml:"direction"`
}

type modelView struct {
	Source          string                `yaml:"source"`
	Channel         string                `yaml:"channel"`
	Goal            string                `yaml:"goal"`
	CTRSensitive    bool                  `yaml:"ctr_sensitive"`
	Metrics         map[string]metricView `yaml:"metrics"`
	RequiredColumns []string              `yaml:"required_columns"`
}

func weightsView(cfg model.ScoringConfig) modelView {
	view := modelView{
		Source:          string(cfg.Source),
		Channel:         string(cfg.Channel),
		Goal:            string(cfg.Goal),
		CTRSensitive:    cfg.CTRSensitive,
		Metrics:         make(map[string]metricView, len(cfg.Metrics)),
		RequiredColumns: cfg.RequiredCols,
	}
	for _, m := range cfg.Metrics {
		view.Metrics[m.Name] = metricView{Weight: m.Weight, Direction: string(m.Direction)}
	}
	return view
}

func init() {
	weightsCmd.Flags().StringVar(&scoreGoal, "goal", "awareness", "campaign goal: awareness or action")
	weightsCmd.Flags().StringVar(&scoreSource, "source", "trade_desk", "source: trade_desk or pulsepoint")
	weightsCmd.Flags().StringVar(&scoreChannel, "channel", "display", "channel: display, video, video_mobile, audio, ctv")
	weightsCmd.Flags().StringVar(&scoreLevel, "level", "domain", "analysis level: domain or supply_vendor")
	weightsCmd.Flags().BoolVar(&scoreCTRSensitive, "ctr-sensitive", false, "use the CTR-weighted display awareness model")
	weightsCmd.Flags().StringVar(&weightsFormat, "format", "table", "output format: table or yaml")
	rootCmd.AddCommand(weightsCmd)
}

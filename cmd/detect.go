package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/caliber-analytics/caliber-cli/internal/ingest"
	"github.com/caliber-analytics/caliber-cli/internal/pipeline"
)

var detectCmd = &cobra.Command{
	Use:   "detect <report-file>",
	Short: "Detect the platform and channel of a report export",
	Long:  "Reads only the column headers and reports which platform signature they match, without running the pipeline.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tbl, err := ingest.Load(args[0], ingestOptions())
		if err != nil {
			return err
		}

		detection, err := pipeline.DetectSource(tbl.Columns)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(detection)
	},
}

func init() {
	detectCmd.Flags().StringVar(&scoreSheetName, "sheet", "", "XLSX sheet name (default first sheet)")
	detectCmd.Flags().IntVar(&scoreSkipRows, "skip-rows", 0, "rows to skip before the header")
	rootCmd.AddCommand(detectCmd)
}

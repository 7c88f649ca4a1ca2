package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/caliber-analytics/caliber-cli/internal/pipeline"
	"github.com/caliber-analytics/caliber-cli/internal/store"
)

var batchConcurrency int

var batchCmd = &cobra.Command{
	Use:   "batch <report-file>...",
	Short: "Score multiple report files concurrently",
	Long: `Runs the scoring pipeline over several report exports. Each file is
detected and scored independently; one bad file does not stop the rest.

Example:
  caliber batch reports/*.csv --goal awareness --concurrency 4`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

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
				return err
			}
		}

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.MaxConcurrentFiles
		}
		if concurrency <= 0 {
			concurrency = 1
		}

		zap.L().Info("processing batch",
			zap.Int("files", len(args)),
			zap.Int("concurrency", concurrency),
		)

		type batchOutcome struct {
			path   string
			result *pipeline.Result
			err    error
		}

		var mu sync.Mutex
		outcomes := make([]batchOutcome, 0, len(args))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)
		for _, path := range args {
			path := path
			g.Go(func() error {
				result, err := runFile(gctx, st, path, path, opts)
				if err != nil {
					zap.L().Error("file failed", zap.String("file", path), zap.Error(err))
				}
				mu.Lock()
				outcomes = append(outcomes, batchOutcome{path: path, result: result, err: err})
				mu.Unlock()
				// Per-file failures are reported in the summary, not fatal.
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		failed := 0
		for _, o := range outcomes {
			if o.err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", o.path, o.err)
				continue
			}
			fmt.Printf("OK   %s: %d rows, campaign score %.1f (%s %s)\n",
				o.path, o.result.Summary.FinalRows, o.result.Summary.CampaignScore,
				o.result.Summary.Source, o.result.Summary.Channel)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(outcomes))
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "max files processed at once (default from config)")
	batchCmd.Flags().StringVar(&scoreGoal, "goal", "awareness", "campaign goal: awareness or action")
	batchCmd.Flags().StringVar(&scoreLevel, "level", "domain", "analysis level: domain or supply_vendor")
	batchCmd.Flags().BoolVar(&scoreCTRSensitive, "ctr-sensitive", false, "use the CTR-weighted display awareness model")
	batchCmd.Flags().BoolVar(&scoreNoStore, "no-store", false, "skip recording runs in history")
	rootCmd.AddCommand(batchCmd)
}

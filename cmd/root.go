package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/caliber-analytics/caliber-cli/internal/config"
	"github.com/caliber-analytics/caliber-cli/internal/store"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "caliber",
	Short: "Advertising inventory scoring pipeline",
	Long:  "Scores programmatic inventory from platform report exports: detects the source, cleans and normalizes KPIs, computes composite 0-100 scores, and produces whitelist/blacklist recommendations.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func initStore() (store.Store, error) {
	dsn := cfg.Store.Path
	if dsn == "" {
		dsn = "caliber.db"
	}
	return store.NewSQLite(dsn)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Scoring ScoringConfig `yaml:"scoring" mapstructure:"scoring"`
	Ingest  IngestConfig  `yaml:"ingest" mapstructure:"ingest"`
	Batch   BatchConfig   `yaml:"batch" mapstructure:"batch"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run-history database.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ScoringConfig holds the tunable constants of the scoring pipeline. The
// defaults reproduce the documented scoring behavior; override with care
// since changed thresholds make scores incomparable across runs.
type ScoringConfig struct {
	GoodThreshold     float64 `yaml:"good_threshold" mapstructure:"good_threshold"`
	ModerateThreshold float64 `yaml:"moderate_threshold" mapstructure:"moderate_threshold"`

	WhitelistPercentile float64 `yaml:"whitelist_percentile" mapstructure:"whitelist_percentile"`
	BlacklistPercentile float64 `yaml:"blacklist_percentile" mapstructure:"blacklist_percentile"`

	TradeDeskImpressionFloor  float64 `yaml:"trade_desk_impression_floor" mapstructure:"trade_desk_impression_floor"`
	MobileAppImpressionFloor  float64 `yaml:"mobile_app_impression_floor" mapstructure:"mobile_app_impression_floor"`
	PulsePointImpressionFloor float64 `yaml:"pulsepoint_impression_floor" mapstructure:"pulsepoint_impression_floor"`
	PulsePointImpressionShare float64 `yaml:"pulsepoint_impression_share" mapstructure:"pulsepoint_impression_share"`

	OutlierZThreshold  float64 `yaml:"outlier_z_threshold" mapstructure:"outlier_z_threshold"`
	MaxOutlierFraction float64 `yaml:"max_outlier_fraction" mapstructure:"max_outlier_fraction"`
	MinOutlierValues   int     `yaml:"min_outlier_values" mapstructure:"min_outlier_values"`

	VendorGuidanceMinVendors int `yaml:"vendor_guidance_min_vendors" mapstructure:"vendor_guidance_min_vendors"`
	VendorGuidanceMinRows    int `yaml:"vendor_guidance_min_rows" mapstructure:"vendor_guidance_min_rows"`
}

// IngestConfig configures export file parsing.
type IngestConfig struct {
	SkipRows   int    `yaml:"skip_rows" mapstructure:"skip_rows"`
	SheetName  string `yaml:"sheet_name" mapstructure:"sheet_name"`
	SheetIndex int    `yaml:"sheet_index" mapstructure:"sheet_index"`
}

// BatchConfig configures concurrent scoring of multiple files.
type BatchConfig struct {
	MaxConcurrentFiles int `yaml:"max_concurrent_files" mapstructure:"max_concurrent_files"`
}

// ServerConfig configures the scoring HTTP server.
type ServerConfig struct {
	Port              int     `yaml:"port" mapstructure:"port"`
	UploadRatePerSec  float64 `yaml:"upload_rate_per_sec" mapstructure:"upload_rate_per_sec"`
	UploadBurst       int     `yaml:"upload_burst" mapstructure:"upload_burst"`
	MaxUploadBytes    int64   `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
	ShutdownGraceSecs int     `yaml:"shutdown_grace_secs" mapstructure:"shutdown_grace_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CALIBER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.path", "caliber.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.upload_rate_per_sec", 2)
	v.SetDefault("server.upload_burst", 5)
	v.SetDefault("server.max_upload_bytes", 64<<20)
	v.SetDefault("server.shutdown_grace_secs", 10)
	v.SetDefault("batch.max_concurrent_files", 4)
	v.SetDefault("ingest.skip_rows", 0)
	v.SetDefault("ingest.sheet_index", 0)
	v.SetDefault("scoring.good_threshold", 70)
	v.SetDefault("scoring.moderate_threshold", 40)
	v.SetDefault("scoring.whitelist_percentile", 0.75)
	v.SetDefault("scoring.blacklist_percentile", 0.25)
	v.SetDefault("scoring.trade_desk_impression_floor", 250)
	v.SetDefault("scoring.mobile_app_impression_floor", 10)
	v.SetDefault("scoring.pulsepoint_impression_floor", 250)
	v.SetDefault("scoring.pulsepoint_impression_share", 0.0005)
	v.SetDefault("scoring.outlier_z_threshold", 4.5)
	v.SetDefault("scoring.max_outlier_fraction", 0.20)
	v.SetDefault("scoring.min_outlier_values", 10)
	v.SetDefault("scoring.vendor_guidance_min_vendors", 10)
	v.SetDefault("scoring.vendor_guidance_min_rows", 5)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

// Package config loads the application configuration from config.yaml and
// PANEL_-prefixed environment variables, and owns global logger setup.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/panel-cli/internal/ingest"
	"github.com/sells-group/panel-cli/internal/panel"
	"github.com/sells-group/panel-cli/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Ingest     ingest.CSVConfig `yaml:"ingest" mapstructure:"ingest"`
	Panel      panel.Config     `yaml:"panel" mapstructure:"panel"`
	Export     ExportConfig     `yaml:"export" mapstructure:"export"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// ExportConfig holds default output paths for the export command.
type ExportConfig struct {
	PanelPath   string `yaml:"panel_path" mapstructure:"panel_path"`
	QualityPath string `yaml:"quality_path" mapstructure:"quality_path"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures run health checks served alongside the
// status API. Alerts are sent only when a webhook URL is set.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	DropRateThreshold    float64 `yaml:"drop_rate_threshold" mapstructure:"drop_rate_threshold"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
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
	v.SetEnvPrefix("PANEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "panel.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("export.panel_path", "panel.csv")
	v.SetDefault("export.quality_path", "quality.xlsx")
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.drop_rate_threshold", 0.25)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)

	def := panel.DefaultConfig()
	v.SetDefault("panel.horizon", def.Horizon)
	v.SetDefault("panel.max_report_age_days", def.MaxReportAgeDays)
	v.SetDefault("panel.imputation", def.Imputation)
	v.SetDefault("panel.neutral_value", def.NeutralValue)
	v.SetDefault("panel.workers", def.Workers)
	v.SetDefault("panel.winsorize.lower_pct", def.Winsorize.LowerPct)
	v.SetDefault("panel.winsorize.upper_pct", def.Winsorize.UpperPct)
	v.SetDefault("panel.winsorize.min_sample", def.Winsorize.MinSample)
	v.SetDefault("panel.features.roll_windows", def.Features.RollWindows)
	v.SetDefault("panel.features.roll_min_periods", def.Features.RollMinPeriods)
	v.SetDefault("panel.features.momentum_windows", def.Features.MomentumWindows)
	v.SetDefault("panel.features.vol_windows", def.Features.VolWindows)
	v.SetDefault("panel.features.vol_min_periods", def.Features.VolMinPeriods)

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

// Validate checks that the configuration is usable for the given command
// mode. Each mode has its own required surface; errors list every missing
// or invalid field at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	requireStore := func() {
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	}

	switch mode {
	case "build":
		requireStore()
		if c.Ingest.SecuritiesPath == "" || c.Ingest.ReportsPath == "" ||
			c.Ingest.PricesPath == "" || c.Ingest.BenchmarkPath == "" {
			problems = append(problems, "ingest: all four input paths are required")
		}
		if err := c.Panel.Validate(); err != nil {
			problems = append(problems, err.Error())
		}
	case "export", "runs":
		requireStore()
	case "serve":
		requireStore()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
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

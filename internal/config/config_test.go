package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chtemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chtemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "panel.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "panel.csv", cfg.Export.PanelPath)

	assert.Equal(t, 63, cfg.Panel.Horizon)
	assert.Equal(t, 400, cfg.Panel.MaxReportAgeDays)
	assert.Equal(t, "flag-only", cfg.Panel.Imputation)
	assert.InDelta(t, 1.0, cfg.Panel.Winsorize.LowerPct, 0.001)
	assert.InDelta(t, 99.0, cfg.Panel.Winsorize.UpperPct, 0.001)
	assert.Equal(t, 20, cfg.Panel.Winsorize.MinSample)
	assert.Equal(t, []int{21, 63, 126, 252}, cfg.Panel.Features.RollWindows)
	assert.Equal(t, 10, cfg.Panel.Features.RollMinPeriods)

	assert.Empty(t, cfg.Monitoring.WebhookURL)
	assert.InDelta(t, 0.5, cfg.Monitoring.FailureRateThreshold, 0.001)
	assert.InDelta(t, 0.25, cfg.Monitoring.DropRateThreshold, 0.001)
	assert.Equal(t, 24, cfg.Monitoring.LookbackWindowHours)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chtemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/panel
log:
  level: debug
  format: console
server:
  port: 9090
panel:
  horizon: 21
  winsorize:
    lower_pct: 5
    upper_pct: 95
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 21, cfg.Panel.Horizon)
	assert.InDelta(t, 5.0, cfg.Panel.Winsorize.LowerPct, 0.001)
	// Defaults still apply for unset values
	assert.Equal(t, 400, cfg.Panel.MaxReportAgeDays)
	assert.Equal(t, 20, cfg.Panel.Winsorize.MinSample)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chtemp(t)

	yaml := `
store:
  driver: postgres
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("PANEL_STORE_DRIVER", "sqlite")
	t.Setenv("PANEL_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chtemp(t)

	t.Setenv("PANEL_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// loadedDefaults returns the default config for validation tests.
func loadedDefaults(t *testing.T) *Config {
	t.Helper()
	chtemp(t)
	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestValidateBuild_AllPresent(t *testing.T) {
	cfg := loadedDefaults(t)
	cfg.Ingest.SecuritiesPath = "securities.csv"
	cfg.Ingest.ReportsPath = "reports.csv"
	cfg.Ingest.PricesPath = "prices.csv"
	cfg.Ingest.BenchmarkPath = "benchmark.csv"

	assert.NoError(t, cfg.Validate("build"))
}

func TestValidateBuild_MissingInputs(t *testing.T) {
	cfg := loadedDefaults(t)

	err := cfg.Validate("build")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input paths are required")
}

func TestValidateBuild_BadPanelConfig(t *testing.T) {
	cfg := loadedDefaults(t)
	cfg.Ingest.SecuritiesPath = "securities.csv"
	cfg.Ingest.ReportsPath = "reports.csv"
	cfg.Ingest.PricesPath = "prices.csv"
	cfg.Ingest.BenchmarkPath = "benchmark.csv"
	cfg.Panel.Horizon = -1

	err := cfg.Validate("build")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "horizon")
}

func TestValidateStoreDriver(t *testing.T) {
	cfg := loadedDefaults(t)
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := loadedDefaults(t)
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := loadedDefaults(t)
	err := cfg.Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

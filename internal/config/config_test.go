package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
storage:
  data_dir: "/tmp/gsd/data"
  sqlite_path: "/tmp/gsd/runs.db"
logging:
  level: "debug"
  format: "json"
fetch:
  call_delay: 250ms
  max_attempts: 6
spot:
  start_date: "2022-01-01"
options:
  moneyness:
    atm_band: 1
    deep_band: 4
  underlyings:
    - name: NIFTY
      match_name: NIFTY_50
      short_name: nifty
      segment: NSE_FNO
      strike_step: 50
stocks:
  max_workers: 4
  symbols: [RELIANCE, TCS]
index_match:
  NIFTY_50:
    preferred: ["NIFTY 50"]
    exchange: NSE
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	// -- Storage --
	assert.Equal(t, "/tmp/gsd/data", cfg.Storage.DataDir)
	assert.Equal(t, "/tmp/gsd/runs.db", cfg.Storage.SQLitePath)

	// -- Logging --
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	// -- Fetch: set values override, unset keep defaults --
	assert.Equal(t, 250*time.Millisecond, cfg.Fetch.CallDelay)
	assert.Equal(t, 6, cfg.Fetch.MaxAttempts)
	assert.Equal(t, 5, cfg.Fetch.RateLimitAttempts)

	// -- Datasets --
	assert.Equal(t, "2022-01-01", cfg.Spot.StartDate)
	assert.Equal(t, 90, cfg.Spot.WindowDays)
	assert.Len(t, cfg.Spot.Indices, 2)
	assert.Equal(t, MoneynessConfig{ATMBand: 1, DeepBand: 4}, cfg.Options.Moneyness)
	require.Len(t, cfg.Options.Underlyings, 1)
	assert.Equal(t, 50, cfg.Options.Underlyings[0].StrikeStep)
	assert.Equal(t, []int{1, 2, 3}, cfg.Options.ExpiryCodes)
	assert.Equal(t, 4, cfg.Stocks.MaxWorkers)
	assert.Equal(t, []string{"RELIANCE", "TCS"}, cfg.Stocks.Symbols)

	// -- Index match: map entries merge with defaults --
	assert.Contains(t, cfg.IndexMatch, "SENSEX")
	assert.Equal(t, []string{"NIFTY 50"}, cfg.IndexMatch["NIFTY_50"].Preferred)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
storage:
  data_dir: "/original/data"
dhan:
  access_token: "yaml-token"
`)

	t.Setenv("DHAN_ACCESS_TOKEN", "env-token")
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Dhan.AccessToken)
	assert.Equal(t, "/env/data", cfg.Storage.DataDir)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notify.KafkaBrokers)
	// Untouched by env: default survives.
	assert.Equal(t, "https://api.dhan.co/v2", cfg.Dhan.BaseURL)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Len(t, cfg.Stocks.Symbols, 106)
	assert.Equal(t, "dhan", cfg.Stocks.Provider)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Options.Moneyness = MoneynessConfig{ATMBand: 3, DeepBand: 2}
	cfg.Stocks.Provider = "yahoo"
	cfg.Spot.StartDate = "01/01/2021"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "options.moneyness")
	assert.Contains(t, err.Error(), "stocks.provider")
	assert.Contains(t, err.Error(), "spot.start_date")
}

func TestStartDate(t *testing.T) {
	loc := time.FixedZone("IST", 19800)
	d, err := StartDate("2025-01-01", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, loc), d)
}

func TestLoadShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "get-stocks-data.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.Fetch.CallDelay)
	assert.Len(t, cfg.Options.Underlyings, 2)
	assert.Len(t, cfg.Stocks.Symbols, 106)
	assert.Contains(t, cfg.Holidays, "2025-10-02")
	assert.Empty(t, cfg.Notify.KafkaBrokers)
}

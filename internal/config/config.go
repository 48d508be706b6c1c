package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the collector.
type Config struct {
	Storage    Storage                   `yaml:"storage"`
	Dhan       Dhan                      `yaml:"dhan"`
	Alpaca     Alpaca                    `yaml:"alpaca"`
	Logging    Logging                   `yaml:"logging"`
	Fetch      Fetch                     `yaml:"fetch"`
	Spot       SpotConfig                `yaml:"spot"`
	Options    OptionsConfig             `yaml:"options"`
	Stocks     StocksConfig              `yaml:"stocks"`
	IndexMatch map[string]IndexMatchRule `yaml:"index_match" env:"-"`
	Holidays   []string                  `yaml:"holidays" env:"-"`
	Lock       Lock                      `yaml:"lock"`
	Notify     Notify                    `yaml:"notify"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir" env:"DATA_DIR"`
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH"`
}

// Dhan holds the upstream endpoint and credential.
type Dhan struct {
	BaseURL           string        `yaml:"base_url" env:"DHAN_BASE_URL"`
	InstrumentListURL string        `yaml:"instrument_list_url" env:"DHAN_INSTRUMENT_LIST_URL"`
	AccessToken       string        `yaml:"access_token" env:"DHAN_ACCESS_TOKEN"`
	Timeout           time.Duration `yaml:"timeout" env:"DHAN_TIMEOUT"`
}

// Alpaca holds credentials for the optional Alpaca stocks source.
type Alpaca struct {
	APIKey    string `yaml:"api_key" env:"APCA_API_KEY_ID"`
	APISecret string `yaml:"api_secret" env:"APCA_API_SECRET_KEY"`
	DataURL   string `yaml:"data_url" env:"ALPACA_DATA_URL"`
	Feed      string `yaml:"feed"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
	Dir    string `yaml:"dir" env:"LOG_DIR"`
}

// Fetch controls pacing and retry of upstream calls.
type Fetch struct {
	CallDelay         time.Duration `yaml:"call_delay" env:"FETCH_CALL_DELAY"`
	CallTimeout       time.Duration `yaml:"call_timeout"`
	MaxAttempts       int           `yaml:"max_attempts" env:"FETCH_MAX_ATTEMPTS"`
	BaseBackoff       time.Duration `yaml:"base_backoff"`
	RateLimitAttempts int           `yaml:"rate_limit_attempts"`
	RateLimitBackoff  time.Duration `yaml:"rate_limit_backoff"`
	MaxRows           int           `yaml:"max_rows"`
}

// IndexConfig describes one index series.
type IndexConfig struct {
	Name       string `yaml:"name"`       // key into IndexMatch, e.g. NIFTY_50
	ShortName  string `yaml:"short_name"` // directory and file symbol, e.g. nifty
	SecurityID string `yaml:"security_id"`
}

// SpotConfig controls the spot index dataset.
type SpotConfig struct {
	StartDate  string        `yaml:"start_date" env:"SPOT_START_DATE"`
	WindowDays int           `yaml:"window_days"`
	Segment    string        `yaml:"segment"`
	Indices    []IndexConfig `yaml:"indices" env:"-"`
}

// UnderlyingConfig describes one options underlying.
type UnderlyingConfig struct {
	Name       string `yaml:"name"`       // e.g. NIFTY
	MatchName  string `yaml:"match_name"` // key into IndexMatch
	ShortName  string `yaml:"short_name"` // directory, e.g. nifty
	Segment    string `yaml:"segment"`    // NSE_FNO or BSE_FNO
	StrikeStep int    `yaml:"strike_step"`
	SecurityID string `yaml:"security_id"`
}

// MoneynessConfig holds the moneyness threshold bands, in strike steps.
type MoneynessConfig struct {
	ATMBand  int `yaml:"atm_band"`
	DeepBand int `yaml:"deep_band"`
}

// OptionsConfig controls the rolling options dataset.
type OptionsConfig struct {
	StartDate    string   `yaml:"start_date" env:"OPTIONS_START_DATE"`
	WindowDays   int      `yaml:"window_days"`
	ExpiryFlags  []string `yaml:"expiry_flags" env:"-"`
	ExpiryCodes  []int    `yaml:"expiry_codes" env:"-"`
	StrikeRange  int      `yaml:"strike_range"`
	SpotFallback bool     `yaml:"spot_fallback"`
	// SpotTolerance lets a quote use the latest earlier spot point when no
	// point matches its timestamp exactly. Zero requires an exact match.
	SpotTolerance time.Duration      `yaml:"spot_tolerance"`
	Moneyness     MoneynessConfig    `yaml:"moneyness"`
	Underlyings   []UnderlyingConfig `yaml:"underlyings" env:"-"`
}

// StocksConfig controls the equities dataset.
type StocksConfig struct {
	StartDate  string   `yaml:"start_date" env:"STOCKS_START_DATE"`
	WindowDays int      `yaml:"window_days"`
	MaxWorkers int      `yaml:"max_workers" env:"STOCKS_MAX_WORKERS"`
	Provider   string   `yaml:"provider" env:"STOCKS_PROVIDER"` // dhan or alpaca; alpaca needs its own symbols
	Exchange   string   `yaml:"exchange"`
	Segment    string   `yaml:"segment"`
	Symbols    []string `yaml:"symbols" env:"-"`
}

// IndexMatchRule selects an index row from the scrip master.
type IndexMatchRule struct {
	Preferred []string `yaml:"preferred"`
	Fallback  []string `yaml:"fallback"`
	Exclude   []string `yaml:"exclude"`
	Exchange  string   `yaml:"exchange"`
}

// Lock configures per-dataset run serialisation.
type Lock struct {
	RedisAddr string        `yaml:"redis_addr" env:"LOCK_REDIS_ADDR"`
	TTL       time.Duration `yaml:"ttl"`
}

// Notify configures dataset-updated events.
type Notify struct {
	KafkaBrokers []string `yaml:"kafka_brokers" env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `yaml:"kafka_topic" env:"KAFKA_TOPIC"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path over the
// defaults, and then applies environment variable overrides. An empty path
// loads the defaults only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the pipeline cannot run without.
func (c *Config) Validate() error {
	var errs []error

	if c.Storage.DataDir == "" {
		errs = append(errs, errors.New("storage.data_dir is required"))
	}
	for name, d := range map[string]string{
		"spot.start_date":    c.Spot.StartDate,
		"options.start_date": c.Options.StartDate,
		"stocks.start_date":  c.Stocks.StartDate,
	} {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if c.Spot.WindowDays <= 0 || c.Options.WindowDays <= 0 || c.Stocks.WindowDays <= 0 {
		errs = append(errs, errors.New("window_days must be positive"))
	}
	if c.Fetch.MaxAttempts <= 0 || c.Fetch.RateLimitAttempts <= 0 {
		errs = append(errs, errors.New("fetch attempts must be positive"))
	}
	m := c.Options.Moneyness
	if m.ATMBand < 0 || (m.DeepBand != 0 && m.DeepBand <= m.ATMBand) {
		errs = append(errs, fmt.Errorf("options.moneyness: need 0 <= atm_band < deep_band (or deep_band 0), got %d/%d", m.ATMBand, m.DeepBand))
	}
	for _, u := range c.Options.Underlyings {
		if u.StrikeStep <= 0 {
			errs = append(errs, fmt.Errorf("options underlying %s: strike_step must be positive", u.Name))
		}
	}
	switch c.Stocks.Provider {
	case "dhan", "alpaca":
	default:
		errs = append(errs, fmt.Errorf("stocks.provider %q: want dhan or alpaca", c.Stocks.Provider))
	}

	return errors.Join(errs...)
}

// StartDate parses a YYYY-MM-DD config date as midnight in loc.
func StartDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", s, loc)
}

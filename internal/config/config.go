// Package config loads the pipeline configuration from the environment and
// an optional per-source YAML overrides file.
//
// Configuration is read once at startup, validated, and passed explicitly
// into every component constructor. Nothing in this package keeps global
// state.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names consumed by LoadConfig.
const (
	EnvDBPath        = "MACROSYNC_DB_PATH"
	EnvBronzeDir     = "MACROSYNC_BRONZE_DIR"
	EnvSources       = "MACROSYNC_SOURCES"
	EnvSourcesFile   = "MACROSYNC_SOURCES_FILE"
	EnvIncremental   = "MACROSYNC_INCREMENTAL"
	EnvMaxRetries    = "MACROSYNC_MAX_RETRIES"
	EnvRetryBaseWait = "MACROSYNC_RETRY_BASE_WAIT"
	EnvHTTPTimeout   = "MACROSYNC_HTTP_TIMEOUT"
	EnvLogLevel      = "MACROSYNC_LOG_LEVEL"
	EnvFredAPIKey    = "FRED_API_KEY"
	EnvEIAToken      = "EIA_TOKEN"
)

const (
	defaultDBPath      = "macrosync.duckdb"
	defaultBronzeDir   = "data/bronze"
	defaultSourcesFile = "macrosync.yaml"
	defaultMaxRetries  = 3
	defaultBaseWait    = 2 * time.Second
	defaultHTTPTimeout = 30 * time.Second

	// defaultStartDate is the fallback start for sources without their own
	// default: effectively "all available history".
	defaultStartDate = "1900-01-01"

	// FRED publishes a 120 requests per 60 seconds contract; every other
	// source gets the same conservative window unless overridden.
	defaultRateLimit       = 120
	defaultRateWindowSecs  = 60
	maskedKeyVisiblePrefix = 4
)

var (
	// ErrMissingCredential indicates a source is enabled but its API
	// credential environment variable is unset.
	ErrMissingCredential = errors.New("missing credential")

	// ErrInvalidConfig indicates the loaded configuration failed validation.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// defaultStartDates carries the per-source default series start used when an
// identifier has no configured start of its own.
var defaultStartDates = map[string]string{
	"yahoo":       "1990-01-01",
	"bkr":         "2000-01-01",
	"finra":       "2010-01-01",
	"silverblatt": "2000-01-01",
	"usda":        "2000-01-01",
}

type (
	// SourceSettings is one source's optional override block from the YAML
	// sources file.
	SourceSettings struct {
		// Enabled overrides whether the source runs. Nil means "use the
		// default", which is enabled whenever credentials allow.
		Enabled *bool `yaml:"enabled"`

		// StartDate overrides the source's default series start (ISO form).
		StartDate string `yaml:"start_date"`

		// RateLimit and RateWindowSeconds override the source's request
		// contract. Zero means "use the default".
		RateLimit         int `yaml:"rate_limit"`
		RateWindowSeconds int `yaml:"rate_window_seconds"`
	}

	// Config is the full pipeline configuration, assembled from the
	// environment plus the optional YAML sources file.
	Config struct {
		// DBPath locates the staging DuckDB database file.
		DBPath string

		// BronzeDir is the root of the bronze snapshot tree.
		BronzeDir string

		// Sources is the allow-list from MACROSYNC_SOURCES. Empty means all
		// registered sources run.
		Sources []string

		// Incremental selects watermark-filtered loading; false reloads
		// everything the sources return.
		Incremental bool

		// MaxRetries is the total fetch attempt budget per request.
		MaxRetries int

		// RetryBaseWait seeds the exponential backoff schedule.
		RetryBaseWait time.Duration

		// HTTPTimeout bounds every outbound HTTP request.
		HTTPTimeout time.Duration

		// LogLevel is the minimum level emitted by the JSON logger.
		LogLevel slog.Level

		// FredAPIKey and EIAToken are the source credentials. Empty disables
		// the respective source unless it was explicitly enabled.
		FredAPIKey string
		EIAToken   string

		// SourceSettings holds the per-source YAML overrides, keyed by
		// lowercase source name.
		SourceSettings map[string]SourceSettings
	}
)

// LoadConfig reads the environment and the optional YAML sources file and
// returns a validated configuration.
func LoadConfig(logger *slog.Logger) (*Config, error) {
	cfg := &Config{
		DBPath:         GetEnvStr(EnvDBPath, defaultDBPath),
		BronzeDir:      GetEnvStr(EnvBronzeDir, defaultBronzeDir),
		Sources:        ParseCommaSeparatedList(GetEnvStr(EnvSources, "")),
		Incremental:    GetEnvBool(EnvIncremental, true),
		MaxRetries:     GetEnvInt(EnvMaxRetries, defaultMaxRetries),
		RetryBaseWait:  GetEnvDuration(EnvRetryBaseWait, defaultBaseWait),
		HTTPTimeout:    GetEnvDuration(EnvHTTPTimeout, defaultHTTPTimeout),
		LogLevel:       GetEnvLogLevel(EnvLogLevel, slog.LevelInfo),
		FredAPIKey:     GetEnvStr(EnvFredAPIKey, ""),
		EIAToken:       GetEnvStr(EnvEIAToken, ""),
		SourceSettings: map[string]SourceSettings{},
	}

	path := GetEnvStr(EnvSourcesFile, defaultSourcesFile)

	settings, err := loadSourceSettings(path, logger)
	if err != nil {
		return nil, err
	}

	cfg.SourceSettings = settings

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadSourceSettings reads the YAML overrides file. A missing file is not an
// error (defaults apply); an unreadable or malformed file is logged as a
// warning and ignored, so a bad overrides file never blocks a run.
func loadSourceSettings(path string, logger *slog.Logger) (map[string]SourceSettings, error) {
	settings := map[string]SourceSettings{}

	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator's own environment
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug("sources file not found, using defaults", slog.String("path", path))

			return settings, nil
		}

		logger.Warn("failed to read sources file, using defaults",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return settings, nil
	}

	if len(data) == 0 {
		return settings, nil
	}

	var file struct {
		Sources map[string]SourceSettings `yaml:"sources"`
	}

	if err := yaml.Unmarshal(data, &file); err != nil {
		logger.Warn("failed to parse sources file, using defaults",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return settings, nil
	}

	for name, s := range file.Sources {
		settings[strings.ToLower(strings.TrimSpace(name))] = s
	}

	return settings, nil
}

// Validate checks the configuration for values no run could succeed with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("%w: database path cannot be empty", ErrInvalidConfig)
	}

	if strings.TrimSpace(c.BronzeDir) == "" {
		return fmt.Errorf("%w: bronze directory cannot be empty", ErrInvalidConfig)
	}

	if c.MaxRetries < 1 {
		return fmt.Errorf("%w: max retries must be at least 1, got %d", ErrInvalidConfig, c.MaxRetries)
	}

	if c.RetryBaseWait <= 0 {
		return fmt.Errorf("%w: retry base wait must be positive, got %v", ErrInvalidConfig, c.RetryBaseWait)
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("%w: HTTP timeout must be positive, got %v", ErrInvalidConfig, c.HTTPTimeout)
	}

	for name, s := range c.SourceSettings {
		if s.StartDate == "" {
			continue
		}

		if _, err := time.Parse("2006-01-02", s.StartDate); err != nil {
			return fmt.Errorf("%w: source %s start date %q is not an ISO date", ErrInvalidConfig, name, s.StartDate)
		}
	}

	return nil
}

// Settings returns the YAML override block for a source, zero-valued when the
// file declared none.
func (c *Config) Settings(source string) SourceSettings {
	return c.SourceSettings[strings.ToLower(strings.TrimSpace(source))]
}

// SourceEnabled reports whether a source should run, and whether that was an
// explicit YAML decision rather than the default.
func (c *Config) SourceEnabled(source string) (enabled, explicit bool) {
	s := c.Settings(source)
	if s.Enabled == nil {
		return true, false
	}

	return *s.Enabled, true
}

// StartDate resolves a source's default series start: the YAML override when
// present, the source's registered default otherwise, and the global
// "all history" floor as the last resort. The returned string is always a
// valid ISO date because Validate checked the overrides.
func (c *Config) StartDate(source string) string {
	if s := c.Settings(source); s.StartDate != "" {
		return s.StartDate
	}

	if d, ok := defaultStartDates[strings.ToLower(strings.TrimSpace(source))]; ok {
		return d
	}

	return defaultStartDate
}

// RateLimit resolves a source's request contract as (max requests, window).
func (c *Config) RateLimit(source string) (int, time.Duration) {
	s := c.Settings(source)

	limit := s.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}

	window := time.Duration(s.RateWindowSeconds) * time.Second
	if window <= 0 {
		window = defaultRateWindowSecs * time.Second
	}

	return limit, window
}

// LogValue renders the configuration for the startup log line with
// credentials masked.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("db_path", c.DBPath),
		slog.String("bronze_dir", c.BronzeDir),
		slog.String("sources", strings.Join(c.Sources, ",")),
		slog.Bool("incremental", c.Incremental),
		slog.Int("max_retries", c.MaxRetries),
		slog.Duration("retry_base_wait", c.RetryBaseWait),
		slog.Duration("http_timeout", c.HTTPTimeout),
		slog.String("log_level", c.LogLevel.String()),
		slog.String("fred_api_key", MaskAPIKey(c.FredAPIKey)),
		slog.String("eia_token", MaskAPIKey(c.EIAToken)),
	)
}

// MaskAPIKey masks a credential for logging, keeping only a short prefix so
// operators can tell which key is loaded without exposing it.
func MaskAPIKey(key string) string {
	if key == "" {
		return ""
	}

	if len(key) <= maskedKeyVisiblePrefix {
		return strings.Repeat("*", len(key))
	}

	return key[:maskedKeyVisiblePrefix] + strings.Repeat("*", len(key)-maskedKeyVisiblePrefix)
}

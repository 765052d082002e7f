package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"holidaysjp/internal/fsutil"
	"holidaysjp/internal/model"
)

// Defaults used both for the first-run config file and for Normalize.
const (
	DefaultSourceURL              = "https://www8.cao.go.jp/chosei/shukujitsu/syukujitsu.csv"
	DefaultCacheFile              = "./data/holidays.json"
	DefaultMaxAgeHours            = 168 // one week
	DefaultETagCheckIntervalHours = 24
	DefaultDownloadTimeoutSeconds = 30
	DefaultProbeTimeoutSeconds    = 10
	DefaultUserAgent              = "holidaysjp/1.0"
	DefaultListen                 = "127.0.0.1:8080"
	DefaultRefreshCron            = "0 * * * *"
	DefaultLogLevel               = "info"
)

// HolidayDataConfig describes where holiday data comes from and where the
// local snapshot lives.
type HolidayDataConfig struct {
	// SourceURL is the government-published CSV endpoint.
	SourceURL string `yaml:"source_url" json:"source_url"`
	// CacheFile is the path of the JSON snapshot.
	CacheFile string `yaml:"cache_file" json:"cache_file"`
}

// CacheConfig controls the refresh policy.
type CacheConfig struct {
	Strategy               Strategy `yaml:"strategy" json:"strategy"`
	MaxAgeHours            int      `yaml:"max_age_hours" json:"max_age_hours"`
	ETagCheckIntervalHours int      `yaml:"etag_check_interval_hours" json:"etag_check_interval_hours"`
	// ForceRefreshOnStartup bypasses all freshness logic on Initialize.
	ForceRefreshOnStartup bool `yaml:"force_refresh_on_startup" json:"force_refresh_on_startup"`
}

// HTTPConfig bounds remote calls. The probe timeout must be strictly
// shorter than the download timeout.
type HTTPConfig struct {
	DownloadTimeoutSeconds int    `yaml:"download_timeout_seconds" json:"download_timeout_seconds"`
	ProbeTimeoutSeconds    int    `yaml:"probe_timeout_seconds" json:"probe_timeout_seconds"`
	UserAgent              string `yaml:"user_agent" json:"user_agent"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// ServerConfig is only used by the serve command.
type ServerConfig struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`
	// RefreshCron is a standard 5-field cron spec for the background
	// refresher (e.g. "0 * * * *").
	RefreshCron string `yaml:"refresh" json:"refresh"`
	// BasicAuth, if set with both fields, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	HolidayData HolidayDataConfig `yaml:"holiday_data" json:"holiday_data"`
	Cache       CacheConfig       `yaml:"cache" json:"cache"`
	HTTP        HTTPConfig        `yaml:"http" json:"http"`
	Server      ServerConfig      `yaml:"server" json:"server"`
	LogLevel    string            `yaml:"log_level" json:"log_level"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		HolidayData: HolidayDataConfig{
			SourceURL: DefaultSourceURL,
			CacheFile: DefaultCacheFile,
		},
		Cache: CacheConfig{
			Strategy:               StrategyHybrid,
			MaxAgeHours:            DefaultMaxAgeHours,
			ETagCheckIntervalHours: DefaultETagCheckIntervalHours,
			ForceRefreshOnStartup:  false,
		},
		HTTP: HTTPConfig{
			DownloadTimeoutSeconds: DefaultDownloadTimeoutSeconds,
			ProbeTimeoutSeconds:    DefaultProbeTimeoutSeconds,
			UserAgent:              DefaultUserAgent,
		},
		Server: ServerConfig{
			Listen:      DefaultListen,
			RefreshCron: DefaultRefreshCron,
		},
		LogLevel: DefaultLogLevel,
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly. It never overrides a
// value that was set, even an invalid one; Validate reports those.
func (c *Config) Normalize() {
	if c.HolidayData.SourceURL == "" {
		c.HolidayData.SourceURL = DefaultSourceURL
	}
	if c.HolidayData.CacheFile == "" {
		c.HolidayData.CacheFile = DefaultCacheFile
	}
	if c.Cache.Strategy == "" {
		c.Cache.Strategy = StrategyHybrid
	}
	if c.Cache.MaxAgeHours == 0 {
		c.Cache.MaxAgeHours = DefaultMaxAgeHours
	}
	if c.Cache.ETagCheckIntervalHours == 0 {
		c.Cache.ETagCheckIntervalHours = DefaultETagCheckIntervalHours
	}
	if c.HTTP.DownloadTimeoutSeconds == 0 {
		c.HTTP.DownloadTimeoutSeconds = DefaultDownloadTimeoutSeconds
	}
	if c.HTTP.ProbeTimeoutSeconds == 0 {
		c.HTTP.ProbeTimeoutSeconds = DefaultProbeTimeoutSeconds
	}
	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = DefaultUserAgent
	}
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Server.RefreshCron == "" {
		c.Server.RefreshCron = DefaultRefreshCron
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// Validate reports the first invalid option as an error wrapping
// model.ErrConfig.
func (c *Config) Validate() error {
	u, err := url.Parse(c.HolidayData.SourceURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: holiday_data.source_url %q must be an http(s) URL", model.ErrConfig, c.HolidayData.SourceURL)
	}
	if strings.TrimSpace(c.HolidayData.CacheFile) == "" {
		return fmt.Errorf("%w: holiday_data.cache_file is empty", model.ErrConfig)
	}
	if !c.Cache.Strategy.Valid() {
		return fmt.Errorf("%w: cache.strategy %q (want one of %s)", model.ErrConfig, c.Cache.Strategy, strategyList())
	}
	if c.Cache.MaxAgeHours < 0 {
		return fmt.Errorf("%w: cache.max_age_hours must not be negative, got %d", model.ErrConfig, c.Cache.MaxAgeHours)
	}
	if c.Cache.ETagCheckIntervalHours < 0 {
		return fmt.Errorf("%w: cache.etag_check_interval_hours must not be negative, got %d", model.ErrConfig, c.Cache.ETagCheckIntervalHours)
	}
	if c.HTTP.DownloadTimeoutSeconds <= 0 || c.HTTP.ProbeTimeoutSeconds <= 0 {
		return fmt.Errorf("%w: http timeouts must be positive", model.ErrConfig)
	}
	if c.HTTP.ProbeTimeoutSeconds >= c.HTTP.DownloadTimeoutSeconds {
		return fmt.Errorf("%w: http.probe_timeout_seconds (%d) must be shorter than download_timeout_seconds (%d)",
			model.ErrConfig, c.HTTP.ProbeTimeoutSeconds, c.HTTP.DownloadTimeoutSeconds)
	}
	if _, err := cron.ParseStandard(c.Server.RefreshCron); err != nil {
		return fmt.Errorf("%w: server.refresh %q: %w", model.ErrConfig, c.Server.RefreshCron, err)
	}
	return nil
}

// DownloadTimeout returns the download timeout as a duration.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.HTTP.DownloadTimeoutSeconds) * time.Second
}

// ProbeTimeout returns the probe timeout as a duration.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.HTTP.ProbeTimeoutSeconds) * time.Second
}

// BasicAuthEnabled reports whether both basic auth fields are set.
func (c *Config) BasicAuthEnabled() bool {
	return c.Server.BasicAuth != nil && c.Server.BasicAuth.Username != "" && c.Server.BasicAuth.Password != ""
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults and validate
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: config path is empty", model.ErrConfig)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("%w: read %s: %w", model.ErrConfig, path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", model.ErrConfig, path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the given configuration to path atomically with 0600
// permissions, creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return fmt.Errorf("%w: config path is empty", model.ErrConfig)
	}
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", model.ErrConfig)
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("%w: marshal: %w", model.ErrConfig, err)
	}

	if err := fsutil.WriteFileAtomic(path, data, 0o600, 0o700, ".holidaysjp-config-*.tmp"); err != nil {
		return fmt.Errorf("%w: write %s: %w", model.ErrConfig, path, err)
	}
	return nil
}

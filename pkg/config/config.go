package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	API           APIConfig           `yaml:"api"`
	Polling       PollingConfig       `yaml:"polling"`
	Progress      ProgressConfig      `yaml:"progress"`
	Cache         CacheConfig         `yaml:"cache"`
	Output        OutputConfig        `yaml:"output"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// APIConfig contains research backend configuration
type APIConfig struct {
	BaseURL        string `yaml:"base_url"`
	Timeout        string `yaml:"timeout"`
	DigestPageSize int    `yaml:"digest_page_size"`
}

// PollingConfig controls the task status poller
type PollingConfig struct {
	Interval               string `yaml:"interval"`
	FollowUpDelay          string `yaml:"follow_up_delay"`
	MaxConsecutiveFailures int    `yaml:"max_consecutive_failures"`
}

// ProgressConfig controls the simulated progress display
type ProgressConfig struct {
	StepInterval string `yaml:"step_interval"`
}

// CacheConfig contains listing cache configuration
type CacheConfig struct {
	Type string `yaml:"type"` // "memory", "redis", "none"
	URL  string `yaml:"url,omitempty"`
	TTL  string `yaml:"ttl"`
}

// OutputConfig controls terminal rendering
type OutputConfig struct {
	Style       string `yaml:"style"` // "auto", "dark", "light", "notty"
	Width       int    `yaml:"width"`
	Plain       bool   `yaml:"plain"`
	DownloadDir string `yaml:"download_dir"`
}

// ObservabilityConfig contains observability configuration
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// TracingConfig contains tracing configuration
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// MetricsConfig contains metrics configuration
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	// Port serves /metrics while a command runs; 0 disables the endpoint
	Port int `yaml:"port,omitempty"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json", "console"
	Output string `yaml:"output"` // "stderr", "stdout", "file"
	File   string `yaml:"file,omitempty"`
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyDefaults()
	config.overrideFromEnv()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// LoadOrDefault loads configuration from a file or returns default config.
// Environment overrides apply in both cases.
func LoadOrDefault(path string) *Config {
	config, err := Load(path)
	if err != nil {
		config = Default()
		config.overrideFromEnv()
		if err := config.validate(); err != nil {
			log.Printf("Ignoring environment overrides: %v", err)
			config = Default()
		}
	}
	return config
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        "http://localhost:8000",
			Timeout:        "30s",
			DigestPageSize: 10,
		},
		Polling: PollingConfig{
			Interval:               "10s",
			FollowUpDelay:          "10s",
			MaxConsecutiveFailures: 5,
		},
		Progress: ProgressConfig{
			StepInterval: "23s",
		},
		Cache: CacheConfig{
			Type: "memory",
			TTL:  "60s",
		},
		Output: OutputConfig{
			Style:       "auto",
			Width:       100,
			DownloadDir: ".",
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:      false,
				Endpoint:     "localhost:4318",
				SamplingRate: 1.0,
				Insecure:     true,
			},
			Metrics: MetricsConfig{
				Enabled: true,
			},
			Logging: LoggingConfig{
				Level:  "warn",
				Format: "console",
				Output: "stderr",
			},
		},
	}
}

// applyDefaults applies default values to missing fields
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.API.BaseURL == "" {
		c.API.BaseURL = defaults.API.BaseURL
	}
	if c.API.Timeout == "" {
		c.API.Timeout = defaults.API.Timeout
	}
	if c.API.DigestPageSize == 0 {
		c.API.DigestPageSize = defaults.API.DigestPageSize
	}

	if c.Polling.Interval == "" {
		c.Polling.Interval = defaults.Polling.Interval
	}
	if c.Polling.FollowUpDelay == "" {
		c.Polling.FollowUpDelay = defaults.Polling.FollowUpDelay
	}
	if c.Polling.MaxConsecutiveFailures == 0 {
		c.Polling.MaxConsecutiveFailures = defaults.Polling.MaxConsecutiveFailures
	}

	if c.Progress.StepInterval == "" {
		c.Progress.StepInterval = defaults.Progress.StepInterval
	}

	if c.Cache.Type == "" {
		c.Cache.Type = defaults.Cache.Type
	}
	if c.Cache.TTL == "" {
		c.Cache.TTL = defaults.Cache.TTL
	}

	if c.Output.Style == "" {
		c.Output.Style = defaults.Output.Style
	}
	if c.Output.Width == 0 {
		c.Output.Width = defaults.Output.Width
	}
	if c.Output.DownloadDir == "" {
		c.Output.DownloadDir = defaults.Output.DownloadDir
	}

	if c.Observability.Tracing.Endpoint == "" {
		c.Observability.Tracing.Endpoint = defaults.Observability.Tracing.Endpoint
	}
	if c.Observability.Tracing.SamplingRate == 0 {
		c.Observability.Tracing.SamplingRate = defaults.Observability.Tracing.SamplingRate
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = defaults.Observability.Logging.Level
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = defaults.Observability.Logging.Format
	}
	if c.Observability.Logging.Output == "" {
		c.Observability.Logging.Output = defaults.Observability.Logging.Output
	}
}

// overrideFromEnv overrides configuration from environment variables.
// A .env file in the working directory is loaded first; real environment
// variables win over it.
func (c *Config) overrideFromEnv() {
	_ = godotenv.Load()

	if v := os.Getenv("INSIGHT_API_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("INSIGHT_POLL_INTERVAL"); v != "" {
		c.Polling.Interval = v
	}
	if v := os.Getenv("INSIGHT_CACHE_URL"); v != "" {
		c.Cache.URL = v
		if c.Cache.Type == "memory" {
			c.Cache.Type = "redis"
		}
	}
	if v := os.Getenv("INSIGHT_LOG_LEVEL"); v != "" {
		c.Observability.Logging.Level = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Observability.Tracing.Endpoint = v
		c.Observability.Tracing.Enabled = true
	}
}

// validate validates the configuration
func (c *Config) validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api base_url must be an absolute URL: %q", c.API.BaseURL)
	}
	if c.API.DigestPageSize < 1 {
		return fmt.Errorf("api digest_page_size must be at least 1")
	}

	durations := map[string]string{
		"api timeout":             c.API.Timeout,
		"polling interval":        c.Polling.Interval,
		"polling follow_up_delay": c.Polling.FollowUpDelay,
		"progress step_interval":  c.Progress.StepInterval,
		"cache ttl":               c.Cache.TTL,
	}
	for name, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if c.Polling.MaxConsecutiveFailures < 1 {
		return fmt.Errorf("polling max_consecutive_failures must be at least 1")
	}

	switch c.Cache.Type {
	case "memory", "none":
	case "redis":
		if c.Cache.URL == "" {
			return fmt.Errorf("cache url is required for redis cache")
		}
	default:
		return fmt.Errorf("unknown cache type: %s", c.Cache.Type)
	}

	if c.Observability.Tracing.SamplingRate < 0 || c.Observability.Tracing.SamplingRate > 1 {
		return fmt.Errorf("tracing sampling_rate must be between 0 and 1")
	}
	if c.Observability.Metrics.Port < 0 || c.Observability.Metrics.Port > 65535 {
		return fmt.Errorf("metrics port must be between 0 and 65535")
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetDuration parses a duration string from config
func (c *Config) GetDuration(value string) (time.Duration, error) {
	return time.ParseDuration(value)
}

// MustDuration parses a duration that validate has already checked
func (c *Config) MustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	return env == "production" || env == "prod"
}

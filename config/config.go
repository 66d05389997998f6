package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable read by the Env helpers.
const EnvPrefix = "XRAY_"

// Config holds engine configuration.
type Config struct {
	Concurrency      int           `yaml:"concurrency"`
	ThrottleRequests int           `yaml:"throttle_requests"`
	ThrottlePer      time.Duration `yaml:"throttle_per"`
	DelayMin         time.Duration `yaml:"delay_min"`
	DelayMax         time.Duration `yaml:"delay_max"`
	Timeout          time.Duration `yaml:"timeout"`
	JobLimit         int           `yaml:"job_limit"`  // scheduler-wide cap on admitted fetches, 0 = unlimited
	PageLimit        int           `yaml:"page_limit"` // per-crawl cap on pages, 0 = unlimited
	Paginate         string        `yaml:"paginate"`
	UserAgent        string        `yaml:"user_agent"`
	SpecCacheSize    int           `yaml:"spec_cache_size"`
	Parallelism      int           `yaml:"parallelism"` // list element fan-out, 0 = unbounded
	OutputFile       string        `yaml:"output_file"`
	OutputFormat     string        `yaml:"output_format"` // json or jsonl
	MetricsAddr      string        `yaml:"metrics_addr"`
	Verbose          bool          `yaml:"verbose"`
}

// DefaultConfig returns defaults that impose no throttling and no limits.
func DefaultConfig() *Config {
	return &Config{
		Concurrency:   16,
		Timeout:       0,
		SpecCacheSize: 512,
		Parallelism:   0,
		OutputFormat:  "json",
		UserAgent:     "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency cannot be negative")
	}
	if c.ThrottleRequests < 0 {
		return fmt.Errorf("throttle requests cannot be negative")
	}
	if c.ThrottleRequests > 0 && c.ThrottlePer <= 0 {
		return fmt.Errorf("throttle period must be positive when throttle requests is set")
	}
	if c.DelayMin < 0 || c.DelayMax < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.DelayMax > 0 && c.DelayMin > c.DelayMax {
		return fmt.Errorf("delay min (%s) cannot exceed delay max (%s)", c.DelayMin, c.DelayMax)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	if c.JobLimit < 0 {
		return fmt.Errorf("job limit cannot be negative")
	}
	if c.PageLimit < 0 {
		return fmt.Errorf("page limit cannot be negative")
	}
	if c.SpecCacheSize < 0 {
		return fmt.Errorf("spec cache size cannot be negative")
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("parallelism cannot be negative")
	}
	if c.OutputFormat != "json" && c.OutputFormat != "jsonl" {
		return fmt.Errorf("output format must be json or jsonl")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	return nil
}

// LoadFile reads a YAML config file over the defaults. Durations use Go
// syntax ("250ms", "2s").
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// EnvString returns $XRAY_<name> or fallback when unset or empty.
func EnvString(name, fallback string) string {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		return v
	}
	return fallback
}

// EnvInt returns $XRAY_<name> as an int, or fallback when unset or invalid.
func EnvInt(name string, fallback int) int {
	v := os.Getenv(EnvPrefix + name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// EnvDuration returns $XRAY_<name> as a duration, or fallback when unset or
// invalid.
func EnvDuration(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(EnvPrefix + name)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

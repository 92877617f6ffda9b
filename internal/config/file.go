// Package config loads the chatenrich agent configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level agent configuration.
type Config struct {
	Browser    BrowserConfig    `yaml:"browser"`
	Pages      []PageConfig     `yaml:"pages"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Settings   SettingsConfig   `yaml:"settings"`
	Processor  ProcessorConfig  `yaml:"processor"`
	Input      InputConfig      `yaml:"input"`
	Cache      CacheConfig      `yaml:"cache"`
	API        APIConfig        `yaml:"api"`
	Sinks      []SinkConfig     `yaml:"sinks"`
	LogLevel   string           `yaml:"log_level"`
}

// BrowserConfig controls the Chrome lifecycle.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	UserDataDir      string        `yaml:"user_data_dir"` // keeps chat logins across restarts
	Mode             string        `yaml:"mode"`          // headless | headful
	MemoryLimit      int64         `yaml:"memory_limit"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	XvfbDisplay      string        `yaml:"xvfb_display"`
}

// PageConfig is a chat page to attach to.
type PageConfig struct {
	ID  string `yaml:"id"`
	URL string `yaml:"url"`
}

// EnrichmentConfig points at the enrichment service.
type EnrichmentConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxRetries int           `yaml:"max_retries"`
}

// SettingsConfig locates the shared settings database.
type SettingsConfig struct {
	Path         string        `yaml:"path"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ProcessorConfig tunes response processing.
type ProcessorConfig struct {
	Pacing             time.Duration `yaml:"pacing"`
	MinTextLength      int           `yaml:"min_text_length"` // 0 = vendor default
	AllowNonCommercial bool          `yaml:"allow_non_commercial"`
}

// InputConfig tunes the input watcher.
type InputConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	MinQueryLength int           `yaml:"min_query_length"`
}

// CacheConfig bounds the query cache.
type CacheConfig struct {
	MaxAge        time.Duration `yaml:"max_age"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	MaxContexts   int           `yaml:"max_contexts"`
}

// APIConfig controls the local control API.
type APIConfig struct {
	Listen string `yaml:"listen"` // empty disables it
}

// SinkConfig defines an event output backend.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook
	URL  string `yaml:"url"`  // for webhook
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied and no pages.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Browser.Mode == "" {
		c.Browser.Mode = "headless"
	}
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Enrichment.BaseURL == "" {
		c.Enrichment.BaseURL = "http://127.0.0.1:7411"
	}
	if c.Enrichment.Timeout <= 0 {
		c.Enrichment.Timeout = 30 * time.Second
	}
	if c.Enrichment.Backoff <= 0 {
		c.Enrichment.Backoff = time.Second
	}
	if c.Enrichment.MaxRetries <= 0 {
		c.Enrichment.MaxRetries = 2
	}
	if c.Settings.Path == "" {
		c.Settings.Path = "chatenrich.db"
	}
	if c.Settings.PollInterval <= 0 {
		c.Settings.PollInterval = 500 * time.Millisecond
	}
	if c.Processor.Pacing <= 0 {
		c.Processor.Pacing = 500 * time.Millisecond
	}
	if c.Input.PollInterval <= 0 {
		c.Input.PollInterval = time.Second
	}
	if c.Input.MinQueryLength <= 0 {
		c.Input.MinQueryLength = 10
	}
	if c.Cache.MaxAge <= 0 {
		c.Cache.MaxAge = 5 * time.Minute
	}
	if c.Cache.SweepInterval <= 0 {
		c.Cache.SweepInterval = time.Minute
	}
	if c.Cache.MaxContexts <= 0 {
		c.Cache.MaxContexts = 50
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	for i := range c.Pages {
		if c.Pages[i].ID == "" {
			c.Pages[i].ID = fmt.Sprintf("page-%d", i+1)
		}
	}
	for i := range c.Sinks {
		if c.Sinks[i].Type == "" {
			c.Sinks[i].Type = "stdout"
		}
	}
}

// Validate reports configuration the agent cannot run with.
func (c *Config) Validate() error {
	switch c.Browser.Mode {
	case "headless", "headful":
	default:
		return fmt.Errorf("config: browser.mode %q: want headless or headful", c.Browser.Mode)
	}
	for _, p := range c.Pages {
		if p.URL == "" {
			return fmt.Errorf("config: page %s: url is required", p.ID)
		}
	}
	for i, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				return fmt.Errorf("config: sink %d: webhook needs a url", i)
			}
		default:
			return fmt.Errorf("config: sink %d: unknown type %q", i, s.Type)
		}
	}
	return nil
}

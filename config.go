package chatenrich

import (
	"github.com/hazyhaar/chatenrich/internal/config"
)

// Config is the top-level agent configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls the Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// PageConfig names a chat page to attach to.
type PageConfig = config.PageConfig

// EnrichmentConfig points at the enrichment service.
type EnrichmentConfig = config.EnrichmentConfig

// SinkConfig defines an event output backend.
type SinkConfig = config.SinkConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// ParseConfig decodes YAML configuration and applies defaults.
func ParseConfig(data []byte) (*Config, error) {
	return config.Parse(data)
}

// DefaultConfig returns a configuration with every default applied and
// no pages.
func DefaultConfig() *Config {
	return config.Default()
}

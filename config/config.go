// Package config provides configuration loading and management for Provreg.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/provreg/ingest"
)

// Config represents the complete Provreg configuration
type Config struct {
	Node         NodeConfig         `yaml:"node"`
	NATS         NATSConfig         `yaml:"nats"`
	Redis        RedisConfig        `yaml:"redis"`
	TrustedParty TrustedPartyConfig `yaml:"trusted_party"`
	Resolver     ResolverConfig     `yaml:"resolver"`
	Watch        ingest.WatchConfig `yaml:"watch"`
}

// NodeConfig identifies this registry node
type NodeConfig struct {
	// BaseURL is the public base URL of this node, used to recognize
	// connector references that point back at itself
	BaseURL string `yaml:"base_url"`
	// Listen is the HTTP listen address
	Listen string `yaml:"listen"`
	// DefaultOrg is the organization assigned to drop-directory files
	// that carry no organization segment in their path
	DefaultOrg string `yaml:"default_org"`
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	// URL is the NATS server URL
	URL string `yaml:"url"`
	// LineageStream enables publishing lineage events after each fold
	LineageStream bool `yaml:"lineage_stream"`
}

// RedisConfig configures the connector probe cache
type RedisConfig struct {
	// Addr is the Redis address (empty = probe cache disabled)
	Addr string `yaml:"addr"`
	// ProbeTTL is how long a positive probe result is cached
	ProbeTTL time.Duration `yaml:"probe_ttl"`
}

// TrustedPartyConfig configures the token-issuing service
type TrustedPartyConfig struct {
	// URL is the trusted party base URL
	URL string `yaml:"url"`
	// Timeout bounds token issuance requests
	Timeout time.Duration `yaml:"timeout"`
}

// ResolverConfig configures connector reference resolution
type ResolverConfig struct {
	// Timeout bounds each remote existence probe and token fetch
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			BaseURL:    "http://localhost:8180",
			Listen:     ":8180",
			DefaultOrg: "default",
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			LineageStream: false,
		},
		Redis: RedisConfig{
			Addr:     "",
			ProbeTTL: 5 * time.Minute,
		},
		TrustedParty: TrustedPartyConfig{
			URL:     "",
			Timeout: 30 * time.Second,
		},
		Resolver: ResolverConfig{
			Timeout: 10 * time.Second,
		},
		Watch: ingest.DefaultWatchConfig(),
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Node.BaseURL == "" {
		return fmt.Errorf("node.base_url is required")
	}
	if _, err := url.Parse(c.Node.BaseURL); err != nil {
		return fmt.Errorf("node.base_url is not a valid URL: %w", err)
	}
	if c.Node.Listen == "" {
		return fmt.Errorf("node.listen is required")
	}
	if c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required")
	}
	if c.Resolver.Timeout <= 0 {
		return fmt.Errorf("resolver.timeout must be positive")
	}
	if c.Watch.Enabled && c.Watch.Dir == "" {
		return fmt.Errorf("watch.dir is required when watch is enabled")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
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

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Node
	if other.Node.BaseURL != "" {
		c.Node.BaseURL = other.Node.BaseURL
	}
	if other.Node.Listen != "" {
		c.Node.Listen = other.Node.Listen
	}
	if other.Node.DefaultOrg != "" {
		c.Node.DefaultOrg = other.Node.DefaultOrg
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.NATS.LineageStream {
		c.NATS.LineageStream = true
	}

	// Redis
	if other.Redis.Addr != "" {
		c.Redis.Addr = other.Redis.Addr
	}
	if other.Redis.ProbeTTL != 0 {
		c.Redis.ProbeTTL = other.Redis.ProbeTTL
	}

	// Trusted party
	if other.TrustedParty.URL != "" {
		c.TrustedParty.URL = other.TrustedParty.URL
	}
	if other.TrustedParty.Timeout != 0 {
		c.TrustedParty.Timeout = other.TrustedParty.Timeout
	}

	// Resolver
	if other.Resolver.Timeout != 0 {
		c.Resolver.Timeout = other.Resolver.Timeout
	}

	// Watch
	if other.Watch.Enabled {
		c.Watch.Enabled = true
	}
	if other.Watch.Dir != "" {
		c.Watch.Dir = other.Watch.Dir
	}
	if other.Watch.DebounceDelay != "" {
		c.Watch.DebounceDelay = other.Watch.DebounceDelay
	}
	if len(other.Watch.IncludePatterns) > 0 {
		c.Watch.IncludePatterns = other.Watch.IncludePatterns
	}
	if len(other.Watch.ExcludeDirs) > 0 {
		c.Watch.ExcludeDirs = other.Watch.ExcludeDirs
	}
}

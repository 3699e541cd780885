package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied by Validate for omitted settings.
const (
	DefaultServerAddress         = ":8080"
	DefaultMaxUpdateRetries      = 10
	DefaultStudentPollInterval   = 30 * time.Second
	DefaultOversightPollInterval = 60 * time.Second
	DefaultJitter                = 5 * time.Second
	DefaultRefreshDelay          = time.Second
	DefaultRedisImage            = "redis:7-alpine"
)

// CohortConfig represents the top-level cohort.yml configuration
type CohortConfig struct {
	Version  string          `yaml:"version"`
	Server   *ServerConfig   `yaml:"server,omitempty"`
	Ledger   *LedgerConfig   `yaml:"ledger,omitempty"`
	Sync     *SyncConfig     `yaml:"sync,omitempty"`
	Bridge   *BridgeConfig   `yaml:"bridge,omitempty"`
	Services *ServicesConfig `yaml:"services,omitempty"`
}

// ServerConfig specifies the API server
type ServerConfig struct {
	Address string `yaml:"address,omitempty"` // Listen address, default ":8080"
}

// LedgerConfig specifies progress ledger behavior
type LedgerConfig struct {
	MaxUpdateRetries int `yaml:"max_update_retries,omitempty"` // Optimistic update attempts before giving up
}

// SyncConfig specifies client-side refresh timings
type SyncConfig struct {
	StudentPollInterval   time.Duration `yaml:"student_poll_interval,omitempty"`
	OversightPollInterval time.Duration `yaml:"oversight_poll_interval,omitempty"`
	Jitter                time.Duration `yaml:"jitter,omitempty"`
	RefreshDelay          time.Duration `yaml:"refresh_delay,omitempty"` // Delay before refetching after a staleness event
}

// BridgeConfig controls forwarding of server events to Redis Pub/Sub
type BridgeConfig struct {
	Enabled *bool `yaml:"enabled,omitempty"` // Default: true
}

// ServicesConfig specifies service-level overrides
type ServicesConfig struct {
	Redis *ServiceOverride `yaml:"redis,omitempty"`
}

// ServiceOverride allows overriding default service images
type ServiceOverride struct {
	Image string `yaml:"image,omitempty"`
}

// Default returns a validated configuration with every default applied.
func Default() *CohortConfig {
	c := &CohortConfig{Version: "1.0"}
	if err := c.Validate(); err != nil {
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}
	return c
}

// Validate performs strict validation on the configuration and fills in defaults
func (c *CohortConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Server == nil {
		c.Server = &ServerConfig{}
	}
	if c.Server.Address == "" {
		c.Server.Address = DefaultServerAddress
	}
	if !strings.Contains(c.Server.Address, ":") {
		return fmt.Errorf("server.address must be host:port or :port, got %q", c.Server.Address)
	}

	if c.Ledger == nil {
		c.Ledger = &LedgerConfig{}
	}
	if c.Ledger.MaxUpdateRetries == 0 {
		c.Ledger.MaxUpdateRetries = DefaultMaxUpdateRetries
	}
	if c.Ledger.MaxUpdateRetries < 1 {
		return fmt.Errorf("ledger.max_update_retries must be >= 1, got %d", c.Ledger.MaxUpdateRetries)
	}

	if c.Sync == nil {
		c.Sync = &SyncConfig{}
	}
	if err := c.Sync.validate(); err != nil {
		return err
	}

	if c.Bridge == nil {
		c.Bridge = &BridgeConfig{}
	}
	if c.Bridge.Enabled == nil {
		enabled := true
		c.Bridge.Enabled = &enabled
	}

	if c.Services == nil {
		c.Services = &ServicesConfig{}
	}
	if c.Services.Redis == nil {
		c.Services.Redis = &ServiceOverride{}
	}
	if c.Services.Redis.Image == "" {
		c.Services.Redis.Image = DefaultRedisImage
	}

	return nil
}

func (s *SyncConfig) validate() error {
	if s.StudentPollInterval == 0 {
		s.StudentPollInterval = DefaultStudentPollInterval
	}
	if s.OversightPollInterval == 0 {
		s.OversightPollInterval = DefaultOversightPollInterval
	}
	if s.Jitter == 0 {
		s.Jitter = DefaultJitter
	}
	if s.RefreshDelay == 0 {
		s.RefreshDelay = DefaultRefreshDelay
	}

	if s.StudentPollInterval < time.Second {
		return fmt.Errorf("sync.student_poll_interval must be at least 1s, got %s", s.StudentPollInterval)
	}
	if s.OversightPollInterval < time.Second {
		return fmt.Errorf("sync.oversight_poll_interval must be at least 1s, got %s", s.OversightPollInterval)
	}
	if s.Jitter < 0 {
		return fmt.Errorf("sync.jitter must be >= 0, got %s", s.Jitter)
	}
	if s.RefreshDelay < 0 {
		return fmt.Errorf("sync.refresh_delay must be >= 0, got %s", s.RefreshDelay)
	}
	return nil
}

// BridgeEnabled reports whether server events are forwarded to Redis.
func (c *CohortConfig) BridgeEnabled() bool {
	return c.Bridge == nil || c.Bridge.Enabled == nil || *c.Bridge.Enabled
}

// Load reads and validates cohort.yml from the specified path
func Load(path string) (*CohortConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config CohortConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// LoadOrDefault loads path, falling back to Default when the file does not exist.
// An empty path always yields the defaults.
func LoadOrDefault(path string) (*CohortConfig, error) {
	if path == "" {
		return Default(), nil
	}
	config, err := Load(path)
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return config, err
}

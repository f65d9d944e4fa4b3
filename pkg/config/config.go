// Package config loads the YAML configuration of an LWM2M device.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sbernard31/lualwm2m/pkg/model"
	"github.com/sbernard31/lualwm2m/pkg/subscription"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Defaults applied by ApplyDefaults.
const (
	DefaultListenAddress = ":56830"
	DefaultStepInterval  = time.Second
	DefaultStepTimeout   = 60 * time.Second
	DefaultLifetime      = 300
	DefaultBinding       = "U"
	DefaultServerPort    = 5683
	DefaultLogLevel      = "info"
)

// Config is the device configuration.
type Config struct {
	// Endpoint is the client endpoint name announced at registration.
	Endpoint string `yaml:"endpoint"`

	// Script is the Lua file defining the objects.
	Script string `yaml:"script"`

	// Listen is the local UDP address.
	Listen string `yaml:"listen"`

	// StepInterval is the longest time between two engine steps.
	StepInterval time.Duration `yaml:"step_interval"`

	// StepTimeout caps the wait suggested by the engine.
	StepTimeout time.Duration `yaml:"step_timeout"`

	Servers []ServerConfig `yaml:"servers"`

	// Notify paces observation notifications.
	Notify NotifyConfig `yaml:"notify"`

	LogLevel    string `yaml:"log_level"`
	ProtocolLog string `yaml:"protocol_log"`
	MetricsAddr string `yaml:"metrics_addr"`

	// Advertise enables mDNS advertisement of the client.
	Advertise bool   `yaml:"advertise"`
	Interface string `yaml:"interface"`
}

// ServerConfig describes one LWM2M server.
type ServerConfig struct {
	ShortID  uint16 `yaml:"short_id"`
	Host     string `yaml:"host"`
	Port     uint16 `yaml:"port"`
	Lifetime int    `yaml:"lifetime"` // seconds
	SMS      string `yaml:"sms"`
	Binding  string `yaml:"binding"`
}

// NotifyConfig holds the notification attributes applied to every
// observation.
type NotifyConfig struct {
	MinPeriod         time.Duration `yaml:"min_period"`
	MaxPeriod         time.Duration `yaml:"max_period"`
	SuppressUnchanged bool          `yaml:"suppress_unchanged"`
}

// Subscription converts the settings for the engine.
func (n NotifyConfig) Subscription() subscription.Config {
	return subscription.Config{
		MinPeriod:         n.MinPeriod,
		MaxPeriod:         n.MaxPeriod,
		SuppressUnchanged: n.SuppressUnchanged,
	}
}

// LifetimeDuration returns the lifetime as a duration.
func (s ServerConfig) LifetimeDuration() time.Duration {
	return time.Duration(s.Lifetime) * time.Second
}

// Load reads, defaults and validates the file at path.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	return finish(cfg)
}

// Read decodes the file at path without applying defaults or validating,
// so callers can merge other settings first.
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return decode(data)
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	return finish(cfg)
}

func decode(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &cfg, nil
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListenAddress
	}
	if c.StepInterval == 0 {
		c.StepInterval = DefaultStepInterval
	}
	if c.StepTimeout == 0 {
		c.StepTimeout = DefaultStepTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	for i := range c.Servers {
		s := &c.Servers[i]
		if s.Port == 0 {
			s.Port = DefaultServerPort
		}
		if s.Lifetime == 0 {
			s.Lifetime = DefaultLifetime
		}
		if s.Binding == "" {
			s.Binding = DefaultBinding
		}
	}
}

// Validate checks the configuration. It does not modify it.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", ErrInvalidConfig)
	}
	if c.Script == "" {
		return fmt.Errorf("%w: script is required", ErrInvalidConfig)
	}
	if c.StepInterval < 0 || c.StepTimeout < 0 {
		return fmt.Errorf("%w: step durations must not be negative", ErrInvalidConfig)
	}
	if err := c.Notify.Subscription().Validate(); err != nil {
		return fmt.Errorf("%w: notify: %v", ErrInvalidConfig, err)
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.LogLevel)
	}

	seen := make(map[uint16]bool, len(c.Servers))
	for i, s := range c.Servers {
		if s.ShortID == 0 || s.ShortID == model.MaxID {
			return fmt.Errorf("%w: server #%d: short_id must be 1..65534", ErrInvalidConfig, i+1)
		}
		if seen[s.ShortID] {
			return fmt.Errorf("%w: server #%d: duplicate short_id %d", ErrInvalidConfig, i+1, s.ShortID)
		}
		seen[s.ShortID] = true
		if s.Host == "" {
			return fmt.Errorf("%w: server %d: host is required", ErrInvalidConfig, s.ShortID)
		}
		if s.Lifetime < 0 {
			return fmt.Errorf("%w: server %d: lifetime must be positive", ErrInvalidConfig, s.ShortID)
		}
		if s.Binding != "" {
			if _, err := model.ParseBinding(s.Binding); err != nil {
				return fmt.Errorf("%w: server %d: %v", ErrInvalidConfig, s.ShortID, err)
			}
		}
	}
	return nil
}

// Package config loads daemon configuration from defaults, an optional YAML
// file and BIOREACTOR_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/fentz26/bioreactor/internal/simulation"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "BIOREACTOR_"

// Defaults.
const (
	DefaultListen   = "127.0.0.1:8000"
	DefaultDBPath   = ":memory:"
	DefaultLogLevel = "info"
)

// Config is the daemon configuration.
type Config struct {
	Listen     string            `yaml:"listen" env:"LISTEN"`
	DBPath     string            `yaml:"db" env:"DB"`
	LogLevel   string            `yaml:"log_level" env:"LOG_LEVEL"`
	Simulation simulation.Config `yaml:"simulation"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:     DefaultListen,
		DBPath:     DefaultDBPath,
		LogLevel:   DefaultLogLevel,
		Simulation: *simulation.DefaultConfig(),
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Listen) == "" {
		errs = append(errs, errors.New("listen address must not be empty"))
	}
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("db path must not be empty"))
	}
	if err := c.Simulation.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

package simulation

import (
	"fmt"
	"time"
)

// Config defines the simulation engine configuration.
type Config struct {
	// TickInterval is the fixed step between PV updates.
	TickInterval time.Duration `yaml:"tick_interval" env:"TICK_INTERVAL"`
	// Seed initialises the noise source. Zero seeds from the clock.
	Seed int64 `yaml:"seed" env:"SEED"`
	// HistorySize is the number of PV samples kept per parameter.
	HistorySize int `yaml:"history_size" env:"HISTORY_SIZE"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		TickInterval: time.Second,
		HistorySize:  120,
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", c.TickInterval)
	}
	if c.HistorySize <= 0 {
		return fmt.Errorf("history size must be positive, got %d", c.HistorySize)
	}
	return nil
}

package config

import (
	"time"

	pkgerrors "github.com/pkg/errors"
)

// GCConfig defines the parameters for the background active expiration
type GCConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"` // how often every shard is swept
}

// DefaultGCConfig returns the sweep settings used when the config omits them
func DefaultGCConfig() GCConfig {
	return GCConfig{
		Enabled:  true,
		Interval: 100 * time.Millisecond,
	}
}

// SweepInterval is the period handed to the shard pool. 0 disables the sweep
func (c GCConfig) SweepInterval() time.Duration {
	if !c.Enabled {
		return 0
	}
	return c.Interval
}

func (c GCConfig) validate() error {
	if c.Enabled && c.Interval <= 0 {
		return pkgerrors.Errorf("gc.interval must be positive, got %s", c.Interval)
	}
	return nil
}

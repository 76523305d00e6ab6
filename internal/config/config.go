package config

import (
	"errors"
	"math/bits"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config represents the root configuration structure for the application
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	GC      GCConfig      `mapstructure:"gc"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServerConfig holds the network settings
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	RESPPort     string `mapstructure:"resp_port"`
	MemcachePort string `mapstructure:"memcache_port"` // empty disables the memcache listener
}

// StorageConfig defines the internal structure of the storage engine
type StorageConfig struct {
	Shards     uint `mapstructure:"shards"`
	MaxEntries int  `mapstructure:"max_entries"` // per shard, 0 means unbounded
}

// LogConfig defines logging verbosity and output style
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// MetricsConfig defines the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load reads the configuration from a file and overrides it with environment variables
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)
	v.AddConfigPath(".")

	v.SetEnvPrefix("MIXEDDS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, pkgerrors.Wrap(err, "read config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, pkgerrors.Wrap(err, "decode config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the server cannot start with
func (c *Config) Validate() error {
	if c.Server.RESPPort == "" {
		return errors.New("server.resp_port must be set")
	}
	if bits.OnesCount(c.Storage.Shards) != 1 || c.Storage.Shards > 64 {
		return pkgerrors.Errorf("storage.shards must be a power of 2 up to 64, got %d", c.Storage.Shards)
	}
	if c.Storage.MaxEntries < 0 {
		return pkgerrors.Errorf("storage.max_entries must not be negative, got %d", c.Storage.MaxEntries)
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return errors.New("metrics.addr must be set when metrics are enabled")
	}
	return c.GC.validate()
}

// setDefaults populates viper with fallback values if they are not provided via file or ENV
func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.resp_port", "6380")
	v.SetDefault("server.memcache_port", "11211")

	// Storage
	v.SetDefault("storage.shards", 32)
	v.SetDefault("storage.max_entries", 0)

	// GC
	gc := DefaultGCConfig()
	v.SetDefault("gc.enabled", gc.Enabled)
	v.SetDefault("gc.interval", gc.Interval)

	// Logger
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Metrics
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9100")
}

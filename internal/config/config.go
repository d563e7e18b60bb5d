// Package config holds the daemon's configuration, loaded from a TOML file
// with environment variable overrides.
package config

import (
	"time"
)

// Config is the full daemon configuration.
type Config struct {
	// NodeName identifies this instance in logs.
	NodeName string `mapstructure:"node_name"`

	House   HouseConfig   `mapstructure:"house"`
	Fees    FeesConfig    `mapstructure:"fees"`
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Log     LogConfig     `mapstructure:"log"`

	configPath string
}

// Path returns the file the configuration was loaded from, if any.
func (c *Config) Path() string { return c.configPath }

// HouseConfig configures the settlement core.
type HouseConfig struct {
	// Address is the custody principal all escrow moves through.
	Address string `mapstructure:"address"`

	// Governance may change fee configuration and accrues protocol fees.
	Governance string `mapstructure:"governance"`
}

// FeesConfig seeds per-auction-type fee percentages, in parts per 100000.
type FeesConfig struct {
	Protocol   uint32 `mapstructure:"protocol"`
	Referrer   uint32 `mapstructure:"referrer"`
	MaxCurator uint32 `mapstructure:"max_curator"`
}

// ServerConfig configures the HTTP and websocket surface.
type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	ListenAddress   string        `mapstructure:"listen_address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// ViewCacheSize bounds the LRU cache of rendered lot views.
	ViewCacheSize int `mapstructure:"view_cache_size"`
}

// StorageConfig configures the persistence layer.
type StorageConfig struct {
	// Backend selects the key-value engine: pebble, leveldb or memory.
	Backend string `mapstructure:"backend"`

	// Path is the directory that holds the key-value databases.
	Path string `mapstructure:"path"`

	// HistoryPath is the sqlite file for the settlement audit trail.
	// Empty disables the relational history.
	HistoryPath string `mapstructure:"history_path"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

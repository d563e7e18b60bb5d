package config

import (
	"fmt"

	"github.com/openclear/auctiond/internal/core/fees"
)

// Validate checks the configuration for values the daemon cannot run with.
func Validate(cfg *Config) error {
	if cfg.House.Address == "" {
		return fmt.Errorf("house.address must not be empty")
	}
	if cfg.House.Governance == "" {
		return fmt.Errorf("house.governance must not be empty")
	}

	if cfg.Fees.Protocol > fees.Denominator {
		return fmt.Errorf("fees.protocol %d exceeds %d", cfg.Fees.Protocol, fees.Denominator)
	}
	if cfg.Fees.Referrer > fees.Denominator {
		return fmt.Errorf("fees.referrer %d exceeds %d", cfg.Fees.Referrer, fees.Denominator)
	}
	if cfg.Fees.Protocol+cfg.Fees.Referrer > fees.Denominator {
		return fmt.Errorf("fees.protocol + fees.referrer %d exceeds %d",
			cfg.Fees.Protocol+cfg.Fees.Referrer, fees.Denominator)
	}
	if cfg.Fees.MaxCurator > fees.Denominator {
		return fmt.Errorf("fees.max_curator %d exceeds %d", cfg.Fees.MaxCurator, fees.Denominator)
	}

	switch cfg.Storage.Backend {
	case "pebble", "leveldb", "memory":
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if cfg.Storage.Backend != "memory" && cfg.Storage.Path == "" {
		return fmt.Errorf("storage.path must not be empty for backend %q", cfg.Storage.Backend)
	}

	if cfg.Server.Enabled {
		if cfg.Server.ListenAddress == "" {
			return fmt.Errorf("server.listen_address must not be empty")
		}
		if cfg.Server.ViewCacheSize <= 0 {
			return fmt.Errorf("server.view_cache_size must be positive")
		}
	}
	return nil
}

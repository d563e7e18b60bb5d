package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Load builds the configuration in priority order:
// defaults, then the TOML file at path (optional if path is empty),
// then AUCTIOND_ environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if path != "" {
		if err := loadFile(v, path); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	v.SetEnvPrefix("AUCTIOND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.configPath = path

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func loadFile(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("config file does not exist: %s", path)
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

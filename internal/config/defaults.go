package config

import (
	"github.com/spf13/viper"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("node_name", "auctiond")

	v.SetDefault("house.address", "house")
	v.SetDefault("house.governance", "governance")

	v.SetDefault("fees.protocol", 1000)
	v.SetDefault("fees.referrer", 500)
	v.SetDefault("fees.max_curator", 5000)

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.listen_address", "127.0.0.1:8090")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.view_cache_size", 1024)

	v.SetDefault("storage.backend", "pebble")
	v.SetDefault("storage.path", "data")
	v.SetDefault("storage.history_path", "data/history.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", false)
}

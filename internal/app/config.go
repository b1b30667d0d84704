package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the coderwall backend.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Leaderboard LeaderboardConfig `mapstructure:"leaderboard"`
	Search      SearchConfig      `mapstructure:"search"`
	Analytics   AnalyticsConfig   `mapstructure:"analytics"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Features    FeatureConfig     `mapstructure:"features"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CacheConfig describes cache backends. When Redis is disabled the database
// fallback store is used.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LeaderboardConfig tunes ranking cache lifetimes.
type LeaderboardConfig struct {
	PageTTL     time.Duration `mapstructure:"page_ttl"`
	FeaturedTTL time.Duration `mapstructure:"featured_ttl"`
}

// SearchConfig bounds search index queries.
type SearchConfig struct {
	IndexTimeout time.Duration `mapstructure:"index_timeout"`
}

// AnalyticsConfig controls the visitor dashboard.
type AnalyticsConfig struct {
	Lookback      time.Duration `mapstructure:"lookback"`
	EntryCap      int           `mapstructure:"entry_cap"`
	RetentionDays int           `mapstructure:"retention_days"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// FeatureConfig toggles optional platform features.
type FeatureConfig struct {
	Notifications NotificationConfig `mapstructure:"notifications"`
}

// NotificationConfig toggles realtime notifications.
type NotificationConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// MaintenanceConfig schedules background sweeps.
type MaintenanceConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	CacheSchedule string `mapstructure:"cache_schedule"`
	DataSchedule  string `mapstructure:"data_schedule"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("CODERWALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/coderwall.sqlite")

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")

	v.SetDefault("leaderboard.page_ttl", "1h")
	v.SetDefault("leaderboard.featured_ttl", "4h")

	v.SetDefault("search.index_timeout", "5s")

	v.SetDefault("analytics.lookback", "336h") // two weeks
	v.SetDefault("analytics.entry_cap", 75)
	v.SetDefault("analytics.retention_days", 365)

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)

	v.SetDefault("features.notifications.enabled", true)

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.cache_schedule", "@hourly")
	v.SetDefault("maintenance.data_schedule", "@daily")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

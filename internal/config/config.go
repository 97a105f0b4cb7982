// Package config loads the triage engine's configuration from file,
// environment and defaults using Viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/sympfindx-server/internal/domain"
)

// Manager loads and validates the application configuration.
type Manager struct {
	config *domain.Config
}

// NewManager creates a new configuration manager.
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources.
func (m *Manager) loadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/sympfindx/")

	viper.SetEnvPrefix("SYMPFINDX")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	m.setDefaults()

	// Config file is optional; defaults and environment variables suffice.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values.
func (m *Manager) setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")

	// Store defaults
	viper.SetDefault("store.driver", "sqlite")
	viper.SetDefault("store.sqlite_path", "./data/cases.db")
	viper.SetDefault("store.read_cache_size", 1024)
	viper.SetDefault("store.postgres.host", "localhost")
	viper.SetDefault("store.postgres.port", 5432)
	viper.SetDefault("store.postgres.database", "sympfindx")
	viper.SetDefault("store.postgres.username", "postgres")
	viper.SetDefault("store.postgres.password", "")
	viper.SetDefault("store.postgres.ssl_mode", "disable")
	viper.SetDefault("store.postgres.max_open_conns", 25)
	viper.SetDefault("store.postgres.max_idle_conns", 5)
	viper.SetDefault("store.postgres.conn_max_lifetime", "5m")
	viper.SetDefault("store.postgres.migrations_path", "./migrations")

	// Classifier defaults
	viper.SetDefault("classifiers.image.base_url", "http://localhost:8501")
	viper.SetDefault("classifiers.image.timeout", "30s")
	viper.SetDefault("classifiers.image.rate_limit", 10)
	viper.SetDefault("classifiers.text.base_url", "http://localhost:8502")
	viper.SetDefault("classifiers.text.timeout", "15s")
	viper.SetDefault("classifiers.text.rate_limit", 20)

	// Fusion defaults
	viper.SetDefault("fusion.image_weight", domain.DefaultImageWeight)
	viper.SetDefault("fusion.text_weight", domain.DefaultTextWeight)

	// Cache defaults
	viper.SetDefault("cache.enabled", false)
	viper.SetDefault("cache.redis_url", "redis://localhost:6379")
	viper.SetDefault("cache.default_ttl", "24h")
	viper.SetDefault("cache.max_retries", 3)
	viper.SetDefault("cache.pool_size", 10)
	viper.SetDefault("cache.pool_timeout", "4s")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// GetConfig returns the complete configuration.
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration.
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetStoreConfig returns case store configuration.
func (m *Manager) GetStoreConfig() *domain.StoreConfig {
	return &m.config.Store
}

// Reload reloads the configuration.
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration.
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Store.Driver {
	case "sqlite":
		if config.Store.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case "postgres":
		if config.Store.Postgres.Host == "" {
			return fmt.Errorf("postgres host is required")
		}
		if config.Store.Postgres.Database == "" {
			return fmt.Errorf("postgres database name is required")
		}
		if config.Store.Postgres.Username == "" {
			return fmt.Errorf("postgres username is required")
		}
	default:
		return fmt.Errorf("unknown store driver: %s", config.Store.Driver)
	}

	if config.Classifiers.Image.BaseURL == "" {
		return fmt.Errorf("image classifier base URL is required")
	}
	if config.Classifiers.Text.BaseURL == "" {
		return fmt.Errorf("text classifier base URL is required")
	}

	weightSum := config.Fusion.ImageWeight + config.Fusion.TextWeight
	if weightSum < 1-domain.WeightEpsilon || weightSum > 1+domain.WeightEpsilon {
		return fmt.Errorf("fusion weights must sum to 1.0, got %v", weightSum)
	}

	if config.Cache.Enabled && config.Cache.RedisURL == "" {
		return fmt.Errorf("redis URL is required when the cache is enabled")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// PostgresURL returns the case store connection URL for migrations and the
// lib/pq driver.
func (m *Manager) PostgresURL() string {
	pg := m.config.Store.Postgres
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		pg.Username, pg.Password, pg.Host, pg.Port, pg.Database, pg.SSLMode)
}

// IsProduction returns true if running in production mode.
func (m *Manager) IsProduction() bool {
	return strings.ToLower(viper.GetString("environment")) == "production"
}

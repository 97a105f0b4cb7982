package domain

import (
	"time"
)

// Config is the full application configuration, loaded by internal/config.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Store       StoreConfig       `mapstructure:"store"`
	Classifiers ClassifiersConfig `mapstructure:"classifiers"`
	Fusion      FusionConfig      `mapstructure:"fusion"`
	Routing     RoutingConfig     `mapstructure:"routing"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// StoreConfig selects and configures the case store backend.
type StoreConfig struct {
	Driver     string         `mapstructure:"driver"` // "sqlite" or "postgres"
	SQLitePath string         `mapstructure:"sqlite_path"`
	Postgres   PostgresConfig `mapstructure:"postgres"`
	// ReadCacheSize is the size of the in-memory LRU over case reads.
	// Zero disables the cache.
	ReadCacheSize int `mapstructure:"read_cache_size"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// ClassifiersConfig configures both upstream classifier services.
type ClassifiersConfig struct {
	Image ClassifierConfig `mapstructure:"image"`
	Text  ClassifierConfig `mapstructure:"text"`
}

// ClassifierConfig holds settings for one classifier HTTP client.
type ClassifierConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit int           `mapstructure:"rate_limit"` // requests per second
}

// FusionConfig holds the per-source fusion weights.
type FusionConfig struct {
	ImageWeight float64 `mapstructure:"image_weight"`
	TextWeight  float64 `mapstructure:"text_weight"`
}

// RoutingConfig optionally overrides the specialist directory.
type RoutingConfig struct {
	Specialists map[string]string `mapstructure:"specialists"`
}

// CacheConfig holds Redis settings for the classifier response cache.
type CacheConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

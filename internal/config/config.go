// Package config loads service settings from defaults, an optional YAML file
// and environment variables, in that order.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store types.
const (
	StoreRedis    = "redis"
	StoreBolt     = "bolt"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	IDs       IDConfig        `yaml:"ids"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Janitor   JanitorConfig   `yaml:"janitor"`
	Log       LogConfig       `yaml:"log"`
	// TestMode lets requests pin "now" through the X-Test-Now-Ms header.
	TestMode bool `yaml:"test_mode"`
}

// ServerConfig controls the HTTP listener and share links.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	BaseURL     string `yaml:"base_url"`
	BehindProxy bool   `yaml:"behind_proxy"`
}

// StoreConfig selects and configures the paste backend.
type StoreConfig struct {
	Type      string         `yaml:"type"`
	KeyPrefix string         `yaml:"key_prefix"`
	OpTimeout time.Duration  `yaml:"op_timeout"`
	Redis     RedisConfig    `yaml:"redis"`
	Bolt      FileConfig     `yaml:"bolt"`
	SQLite    FileConfig     `yaml:"sqlite"`
	Postgres  PostgresConfig `yaml:"postgres"`
}

// RedisConfig takes either a URL or an address.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// FileConfig locates an embedded database file.
type FileConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type IDConfig struct {
	Length int `yaml:"length"`
}

// RateLimitConfig sets the per-client token bucket.
type RateLimitConfig struct {
	Enabled   bool    `yaml:"enabled"`
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

type JanitorConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Store: StoreConfig{
			Type:      StoreRedis,
			KeyPrefix: "paste",
			OpTimeout: 3 * time.Second,
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
			Bolt:   FileConfig{Path: "./pastebin.db"},
			SQLite: FileConfig{Path: "./pastebin.sqlite"},
		},
		IDs: IDConfig{Length: 10},
		RateLimit: RateLimitConfig{
			Enabled:   false,
			PerSecond: 5,
			Burst:     10,
		},
		Janitor: JanitorConfig{Interval: time.Minute},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load applies defaults, then the YAML file at path if it exists, then the
// environment, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, err
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File not found is OK, use defaults
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

func (c *Config) loadFromEnv() {
	// Server
	if v := os.Getenv("ADDR"); v != "" {
		c.Server.Addr = v
	} else if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Addr = fmt.Sprintf(":%d", port)
		}
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("BEHIND_PROXY"); v != "" {
		c.Server.BehindProxy = truthy(v)
	}

	// Store
	if v := os.Getenv("STORE_TYPE"); v != "" {
		c.Store.Type = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Store.Redis.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Store.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Store.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Store.Redis.DB = db
		}
	}
	if v := os.Getenv("BOLT_PATH"); v != "" {
		c.Store.Bolt.Path = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Store.SQLite.Path = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Store.Postgres.DSN = v
	}
	if v := os.Getenv("STORE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Store.OpTimeout = d
		}
	}

	if v := os.Getenv("RATE_LIMIT_ENABLED"); v != "" {
		c.RateLimit.Enabled = truthy(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("TEST_MODE"); v != "" {
		c.TestMode = truthy(v)
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server addr is required")
	}

	switch c.Store.Type {
	case StoreRedis:
		if c.Store.Redis.URL == "" && c.Store.Redis.Addr == "" {
			return fmt.Errorf("redis url or addr is required when store type is 'redis'")
		}
	case StoreBolt:
		if c.Store.Bolt.Path == "" {
			return fmt.Errorf("bolt path is required when store type is 'bolt'")
		}
	case StoreSQLite:
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required when store type is 'sqlite'")
		}
	case StorePostgres:
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("postgres dsn is required when store type is 'postgres'")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("invalid store type: %s (must be one of redis, bolt, sqlite, postgres, memory)", c.Store.Type)
	}

	if c.Store.OpTimeout <= 0 {
		return fmt.Errorf("store op_timeout must be positive")
	}

	if c.IDs.Length < 6 {
		return fmt.Errorf("ids length must be at least 6")
	}

	if c.RateLimit.Enabled && (c.RateLimit.PerSecond <= 0 || c.RateLimit.Burst < 1) {
		return fmt.Errorf("rate_limit per_second and burst must be positive when enabled")
	}

	if c.Janitor.Interval < 0 {
		return fmt.Errorf("janitor interval must not be negative")
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'text' or 'json')", c.Log.Format)
	}

	return nil
}

// SlogLevel maps the configured level name onto slog.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("invalid log level: %s", l.Level)
	}
	return level, nil
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

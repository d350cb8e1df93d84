package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, StoreRedis, cfg.Store.Type)
	assert.Equal(t, 10, cfg.IDs.Length)
	assert.Equal(t, "paste", cfg.Store.KeyPrefix)
	assert.False(t, cfg.TestMode)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
  base_url: "https://paste.example.com"
store:
  type: bolt
  op_timeout: 500ms
  bolt:
    path: /tmp/p.db
janitor:
  interval: 30s
log:
  level: debug
  format: json
test_mode: true
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "https://paste.example.com", cfg.Server.BaseURL)
	assert.Equal(t, StoreBolt, cfg.Store.Type)
	assert.Equal(t, 500*time.Millisecond, cfg.Store.OpTimeout)
	assert.Equal(t, "/tmp/p.db", cfg.Store.Bolt.Path)
	assert.Equal(t, 30*time.Second, cfg.Janitor.Interval)
	assert.True(t, cfg.TestMode)

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("STORE_TYPE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/pastes?sslmode=disable")
	t.Setenv("TEST_MODE", "1")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, StorePostgres, cfg.Store.Type)
	assert.Equal(t, "postgres://localhost/pastes?sslmode=disable", cfg.Store.Postgres.DSN)
	assert.True(t, cfg.TestMode)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown store":     func(c *Config) { c.Store.Type = "etcd" },
		"postgres sans dsn": func(c *Config) { c.Store.Type = StorePostgres },
		"zero timeout":      func(c *Config) { c.Store.OpTimeout = 0 },
		"short ids":         func(c *Config) { c.IDs.Length = 3 },
		"bad log level":     func(c *Config) { c.Log.Level = "loud" },
		"bad log format":    func(c *Config) { c.Log.Format = "xml" },
		"bad rate limit": func(c *Config) {
			c.RateLimit.Enabled = true
			c.RateLimit.Burst = 0
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

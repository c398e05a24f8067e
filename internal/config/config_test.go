package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "weather.db", cfg.Database.Path)
	assert.Equal(t, "https://www.jma.go.jp/bosai", cfg.JMA.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.JMA.Timeout)
	assert.Equal(t, "area.json", cfg.Catalog.AreaFile)
	assert.True(t, cfg.Cache.FreshnessEnabled)
	assert.Equal(t, 5*time.Second, cfg.Cache.FetchWait)
	assert.Equal(t, "jma-forecast-updates", cfg.Kafka.Topic)
	assert.False(t, cfg.Kafka.Enabled())
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("JMA_BASE_URL", "http://localhost:8081/bosai/")
	t.Setenv("CACHE_FRESHNESS_ENABLED", "false")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.DatabaseOptions().Driver)
	assert.Equal(t, "db.internal", cfg.DatabaseOptions().Host)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "http://localhost:8081/bosai", cfg.JMA.BaseURL)
	assert.False(t, cfg.Cache.FreshnessEnabled)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
}

func TestLoadConfig_DotEnvFile(t *testing.T) {
	// t.Setenv restores the variable afterwards; godotenv only fills unset ones.
	t.Setenv("AREA_FILE", "")
	require.NoError(t, os.Unsetenv("AREA_FILE"))

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("AREA_FILE=/data/area.json\n"), 0o644))

	cfg, err := LoadConfig(envFile)
	require.NoError(t, err)
	assert.Equal(t, "/data/area.json", cfg.Catalog.AreaFile)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{key: "SERVER_PORT", value: "eighty"},
		{key: "JMA_TIMEOUT", value: "soon"},
		{key: "CACHE_FRESHNESS_ENABLED", value: "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, errMsg: "SERVER_PORT"},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, errMsg: "DB_DRIVER"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Database.Path = "" }, errMsg: "DB_PATH"},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "verbose" }, errMsg: "LOG_LEVEL"},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, errMsg: "LOG_FORMAT"},
		{name: "zero timeout", mutate: func(c *Config) { c.JMA.Timeout = 0 }, errMsg: "JMA_TIMEOUT"},
		{name: "bad zone", mutate: func(c *Config) { c.Cache.TimeZone = "Mars/Olympus" }, errMsg: "CACHE_TIMEZONE"},
		{name: "kafka without topic", mutate: func(c *Config) {
			c.Kafka.Brokers = []string{"localhost:9092"}
			c.Kafka.Topic = ""
		}, errMsg: "KAFKA_TOPIC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

package main

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10, cfg.PoolSize)
	assert.Equal(t, 1000, cfg.RetryBackoffMs)
	assert.True(t, cfg.Scheduler)
	assert.NotEmpty(t, cfg.DBPath)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FLOWGATE_DB_PATH", "/tmp/fg.db")
	t.Setenv("FLOWGATE_LOG_LEVEL", "debug")
	t.Setenv("FLOWGATE_POOL_SIZE", "3")
	t.Setenv("FLOWGATE_RETRY_BACKOFF_MS", "250")
	t.Setenv("FLOWGATE_SCHEDULER", "false")

	cfg := loadConfig()
	assert.Equal(t, "/tmp/fg.db", cfg.DBPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3, cfg.PoolSize)
	assert.Equal(t, 250*time.Millisecond, cfg.retryBackoff())
	assert.False(t, cfg.Scheduler)
}

func TestEnvOverridesIgnoreBadNumbers(t *testing.T) {
	t.Setenv("FLOWGATE_POOL_SIZE", "many")
	cfg := loadConfig()
	assert.Equal(t, 10, cfg.PoolSize)
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logLevel("debug"))
	assert.Equal(t, slog.LevelWarn, logLevel("warn"))
	assert.Equal(t, slog.LevelError, logLevel("error"))
	assert.Equal(t, slog.LevelInfo, logLevel("info"))
	assert.Equal(t, slog.LevelInfo, logLevel("bogus"))
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_NAME", "tickets")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.App.Port)
	assert.True(t, cfg.App.IsDev())
	assert.Equal(t, 15*time.Minute, cfg.Engine.HoldTTL)
	assert.Equal(t, 60*time.Second, cfg.Engine.ReaperInterval)
	assert.Equal(t, 500, cfg.Engine.ReaperBatchSize)
	assert.Equal(t, 5*time.Second, cfg.Engine.Heartbeat)
	assert.True(t, cfg.Cache.Methods["GET"])
	assert.Equal(t, "localhost:6379", cfg.Redis.Address())

	dsn, err := cfg.DB.DataSource()
	require.NoError(t, err)
	assert.Equal(t, "app@tcp(127.0.0.1:3306)/tickets?charset=utf8mb4&parseTime=true&loc=UTC", dsn)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("DB_DSN", "file:dev.db")
	t.Setenv("HOLD_TTL", "2m")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Engine.HoldTTL)
	assert.Equal(t, "cache:6380", cfg.Redis.Address())
	assert.Equal(t, 1, cfg.RateLimit.Capacity)
	assert.Equal(t, 5*time.Second, cfg.RateLimit.TTL)
}

func TestLoadRejectsBadConfig(t *testing.T) {
	_, err := Load()
	assert.Error(t, err, "JWT_SECRET is required")

	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_DRIVER", "sqlite3")
	_, err = Load()
	assert.ErrorContains(t, err, "DB_DSN")

	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_DSN", "")
	_, err = Load()
	assert.ErrorContains(t, err, "unsupported")
}

func TestPartialLoadersSkipJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("DB_DSN", "file:dev.db")
	t.Setenv("ORDER_LOG_DIR", "/var/log/orders")

	_, db, err := LoadDB()
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", db.Driver)

	_, q, err := LoadQueue()
	require.NoError(t, err)
	assert.Equal(t, "/var/log/orders", q.LogDir)
	assert.Equal(t, "orders.created", q.Queue)

	_, err = Load()
	assert.Error(t, err)
}

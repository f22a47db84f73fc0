package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("OVERPASS_TIMEOUT", "")
	t.Setenv("MAX_PRICE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorePostgres, cfg.StoreBackend)
	assert.Equal(t, 10*time.Second, cfg.OverpassTimeout)
	assert.Equal(t, `"amenity"="fuel"`, cfg.POIFilter)
	assert.True(t, cfg.MaxPrice.IsZero())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "MEMORY")
	t.Setenv("OVERPASS_TIMEOUT", "7")
	t.Setenv("SNAP_RADIUS_METERS", "0")
	t.Setenv("MAX_PRICE", "25.5")
	t.Setenv("AUTO_MIGRATE", "no")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Equal(t, 7*time.Second, cfg.OverpassTimeout)
	assert.Zero(t, cfg.SnapRadiusMeters)
	assert.True(t, cfg.MaxPrice.Equal(decimal.RequireFromString("25.5")))
	assert.False(t, cfg.AutoMigrate)
	require.NoError(t, cfg.Validate())
}

func TestLoad_BadMaxPrice(t *testing.T) {
	t.Setenv("MAX_PRICE", "lots")
	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		StoreBackend:          "sqlite",
		OverpassURL:           "",
		OverpassTimeout:       0,
		OverpassRatePerSecond: 1,
		BulkBatchSize:         0,
		BulkConcurrency:       1,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_BACKEND")
	assert.Contains(t, err.Error(), "OVERPASS_URL")
	assert.Contains(t, err.Error(), "OVERPASS_TIMEOUT")
	assert.Contains(t, err.Error(), "BULK_BATCH_SIZE")
}

func TestValidate_PostgresNeedsUser(t *testing.T) {
	cfg := &Config{
		StoreBackend:          StorePostgres,
		OverpassURL:           DefaultOverpassURL,
		OverpassTimeout:       time.Second,
		OverpassRatePerSecond: 1,
		BulkBatchSize:         10,
		BulkConcurrency:       1,
		DBMaxConns:            20,
	}
	require.Error(t, cfg.Validate())
	cfg.DBUser = "postgres"
	require.NoError(t, cfg.Validate())
}

func TestLoad_PoolSettings(t *testing.T) {
	t.Setenv("DB_MAX_CONNS", "8")
	t.Setenv("DB_MIN_CONNS", "1")
	t.Setenv("DB_MAX_CONN_IDLE", "1m")
	t.Setenv("DB_MAX_CONN_LIFETIME", "")
	t.Setenv("DB_CONNECT_TIMEOUT", "3")

	cfg, err := Load()
	require.NoError(t, err)

	pool := cfg.Pool()
	assert.Equal(t, int32(8), pool.MaxConns)
	assert.Equal(t, int32(1), pool.MinConns)
	assert.Equal(t, time.Minute, pool.MaxConnIdleTime)
	assert.Equal(t, 5*time.Minute, pool.MaxConnLifetime)
	assert.Equal(t, 3*time.Second, pool.ConnectTimeout)
}

func TestValidate_PoolBounds(t *testing.T) {
	cfg := &Config{
		StoreBackend:          StorePostgres,
		DBUser:                "postgres",
		DBMaxConns:            2,
		DBMinConns:            5,
		OverpassURL:           DefaultOverpassURL,
		OverpassTimeout:       time.Second,
		OverpassRatePerSecond: 1,
		BulkBatchSize:         10,
		BulkConcurrency:       1,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_MIN_CONNS")

	cfg.DBMaxConns = 0
	assert.Contains(t, cfg.Validate().Error(), "DB_MAX_CONNS")
}

func TestDSN(t *testing.T) {
	cfg := &Config{DBUser: "u", DBPassword: "p", DBHost: "h", DBPort: 5433, DBName: "n"}
	assert.Equal(t, "postgres://u:p@h:5433/n?sslmode=disable", cfg.DSN())
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("X_DUR", "1500ms")
	assert.Equal(t, 1500*time.Millisecond, envDuration("X_DUR", time.Second))
	t.Setenv("X_DUR", "bogus")
	assert.Equal(t, time.Second, envDuration("X_DUR", time.Second))
}

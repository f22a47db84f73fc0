package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/kjannette/stationprice/internal/db"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

const DefaultOverpassURL = "https://overpass-api.de/api/interpreter"

type Config struct {
	// API
	APIPort            int
	CORSAllowOrigin    string
	WriteRatePerMinute int

	// Store
	StoreBackend string
	DBHost       string
	DBPort       int
	DBName       string
	DBUser       string
	DBPassword   string
	AutoMigrate  bool

	DBMaxConns        int
	DBMinConns        int
	DBMaxConnIdle     time.Duration
	DBMaxConnLifetime time.Duration
	DBConnectTimeout  time.Duration

	// POI feed
	OverpassURL           string
	OverpassTimeout       time.Duration
	OverpassRatePerSecond float64
	OverpassBurst         int
	OverpassMaxParallel   int
	POIFilter             string

	// Reconciler
	BulkBatchSize   int
	BulkConcurrency int

	// Write path
	SnapRadiusMeters float64
	MaxSightings     int
	MaxPrice         decimal.Decimal
	MaxChangePercent float64

	// Notifications
	WebhookURL string
	NotifyName string

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	maxPrice, err := envDecimal("MAX_PRICE", decimal.Zero)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		APIPort:            envInt("API_PORT", 3001),
		CORSAllowOrigin:    envStr("CORS_ALLOW_ORIGIN", "*"),
		WriteRatePerMinute: envInt("WRITE_RATE_PER_MINUTE", 60),

		StoreBackend: strings.ToLower(envStr("STORE_BACKEND", StorePostgres)),
		DBHost:       envStr("DB_HOST", "localhost"),
		DBPort:       envInt("DB_PORT", 5432),
		DBName:       envStr("DB_NAME", "stationprice"),
		DBUser:       envStr("DB_USER", ""),
		DBPassword:   envStr("DB_PASSWORD", ""),
		AutoMigrate:  envBool("AUTO_MIGRATE", true),

		DBMaxConns:        envInt("DB_MAX_CONNS", 20),
		DBMinConns:        envInt("DB_MIN_CONNS", 2),
		DBMaxConnIdle:     envDuration("DB_MAX_CONN_IDLE", 30*time.Second),
		DBMaxConnLifetime: envDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
		DBConnectTimeout:  envDuration("DB_CONNECT_TIMEOUT", 5*time.Second),

		OverpassURL:           envStr("OVERPASS_URL", DefaultOverpassURL),
		OverpassTimeout:       envDuration("OVERPASS_TIMEOUT", 10*time.Second),
		OverpassRatePerSecond: envFloat("OVERPASS_RATE_PER_SECOND", 1),
		OverpassBurst:         envInt("OVERPASS_BURST", 2),
		OverpassMaxParallel:   envInt("OVERPASS_MAX_PARALLEL", 2),
		POIFilter:             envStr("POI_FILTER", `"amenity"="fuel"`),

		BulkBatchSize:   envInt("BULK_BATCH_SIZE", 200),
		BulkConcurrency: envInt("BULK_CONCURRENCY", 4),

		SnapRadiusMeters: envFloat("SNAP_RADIUS_METERS", 15),
		MaxSightings:     envInt("MAX_SIGHTINGS", 50000),
		MaxPrice:         maxPrice,
		MaxChangePercent: envFloat("MAX_CHANGE_PERCENT", 0),

		WebhookURL: envStr("WEBHOOK_URL", ""),
		NotifyName: envStr("NOTIFY_NAME", "StationPrice"),

		LogLevel:  envStr("LOG_LEVEL", "info"),
		LogFormat: envStr("LOG_FORMAT", "console"),
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string

	switch c.StoreBackend {
	case StorePostgres:
		if c.DBUser == "" {
			errs = append(errs, "DB_USER is required for the postgres store")
		}
		if c.DBMaxConns <= 0 {
			errs = append(errs, "DB_MAX_CONNS must be positive")
		}
		if c.DBMinConns > c.DBMaxConns {
			errs = append(errs, "DB_MIN_CONNS must not exceed DB_MAX_CONNS")
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Sprintf("STORE_BACKEND must be %q or %q, got %q", StorePostgres, StoreMemory, c.StoreBackend))
	}
	if c.OverpassURL == "" {
		errs = append(errs, "OVERPASS_URL is required")
	}
	if c.OverpassTimeout <= 0 {
		errs = append(errs, "OVERPASS_TIMEOUT must be positive")
	}
	if c.OverpassRatePerSecond <= 0 {
		errs = append(errs, "OVERPASS_RATE_PER_SECOND must be positive")
	}
	if c.BulkBatchSize <= 0 {
		errs = append(errs, "BULK_BATCH_SIZE must be positive")
	}
	if c.BulkConcurrency <= 0 {
		errs = append(errs, "BULK_CONCURRENCY must be positive")
	}
	if c.SnapRadiusMeters < 0 {
		errs = append(errs, "SNAP_RADIUS_METERS must not be negative")
	}
	if c.MaxPrice.IsNegative() {
		errs = append(errs, "MAX_PRICE must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

// Warnings lists settings that are legal but probably unintended.
func (c *Config) Warnings() []string {
	var out []string
	if c.StoreBackend == StoreMemory {
		out = append(out, "STORE_BACKEND=memory: annotations are lost on restart")
	}
	if c.OverpassURL == DefaultOverpassURL && c.OverpassRatePerSecond > 2 {
		out = append(out, "OVERPASS_RATE_PER_SECOND above 2 against the public endpoint may get the client banned")
	}
	if c.MaxPrice.IsZero() && c.MaxChangePercent == 0 {
		out = append(out, "MAX_PRICE and MAX_CHANGE_PERCENT are both 0: no price plausibility checks")
	}
	return out
}

func (c *Config) Print() {
	fmt.Println("=== Station Price Map Configuration ===")
	fmt.Printf("API Port: %d\n", c.APIPort)
	fmt.Printf("Store: %s\n", c.StoreBackend)
	if c.StoreBackend == StorePostgres {
		fmt.Printf("  Database: %s:%d/%s\n", c.DBHost, c.DBPort, c.DBName)
		fmt.Printf("  Pool: %d-%d conns (idle %s, lifetime %s, connect %s)\n",
			c.DBMinConns, c.DBMaxConns, c.DBMaxConnIdle, c.DBMaxConnLifetime, c.DBConnectTimeout)
	}
	fmt.Println("--------------------------------------")
	fmt.Println("POI Feed:")
	fmt.Printf("  Endpoint: %s\n", c.OverpassURL)
	fmt.Printf("  Filter: %s\n", c.POIFilter)
	fmt.Printf("  Timeout: %s\n", c.OverpassTimeout)
	fmt.Printf("  Rate: %.2f req/s (burst %d, parallel %d)\n", c.OverpassRatePerSecond, c.OverpassBurst, c.OverpassMaxParallel)
	fmt.Println("--------------------------------------")
	fmt.Println("Reconciler / Write Path:")
	fmt.Printf("  Bulk batch: %d x %d concurrent\n", c.BulkBatchSize, c.BulkConcurrency)
	fmt.Printf("  Snap radius: %.1f m\n", c.SnapRadiusMeters)
	fmt.Printf("  Max price: %s\n", boolLabel(c.MaxPrice.IsPositive(), c.MaxPrice.String(), "off"))
	fmt.Printf("  Max change: %s\n", boolLabel(c.MaxChangePercent > 0, fmt.Sprintf("%.1f%%", c.MaxChangePercent), "off"))
	fmt.Printf("  Webhook: %s\n", boolLabel(c.WebhookURL != "", "configured", "not set"))
	fmt.Println("======================================")
}

// Pool converts the DB_* pool settings for db.Connect.
func (c *Config) Pool() db.PoolOptions {
	return db.PoolOptions{
		MaxConns:        int32(c.DBMaxConns),
		MinConns:        int32(c.DBMinConns),
		MaxConnIdleTime: c.DBMaxConnIdle,
		MaxConnLifetime: c.DBMaxConnLifetime,
		ConnectTimeout:  c.DBConnectTimeout,
	}
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "true" || v == "1" || v == "yes"
	}
	return fallback
}

// envDuration accepts Go durations ("10s") or a bare number of seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func envDecimal(key string, fallback decimal.Decimal) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}

// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds application configuration
type Config struct {
	DataDir             string // Base directory for portfolio.db and cache.db (always absolute)
	LogLevel            string
	Currency            string // ISO 4217 code used for display formatting
	OracleBaseURL       string // Empty uses the public Yahoo chart endpoint
	PriceSyncSchedule   string // Cron expression with seconds field
	PriceSyncPeriod     string // Lookback passed to the oracle, e.g. "1mo"
	StartingBalance     decimal.Decimal
	Port                int
	ValuationWindowDays int
	OracleRateLimit     int // Requests per second
	TradeMaxRetries     int
	OracleTimeout       time.Duration
	QuoteCacheTTL       time.Duration
	DevMode             bool
	Backup              *BackupConfig
}

// BackupConfig holds ledger backup settings. Backups are disabled unless a bucket is set.
type BackupConfig struct {
	Schedule        string
	Bucket          string
	Prefix          string
	Endpoint        string // Optional S3-compatible endpoint (R2, MinIO)
	Region          string
	AccessKeyID     string // Empty uses the default AWS credential chain
	SecretAccessKey string
	Retention       time.Duration // Older archives are rotated out; the newest three are always kept
}

// Enabled reports whether backups can run
func (b *BackupConfig) Enabled() bool {
	return b != nil && b.Bucket != ""
}

// Load reads configuration from .env and environment variables
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("PAPERTRADER_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	startingBalance, err := decimal.NewFromString(getEnv("STARTING_BALANCE", "100000"))
	if err != nil {
		return nil, fmt.Errorf("invalid STARTING_BALANCE: %w", err)
	}

	cfg := &Config{
		DataDir:             absDataDir,
		Port:                getEnvAsInt("PORT", 5050),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		DevMode:             getEnvAsBool("DEV_MODE", false),
		StartingBalance:     startingBalance,
		Currency:            getEnv("CURRENCY", "USD"),
		ValuationWindowDays: getEnvAsInt("VALUATION_WINDOW_DAYS", 30),
		OracleBaseURL:       getEnv("ORACLE_BASE_URL", ""),
		OracleTimeout:       getEnvAsDuration("ORACLE_TIMEOUT", 10*time.Second),
		OracleRateLimit:     getEnvAsInt("ORACLE_RATE_LIMIT", 5),
		QuoteCacheTTL:       getEnvAsDuration("QUOTE_CACHE_TTL", time.Minute),
		TradeMaxRetries:     getEnvAsInt("TRADE_MAX_RETRIES", 3),
		PriceSyncSchedule:   getEnv("PRICE_SYNC_SCHEDULE", "0 30 22 * * MON-FRI"),
		PriceSyncPeriod:     getEnv("PRICE_SYNC_PERIOD", "1mo"),
		Backup: &BackupConfig{
			Schedule:        getEnv("BACKUP_SCHEDULE", ""),
			Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
			Prefix:          getEnv("BACKUP_S3_PREFIX", "papertrader"),
			Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
			Region:          getEnv("BACKUP_S3_REGION", "auto"),
			AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
			Retention:       getEnvAsDuration("BACKUP_RETENTION", 30*24*time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// PortfolioDBPath is the ledger database file
func (c *Config) PortfolioDBPath() string {
	return filepath.Join(c.DataDir, "portfolio.db")
}

// CacheDBPath is the market-data cache database file
func (c *Config) CacheDBPath() string {
	return filepath.Join(c.DataDir, "cache.db")
}

// Validate checks that numeric settings are usable
func (c *Config) Validate() error {
	if !c.StartingBalance.IsPositive() {
		return fmt.Errorf("STARTING_BALANCE must be positive, got %s", c.StartingBalance)
	}
	if c.ValuationWindowDays <= 0 {
		return fmt.Errorf("VALUATION_WINDOW_DAYS must be positive, got %d", c.ValuationWindowDays)
	}
	if c.TradeMaxRetries <= 0 {
		return fmt.Errorf("TRADE_MAX_RETRIES must be positive, got %d", c.TradeMaxRetries)
	}
	if c.OracleTimeout <= 0 {
		return fmt.Errorf("ORACLE_TIMEOUT must be positive, got %s", c.OracleTimeout)
	}
	if c.OracleRateLimit <= 0 {
		return fmt.Errorf("ORACLE_RATE_LIMIT must be positive, got %d", c.OracleRateLimit)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

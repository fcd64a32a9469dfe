// Package config loads the service configuration from the environment
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment is the deployment stage
type Environment int

const (
	EnvDevelopment Environment = iota
	EnvStaging
	EnvProduction
	EnvTest
)

func (e Environment) String() string {
	switch e {
	case EnvStaging:
		return "staging"
	case EnvProduction:
		return "prod"
	case EnvTest:
		return "test"
	default:
		return "dev"
	}
}

// ParseEnvironment maps ENV values to an Environment
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dev", "development":
		return EnvDevelopment, nil
	case "staging":
		return EnvStaging, nil
	case "prod", "production":
		return EnvProduction, nil
	case "test":
		return EnvTest, nil
	default:
		return EnvDevelopment, fmt.Errorf("ENV must be one of: [dev staging prod test], got: %s", s)
	}
}

// Catalog drivers. DriverMemory has no source and is only accepted with ENV=test.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverTSV      = "tsv"
)

// DefaultTSVLocation is the export directory read by the tsv driver when
// CATALOG_DSN is not set
const DefaultTSVLocation = "catalog"

// Config holds all application configuration
type Config struct {
	Port             string
	Address          string
	Env              Environment
	LogLevel         string
	LogDir           string
	LogRetentionDays int   // Number of days to keep log files
	MaxLogFileSize   int64 // Maximum log file size in bytes
	MaxRequestBody   int64 // Maximum request body size in bytes
	MaxHeaderSize    int64 // Maximum header size in bytes

	// Matching
	MatchThreshold        float64
	ProvisionalConfidence int
	MinLineLength         int
	SortOffersByPrice     bool

	// Reimbursement and CHIFA
	RateEssential     float64
	RateChronic       float64
	RateOther         float64
	ChifaNumberLength int

	// Catalog source
	CatalogDriver       string
	CatalogDSN          string
	CatalogRefresh      time.Duration
	CatalogQueryTimeout time.Duration
}

// LoadDotEnv reads a .env file from the working directory, then from the
// executable directory. A missing file is not an error.
func LoadDotEnv() error {
	err := godotenv.Load()
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to parse .env: %w", err)
	}

	ex, err := os.Executable()
	if err != nil {
		return nil
	}
	err = godotenv.Load(filepath.Join(filepath.Dir(ex), ".env"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to parse .env: %w", err)
	}
	return nil
}

// Load loads and validates configuration from environment variables
func Load() (*Config, error) {
	env, err := ParseEnvironment(getEnvWithDefault("ENV", "dev"))
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: invalid ENV: %w", err)
	}

	cfg := &Config{
		Port:             getEnvWithDefault("PORT", "8000"),
		Address:          getEnvWithDefault("ADDRESS", "127.0.0.1"),
		Env:              env,
		LogLevel:         strings.ToLower(getEnvWithDefault("LOG_LEVEL", "info")),
		LogDir:           getEnvWithDefault("LOG_DIR", "logs"),
		LogRetentionDays: getIntEnvWithDefault("LOG_RETENTION_DAYS", 28),
		MaxLogFileSize:   getInt64EnvWithDefault("MAX_LOG_FILE_SIZE", 104857600), // 100MB default
		MaxRequestBody:   getInt64EnvWithDefault("MAX_REQUEST_BODY", 1048576),    // 1MB default
		MaxHeaderSize:    getInt64EnvWithDefault("MAX_HEADER_SIZE", 1048576),     // 1MB default

		MatchThreshold:        getFloatEnvWithDefault("MATCH_THRESHOLD", 0.8),
		ProvisionalConfidence: getIntEnvWithDefault("PROVISIONAL_CONFIDENCE", 70),
		MinLineLength:         getIntEnvWithDefault("MIN_LINE_LENGTH", 3),
		SortOffersByPrice:     getBoolEnvWithDefault("SORT_OFFERS_BY_PRICE", false),

		RateEssential:     getFloatEnvWithDefault("RATE_ESSENTIAL", 0.80),
		RateChronic:       getFloatEnvWithDefault("RATE_CHRONIC", 1.00),
		RateOther:         getFloatEnvWithDefault("RATE_OTHER", 0.80),
		ChifaNumberLength: getIntEnvWithDefault("CHIFA_NUMBER_LENGTH", 10),

		CatalogDriver:       strings.ToLower(getEnvWithDefault("CATALOG_DRIVER", DriverTSV)),
		CatalogDSN:          os.Getenv("CATALOG_DSN"),
		CatalogRefresh:      getDurationEnvWithDefault("CATALOG_REFRESH", 30*time.Minute),
		CatalogQueryTimeout: getDurationEnvWithDefault("CATALOG_QUERY_TIMEOUT", 2*time.Second),
	}

	if cfg.CatalogDriver == DriverTSV && cfg.CatalogDSN == "" {
		cfg.CatalogDSN = DefaultTSVLocation
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// validateConfig validates all configuration values
func validateConfig(cfg *Config) error {
	if err := validatePort(cfg.Port); err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}

	if err := validateAddress(cfg.Address); err != nil {
		return fmt.Errorf("invalid ADDRESS: %w", err)
	}

	if err := validateLogLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	if err := validateSizeLimit(cfg.MaxRequestBody, "MAX_REQUEST_BODY"); err != nil {
		return fmt.Errorf("invalid MAX_REQUEST_BODY: %w", err)
	}

	if err := validateSizeLimit(cfg.MaxHeaderSize, "MAX_HEADER_SIZE"); err != nil {
		return fmt.Errorf("invalid MAX_HEADER_SIZE: %w", err)
	}

	if err := validateLogRetentionDays(cfg.LogRetentionDays); err != nil {
		return fmt.Errorf("invalid LOG_RETENTION_DAYS: %w", err)
	}

	if err := validateMaxLogFileSize(cfg.MaxLogFileSize); err != nil {
		return fmt.Errorf("invalid MAX_LOG_FILE_SIZE: %w", err)
	}

	if cfg.MatchThreshold < 0 || cfg.MatchThreshold >= 1 {
		return fmt.Errorf("invalid MATCH_THRESHOLD: must be in [0, 1), got: %v", cfg.MatchThreshold)
	}

	if cfg.ProvisionalConfidence < 0 || cfg.ProvisionalConfidence > 100 {
		return fmt.Errorf("invalid PROVISIONAL_CONFIDENCE: must be in [0, 100], got: %d", cfg.ProvisionalConfidence)
	}

	if cfg.MinLineLength < 1 || cfg.MinLineLength > 50 {
		return fmt.Errorf("invalid MIN_LINE_LENGTH: must be in [1, 50], got: %d", cfg.MinLineLength)
	}

	for name, rate := range map[string]float64{
		"RATE_ESSENTIAL": cfg.RateEssential,
		"RATE_CHRONIC":   cfg.RateChronic,
		"RATE_OTHER":     cfg.RateOther,
	} {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("invalid %s: must be in [0, 1], got: %v", name, rate)
		}
	}

	if cfg.ChifaNumberLength < 6 || cfg.ChifaNumberLength > 20 {
		return fmt.Errorf("invalid CHIFA_NUMBER_LENGTH: must be in [6, 20], got: %d", cfg.ChifaNumberLength)
	}

	if err := validateCatalog(cfg); err != nil {
		return err
	}

	return nil
}

func validateCatalog(cfg *Config) error {
	switch cfg.CatalogDriver {
	case DriverMemory:
		if cfg.Env != EnvTest {
			return fmt.Errorf("invalid CATALOG_DRIVER: %s has no catalog source and is only allowed with ENV=test", DriverMemory)
		}
	case DriverSQLite, DriverPostgres, DriverTSV:
		if cfg.CatalogDSN == "" {
			return fmt.Errorf("invalid CATALOG_DSN: required for driver %s", cfg.CatalogDriver)
		}
	default:
		return fmt.Errorf("invalid CATALOG_DRIVER: must be one of [memory sqlite3 postgres tsv], got: %s", cfg.CatalogDriver)
	}

	if cfg.CatalogRefresh < time.Minute {
		return fmt.Errorf("invalid CATALOG_REFRESH: must be at least 1m, got: %s", cfg.CatalogRefresh)
	}

	if cfg.CatalogQueryTimeout <= 0 || cfg.CatalogQueryTimeout > time.Minute {
		return fmt.Errorf("invalid CATALOG_QUERY_TIMEOUT: must be in (0, 1m], got: %s", cfg.CatalogQueryTimeout)
	}

	return nil
}

// validatePort validates the PORT environment variable
func validatePort(port string) error {
	if port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid number: %w", err)
	}

	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}

	if portNum < 1024 {
		return fmt.Errorf("PORT %d is privileged (less than 1024), use ports 1024-65535", portNum)
	}

	return nil
}

// validateAddress validates the ADDRESS environment variable
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("ADDRESS cannot be empty")
	}

	if address == "localhost" {
		return nil
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return fmt.Errorf("ADDRESS must be a valid IP address or 'localhost', got: %s", address)
	}

	if !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsUnspecified() {
		return fmt.Errorf("ADDRESS %s is a public IP, consider using private network ranges for security", address)
	}

	return nil
}

// validateLogLevel validates the LOG_LEVEL environment variable
func validateLogLevel(logLevel string) error {
	switch logLevel {
	case "debug", "info", "warn", "error":
		return nil
	case "":
		return fmt.Errorf("LOG_LEVEL cannot be empty")
	default:
		return fmt.Errorf("LOG_LEVEL must be one of: [debug info warn error], got: %s", logLevel)
	}
}

// validateSizeLimit validates size limit configuration values
func validateSizeLimit(size int64, configName string) error {
	if size <= 0 {
		return fmt.Errorf("%s must be positive, got: %d", configName, size)
	}

	if size > 100*1024*1024 {
		return fmt.Errorf("%s is too large (max 100MB), got: %d bytes", configName, size)
	}

	return nil
}

func validateLogRetentionDays(days int) error {
	if days <= 0 {
		return fmt.Errorf("LOG_RETENTION_DAYS must be positive, got: %d", days)
	}

	if days > 365 {
		return fmt.Errorf("LOG_RETENTION_DAYS is too large (max 365 days), got: %d", days)
	}

	return nil
}

func validateMaxLogFileSize(size int64) error {
	if size < 1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too small (min 1MB), got: %d bytes", size)
	}

	if size > 1024*1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too large (max 1GB), got: %d bytes", size)
	}

	return nil
}

// getEnvWithDefault gets an environment variable with a default value
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnvWithDefault gets an environment variable as int with a default value
func getIntEnvWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getInt64EnvWithDefault gets an environment variable as int64 with a default value
func getInt64EnvWithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnvWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnvWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnvWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// GetEnvVars returns a list of all expected environment variables
func GetEnvVars() []string {
	return []string{
		"PORT", "ADDRESS", "ENV", "LOG_LEVEL", "LOG_DIR", "LOG_RETENTION_DAYS",
		"MAX_LOG_FILE_SIZE", "MAX_REQUEST_BODY", "MAX_HEADER_SIZE",
		"MATCH_THRESHOLD", "PROVISIONAL_CONFIDENCE", "MIN_LINE_LENGTH", "SORT_OFFERS_BY_PRICE",
		"RATE_ESSENTIAL", "RATE_CHRONIC", "RATE_OTHER", "CHIFA_NUMBER_LENGTH",
		"CATALOG_DRIVER", "CATALOG_DSN", "CATALOG_REFRESH", "CATALOG_QUERY_TIMEOUT",
	}
}

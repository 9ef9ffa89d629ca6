package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis (optional hot layer in front of the cache tables)
	Redis RedisConfig

	// Price providers
	Providers ProviderConfig

	// Outbound call limits
	RateLimit RateLimitConfig

	// Analytics defaults
	Analytics AnalyticsConfig

	// Per-job cron overrides, keyed by job name (CRON_<JOB_NAME>)
	Schedules map[string]string

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// ProviderConfig selects and authenticates the price providers
type ProviderConfig struct {
	Mode              string // alphavantage, twelvedata, yahoo, multi
	TwelveDataAPIKey  string
	TwelveDataBaseURL string
	AlphaVantageKey   string
	AlphaVantageURL   string
	YahooBaseURL      string
	RequestTimeout    time.Duration
	TwelveDataDaily   int // daily request quota, 0 = unlimited
	AlphaVantageDaily int
}

// RateLimitConfig bounds outbound provider calls
type RateLimitConfig struct {
	MaxConcurrent     int
	RequestsPerMinute int
}

// AnalyticsConfig holds defaults for the analytics jobs
type AnalyticsConfig struct {
	RiskFreeRate    float64
	BenchmarkTicker string
	LookbackDays    int
	RegimeLookback  int
	HMMMarket       string
}

// Provider modes accepted by PRICE_PROVIDER
const (
	ProviderAlphaVantage = "alphavantage"
	ProviderTwelveData   = "twelvedata"
	ProviderYahoo        = "yahoo"
	ProviderMulti        = "multi"
)

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		// Price providers (multi = Twelve Data → Alpha Vantage → Yahoo)
		Providers: ProviderConfig{
			Mode:              strings.ToLower(getEnv("PRICE_PROVIDER", ProviderMulti)),
			TwelveDataAPIKey:  getEnv("TWELVE_DATA_API_KEY", ""),
			TwelveDataBaseURL: getEnv("TWELVE_DATA_BASE_URL", "https://api.twelvedata.com"),
			AlphaVantageKey:   getEnv("ALPHA_VANTAGE_API_KEY", ""),
			AlphaVantageURL:   getEnv("ALPHA_VANTAGE_BASE_URL", "https://www.alphavantage.co"),
			YahooBaseURL:      getEnv("YAHOO_BASE_URL", "https://query1.finance.yahoo.com"),
			RequestTimeout:    getEnvAsDuration("PROVIDER_TIMEOUT", "30s"),
			TwelveDataDaily:   getEnvAsInt("TWELVE_DATA_DAILY_QUOTA", 800), // free tier
			AlphaVantageDaily: getEnvAsInt("ALPHA_VANTAGE_DAILY_QUOTA", 25),
		},

		// Outbound call limits
		RateLimit: RateLimitConfig{
			MaxConcurrent:     getEnvAsInt("RATE_LIMIT_MAX_CONCURRENT", 3),
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_RPM", 8),
		},

		// Analytics
		Analytics: AnalyticsConfig{
			RiskFreeRate:    getEnvAsFloat("RISK_FREE_RATE", 0.045),
			BenchmarkTicker: strings.ToUpper(getEnv("BENCHMARK_TICKER", "SPY")),
			LookbackDays:    getEnvAsInt("RISK_LOOKBACK_DAYS", 90),
			RegimeLookback:  getEnvAsInt("REGIME_LOOKBACK_DAYS", 30),
			HMMMarket:       getEnv("HMM_MARKET", "US"),
		},

		Schedules: loadSchedules(),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Schedule returns the cron override for a job, or def when none is set
func (c *Config) Schedule(jobName, def string) string {
	if c.Schedules != nil {
		if expr, ok := c.Schedules[jobName]; ok && expr != "" {
			return expr
		}
	}
	return def
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	// Database URL is required
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	// Validate provider mode
	switch c.Providers.Mode {
	case ProviderAlphaVantage, ProviderTwelveData, ProviderYahoo, ProviderMulti:
	default:
		return fmt.Errorf("PRICE_PROVIDER must be one of: alphavantage, twelvedata, yahoo, multi")
	}

	if c.Analytics.RiskFreeRate < 0 || c.Analytics.RiskFreeRate >= 1 {
		return fmt.Errorf("RISK_FREE_RATE must be an annual fraction in [0, 1)")
	}

	if c.RateLimit.MaxConcurrent <= 0 || c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX_CONCURRENT and RATE_LIMIT_RPM must be positive")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadSchedules collects CRON_<JOB_NAME> variables
func loadSchedules() map[string]string {
	schedules := make(map[string]string)
	for _, kv := range os.Environ() {
		// CRON_REFRESH_PRICES=... → refresh_prices
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, "CRON_") || value == "" {
			continue
		}
		schedules[strings.ToLower(strings.TrimPrefix(key, "CRON_"))] = value
	}
	return schedules
}

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env",         // Current directory
		"backend/.env", // From project root
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported exchange backends.
const (
	ExchangeKraken  = "kraken"
	ExchangeBinance = "binance"
)

// Config holds all application configuration. It is loaded once at startup
// and passed into constructors as an immutable value; nothing reads the
// process environment after LoadConfig returns.
type Config struct {
	// Exchange selection
	Exchange string // "kraken" (default) or "binance"

	// Kraken API
	KrakenAPIKey    string
	KrakenAPISecret string

	// Binance API (only used when Exchange == "binance")
	BinanceAPIKey    string
	BinanceAPISecret string
	BinanceTestnet   bool

	// Trading Parameters
	BaseCurrency    string        // quote currency for pairs, e.g. "USD"
	PollInterval    time.Duration // sleep between reconciliation cycles
	DryRun          bool          // simulate sells without exchange effect
	StopLossPct     float64       // negative percent, default -3.0
	ArmThresholdPct float64       // positive percent, default 5.0
	TrailingDropPct float64       // positive percent, default 3.0
	FeeBufferPct    float64       // non-negative percent, default 0.5

	// Ledger store
	DBPath string

	// Logging
	LogLevel string
	LogFile  string // optional rotated log file

	// Metrics
	MetricsAddr string // optional; empty disables the /metrics endpoint

	// Cycle retry backoff
	RetryMinDelay time.Duration
	RetryMaxDelay time.Duration
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	cfg.Exchange = strings.ToLower(getEnv("EXCHANGE", ExchangeKraken))
	switch cfg.Exchange {
	case ExchangeKraken:
		cfg.KrakenAPIKey = getEnv("KRAKEN_API_KEY", "")
		cfg.KrakenAPISecret = getEnv("KRAKEN_API_SECRET", "")
		if cfg.KrakenAPIKey == "" {
			errs = append(errs, "KRAKEN_API_KEY must be set")
		}
		if cfg.KrakenAPISecret == "" {
			errs = append(errs, "KRAKEN_API_SECRET must be set")
		}
	case ExchangeBinance:
		cfg.BinanceAPIKey = getEnv("BINANCE_API_KEY", "")
		cfg.BinanceAPISecret = getEnv("BINANCE_API_SECRET", "")
		cfg.BinanceTestnet = getEnvAsBool("BINANCE_TESTNET", true) // Default to testnet for safety
		if cfg.BinanceAPIKey == "" {
			errs = append(errs, "BINANCE_API_KEY must be set")
		}
		if cfg.BinanceAPISecret == "" {
			errs = append(errs, "BINANCE_API_SECRET must be set")
		}
	default:
		errs = append(errs, fmt.Sprintf("EXCHANGE must be %q or %q, got %q", ExchangeKraken, ExchangeBinance, cfg.Exchange))
	}

	cfg.BaseCurrency = strings.ToUpper(getEnv("BASE_CURRENCY", "USD"))
	if cfg.BaseCurrency == "" {
		errs = append(errs, "BASE_CURRENCY must be set")
	}

	pollSeconds, err := getEnvAsIntRequired("POLL_INTERVAL_SECONDS", 60)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid POLL_INTERVAL_SECONDS: %v", err))
	} else if pollSeconds <= 0 {
		errs = append(errs, "POLL_INTERVAL_SECONDS must be positive")
	}
	cfg.PollInterval = time.Duration(pollSeconds) * time.Second

	cfg.DryRun = getEnvAsBool("DRY_RUN", false)

	cfg.StopLossPct, err = getEnvAsFloatRequired("STOP_LOSS_PCT", -3.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STOP_LOSS_PCT: %v", err))
	} else if cfg.StopLossPct >= 0 {
		errs = append(errs, "STOP_LOSS_PCT must be negative")
	}

	cfg.ArmThresholdPct, err = getEnvAsFloatRequired("ARM_THRESHOLD_PCT", 5.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid ARM_THRESHOLD_PCT: %v", err))
	} else if cfg.ArmThresholdPct <= 0 {
		errs = append(errs, "ARM_THRESHOLD_PCT must be positive")
	}

	cfg.TrailingDropPct, err = getEnvAsFloatRequired("TRAILING_DROP_PCT", 3.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TRAILING_DROP_PCT: %v", err))
	} else if cfg.TrailingDropPct <= 0 {
		errs = append(errs, "TRAILING_DROP_PCT must be positive")
	}

	cfg.FeeBufferPct, err = getEnvAsFloatRequired("FEE_BUFFER_PCT", 0.5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FEE_BUFFER_PCT: %v", err))
	} else if cfg.FeeBufferPct < 0 {
		errs = append(errs, "FEE_BUFFER_PCT cannot be negative")
	}

	cfg.DBPath = getEnv("DB_PATH", "./data/trailbot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFile = getEnv("LOG_FILE", "")
	cfg.MetricsAddr = getEnv("METRICS_ADDR", "")

	retryMinSeconds := getEnvAsInt("RETRY_MIN_DELAY_SECONDS", 5)
	retryMaxSeconds := getEnvAsInt("RETRY_MAX_DELAY_SECONDS", 300)
	if retryMinSeconds <= 0 {
		errs = append(errs, "RETRY_MIN_DELAY_SECONDS must be positive")
	}
	if retryMaxSeconds < retryMinSeconds {
		errs = append(errs, "RETRY_MAX_DELAY_SECONDS must be >= RETRY_MIN_DELAY_SECONDS")
	}
	cfg.RetryMinDelay = time.Duration(retryMinSeconds) * time.Second
	cfg.RetryMaxDelay = time.Duration(retryMaxSeconds) * time.Second

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
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

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Viperxl007/TradingStatsDashboard-sub001/internal/adapters/logger" // Import the logger package for LogLevel
	"github.com/Viperxl007/TradingStatsDashboard-sub001/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	// Binance API (optional; market data endpoints are public)
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Tracking Parameters
	Tickers        []string // Symbols to stream price data for
	CandleInterval string   // Candle interval driving trigger/exit checks (e.g., "1m")

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter

	// Connection Settings
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	// Tracking Parameters
	cfg.Tickers = parseTickers(getEnv("TICKERS", "ETHUSDT"))
	if len(cfg.Tickers) == 0 {
		errs = append(errs, "TICKERS must name at least one symbol")
	}

	cfg.CandleInterval = getEnv("CANDLE_INTERVAL", "1m")
	if cfg.CandleInterval == "" {
		errs = append(errs, "CANDLE_INTERVAL must be set")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/trade_tracker.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Connection Settings
	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 5)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// parseTickers splits a comma-separated symbol list, normalizing each entry
// and dropping empties and duplicates.
func parseTickers(raw string) []string {
	seen := make(map[string]bool)
	tickers := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		ticker := domain.NormalizeTicker(part)
		if ticker == "" || seen[ticker] {
			continue
		}
		seen[ticker] = true
		tickers = append(tickers, ticker)
	}
	return tickers
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

// Package config provides configuration management for the ledger reconciler.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ledger-reconciler/internal/types"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Networks  NetworksConfig
	Providers ProvidersConfig
	Client    ClientConfig
	Import    ImportConfig
	Balance   BalanceConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string
	Port string
}

// StoreConfig holds the embedded store configuration
type StoreConfig struct {
	Path string
}

// NetworksConfig holds the set of enabled networks
type NetworksConfig struct {
	Enabled []types.Network
}

// ProvidersConfig holds external data source configuration
type ProvidersConfig struct {
	// ChainAPIKey authenticates against the blockchain-data provider.
	// Required before any import or balance refresh.
	ChainAPIKey  string
	ChainBaseURL string
	PriceAPIKey  string
	PriceBaseURL string
}

// ClientConfig holds request client tuning
type ClientConfig struct {
	Timeout    time.Duration // per-call timeout (default: 30s)
	MaxRetries int           // transient failures retried this many times (default: 3)
	BaseDelay  time.Duration // adaptive throttle floor (default: 100ms)
	MaxDelay   time.Duration // adaptive throttle cap (default: 10s)
	RetryStep  time.Duration // linear extra wait per retry attempt (default: 500ms)
}

// ImportConfig holds import pipeline tuning
type ImportConfig struct {
	PageSize        int           // transfers requested per page (default: 1000)
	PriceTolerance  time.Duration // cache-hit window around a target timestamp (default: 5m)
	PriceLookback   time.Duration // series start before a transfer (default: 2m)
	PriceLookahead  time.Duration // series end after a transfer (default: 20m)
	PriceResolution time.Duration // series point spacing (default: 5m)
}

// BalanceConfig holds balance refresh configuration
type BalanceConfig struct {
	// DummyMode clears balances without calling any external source.
	// An explicit offline-testing toggle, not a fallback.
	DummyMode    bool
	SpotCacheTTL time.Duration
}

// RateLimitConfig holds inbound API rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env file is optional - environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "127.0.0.1"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Store: StoreConfig{
			Path: getEnv("STORE_PATH", "./data/ledger.db"),
		},
		Providers: ProvidersConfig{
			ChainAPIKey:  getEnv("CHAIN_API_KEY", ""),
			ChainBaseURL: getEnv("CHAIN_API_URL", "https://eth-mainnet.g.alchemy.com/v2"),
			PriceAPIKey:  getEnv("PRICE_API_KEY", ""),
			PriceBaseURL: getEnv("PRICE_API_URL", "https://min-api.cryptocompare.com"),
		},
		Client: ClientConfig{
			Timeout:    getEnvAsDuration("CLIENT_TIMEOUT", 30*time.Second),
			MaxRetries: getEnvAsInt("CLIENT_MAX_RETRIES", 3),
			BaseDelay:  getEnvAsDuration("CLIENT_BASE_DELAY", 100*time.Millisecond),
			MaxDelay:   getEnvAsDuration("CLIENT_MAX_DELAY", 10*time.Second),
			RetryStep:  getEnvAsDuration("CLIENT_RETRY_STEP", 500*time.Millisecond),
		},
		Import: ImportConfig{
			PageSize:        getEnvAsInt("IMPORT_PAGE_SIZE", 1000),
			PriceTolerance:  getEnvAsDuration("IMPORT_PRICE_TOLERANCE", 5*time.Minute),
			PriceLookback:   getEnvAsDuration("IMPORT_PRICE_LOOKBACK", 2*time.Minute),
			PriceLookahead:  getEnvAsDuration("IMPORT_PRICE_LOOKAHEAD", 20*time.Minute),
			PriceResolution: getEnvAsDuration("IMPORT_PRICE_RESOLUTION", 5*time.Minute),
		},
		Balance: BalanceConfig{
			DummyMode:    getEnvAsBool("BALANCE_DUMMY_MODE", false),
			SpotCacheTTL: getEnvAsDuration("BALANCE_SPOT_CACHE_TTL", 5*time.Minute),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsInt("API_RATE_LIMIT_RPS", 20),
			Burst:             getEnvAsInt("API_RATE_LIMIT_BURST", 40),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	config.Networks = loadNetworksConfig()

	return config, nil
}

// loadNetworksConfig parses the enabled network list
func loadNetworksConfig() NetworksConfig {
	raw := strings.Split(getEnv("ENABLED_NETWORKS", "ethereum"), ",")

	networks := make([]types.Network, 0, len(raw))
	for _, name := range raw {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		networks = append(networks, types.Network(name))
	}

	return NetworksConfig{Enabled: networks}
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

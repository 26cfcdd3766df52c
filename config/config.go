// Package config loads pipeline configuration from environment
// variables, with an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all app configuration
type Config struct {
	// Subgraph
	SubgraphURL        string `validate:"required,url"`
	SubgraphWindowMins int    `validate:"gt=0"`
	SubgraphBatchSize  int    `validate:"gt=0,lte=1000"`
	SubgraphMaxResults int    `validate:"gte=0"`
	SubgraphTimeout    int    `validate:"gt=0"` // seconds

	// CoinGecko
	CoingeckoAPIURL    string `validate:"required,url"`
	CoingeckoAPIKey    string
	CoingeckoMaxPerMin int `validate:"gt=0"`
	CoingeckoTimeout   int `validate:"gt=0"` // seconds

	// Retry
	MaxRetries     int `validate:"gt=0"`
	RetryBaseDelay int `validate:"gt=0"` // seconds
	RetryMaxDelay  int `validate:"gt=0"` // seconds

	// Outputs
	OutputDir string `validate:"required"`
	StateFile string `validate:"required"`
	MaxPairs  int    `validate:"gte=0"`

	// Mongo (optional secondary sink + API backing store)
	DatabaseURI  string
	DatabaseName string

	// API server
	APIEnabled bool
	APIPort    string

	// Redis price cache (optional)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPriceTTL int // seconds

	// Schedule. A cron expression; empty means run once and exit.
	RunSchedule string

	Debug bool
}

// Load reads configuration from the environment and validates it. A
// missing .env file is fine; explicit env vars always win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		// Subgraph
		SubgraphURL:        getEnv("SUBGRAPH_URL", ""),
		SubgraphWindowMins: getEnvAsInt("SUBGRAPH_WINDOW_MINUTES", 60),
		SubgraphBatchSize:  getEnvAsInt("SUBGRAPH_BATCH_SIZE", 100),
		SubgraphMaxResults: getEnvAsInt("SUBGRAPH_MAX_RESULTS", 1000),
		SubgraphTimeout:    getEnvAsInt("SUBGRAPH_TIMEOUT_SECONDS", 30),

		// CoinGecko
		CoingeckoAPIURL:    getEnv("COINGECKO_API_URL", "https://api.coingecko.com/api/v3"),
		CoingeckoAPIKey:    getEnv("COINGECKO_API_KEY", ""),
		CoingeckoMaxPerMin: getEnvAsInt("COINGECKO_MAX_REQUESTS_PER_MIN", 10),
		CoingeckoTimeout:   getEnvAsInt("COINGECKO_TIMEOUT_SECONDS", 15),

		// Retry
		MaxRetries:     getEnvAsInt("MAX_RETRIES", 3),
		RetryBaseDelay: getEnvAsInt("RETRY_BASE_DELAY_SECONDS", 2),
		RetryMaxDelay:  getEnvAsInt("RETRY_MAX_DELAY_SECONDS", 10),

		// Outputs
		OutputDir: getEnv("OUTPUT_DIR", "data"),
		StateFile: getEnv("STATE_FILE", "data/pipeline_state.json"),
		MaxPairs:  getEnvAsInt("MAX_PAIRS", 0),

		// Mongo
		DatabaseURI:  getEnv("DATABASE_URI", ""),
		DatabaseName: getEnv("DATABASE_NAME", "phoenix"),

		// API server
		APIEnabled: getEnvAsBool("API_ENABLED", false),
		APIPort:    getEnv("API_PORT", "8080"),

		// Redis
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		RedisPriceTTL: getEnvAsInt("REDIS_PRICE_TTL_SECONDS", 60),

		RunSchedule: getEnv("RUN_SCHEDULE", ""),

		Debug: getEnvAsBool("DEBUG", false),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Helper functions for parsing environment variables
func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	valStr := getEnv(key, "")
	if val, err := strconv.ParseBool(valStr); err == nil {
		return val
	}
	return defaultVal
}

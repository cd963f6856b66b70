package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"hyperview-gateway/internal/models"

	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig
	Hyperliquid HyperliquidConfig
	DexScreener DexScreenerConfig
	RateLimit   RateLimitConfig
	Synth       SynthConfig
	Service     ServiceConfig
	Redis       RedisConfig
	Cache       CacheConfig
	Markets     MarketsConfig
	Logging     LoggingConfig
}

type ServerConfig struct {
	HTTPPort    int
	Environment string
}

type HyperliquidConfig struct {
	BaseURL        string
	WSURL          string
	RequestTimeout time.Duration
}

type DexScreenerConfig struct {
	BaseURL           string
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	Burst             int
}

type RateLimitConfig struct {
	Window        time.Duration
	MaxRequests   int
	SweepInterval time.Duration
}

type SynthConfig struct {
	Volatility float64
}

type ServiceConfig struct {
	DefaultCandlesLimit int
	MaxCandlesLimit     int
	DefaultInterval     string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type CacheConfig struct {
	MarketTTL time.Duration
}

type MarketsConfig struct {
	TokensFile string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			HTTPPort:    getEnvInt("PORT", 3000),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Hyperliquid: HyperliquidConfig{
			BaseURL:        getEnv("HYPERLIQUID_API_URL", "https://api.hyperliquid.xyz"),
			WSURL:          getEnv("HYPERLIQUID_WS_URL", "wss://api.hyperliquid.xyz/ws"),
			RequestTimeout: parseDuration(getEnv("HYPERLIQUID_TIMEOUT", "10s"), 10*time.Second),
		},
		DexScreener: DexScreenerConfig{
			BaseURL:           getEnv("DEXSCREENER_API_URL", "https://api.dexscreener.com"),
			RequestTimeout:    parseDuration(getEnv("DEXSCREENER_TIMEOUT", "10s"), 10*time.Second),
			RequestsPerSecond: getEnvFloat("DEXSCREENER_RPS", 5),
			Burst:             getEnvInt("DEXSCREENER_BURST", 10),
		},
		RateLimit: RateLimitConfig{
			Window:        time.Duration(getEnvInt("RATE_LIMIT_WINDOW_MS", 60000)) * time.Millisecond,
			MaxRequests:   getEnvInt("RATE_LIMIT_MAX", 30),
			SweepInterval: parseDuration(getEnv("RATE_LIMIT_SWEEP_INTERVAL", "5m"), 5*time.Minute),
		},
		Synth: SynthConfig{
			Volatility: getEnvFloat("SYNTH_VOLATILITY", 0.02),
		},
		Service: ServiceConfig{
			DefaultCandlesLimit: getEnvInt("DEFAULT_CANDLES_LIMIT", 50),
			MaxCandlesLimit:     getEnvInt("MAX_CANDLES_LIMIT", 1000),
			DefaultInterval:     getEnv("DEFAULT_INTERVAL", "1h"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Cache: CacheConfig{
			MarketTTL: time.Duration(getEnvInt("CACHE_TTL_MARKET", 30)) * time.Second,
		},
		Markets: MarketsConfig{
			TokensFile: getEnv("TOKENS_FILE", "tokens.yaml"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 {
		return fmt.Errorf("PORT must be positive")
	}
	if c.Hyperliquid.BaseURL == "" {
		return fmt.Errorf("HYPERLIQUID_API_URL is required")
	}
	if c.Hyperliquid.WSURL == "" {
		return fmt.Errorf("HYPERLIQUID_WS_URL is required")
	}
	if c.DexScreener.BaseURL == "" {
		return fmt.Errorf("DEXSCREENER_API_URL is required")
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("rate limit window and max must be positive")
	}
	if c.Synth.Volatility <= 0 || c.Synth.Volatility >= 1 {
		return fmt.Errorf("SYNTH_VOLATILITY must be in (0, 1)")
	}
	valid := false
	for _, interval := range models.ValidIntervals() {
		if c.Service.DefaultInterval == interval {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("DEFAULT_INTERVAL must be one of %v", models.ValidIntervals())
	}
	return nil
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func parseDuration(s string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultValue
	}
	return d
}

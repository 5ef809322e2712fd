// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/sonnik/internal/domain"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Provider kinds.
const (
	ProviderOpenAI = "openai"
	ProviderGRPC   = "grpc"
	ProviderCanned = "canned"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string

	DBDriver    string
	DBPath      string
	DatabaseURL string

	Provider ProviderConfig
	History  HistoryConfig

	RateLimitRPS   float64
	RateLimitBurst int

	BotWebhookSecret string
	BotSessionTTL    time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	BcryptCost int

	// Locale selects prompt, stock reply and bot language.
	Locale domain.Locale

	ConversationLog ConversationLogConfig
}

// ProviderConfig configures the text-generation provider.
type ProviderConfig struct {
	Kind        string
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	Referer     string
	Title       string
	GRPCAddr    string
}

// HistoryConfig bounds how much of a conversation is read.
type HistoryConfig struct {
	ContextLimit int
	DisplayLimit int
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
	// MaxOpenFiles bounds the per-conversation files kept open at once.
	MaxOpenFiles int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		DBPath:      getEnv("DB_PATH", "./data/sonnik.db"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		Provider: ProviderConfig{
			Kind:        strings.ToLower(getEnv("PROVIDER", ProviderCanned)),
			BaseURL:     getEnv("PROVIDER_BASE_URL", "https://openrouter.ai/api/v1"),
			APIKey:      getEnv("PROVIDER_API_KEY", ""),
			Model:       getEnv("PROVIDER_MODEL", "deepseek/deepseek-chat-v3-0324"),
			MaxTokens:   getEnvInt("PROVIDER_MAX_TOKENS", 1000),
			Temperature: getEnvFloat("PROVIDER_TEMPERATURE", 0.7),
			Timeout:     getEnvDuration("PROVIDER_TIMEOUT", 30*time.Second),
			Referer:     getEnv("PROVIDER_REFERER", "https://sonnik.app"),
			Title:       getEnv("PROVIDER_TITLE", "Sonnik"),
			GRPCAddr:    getEnv("GENERATOR_GRPC_ADDR", ""),
		},
		History: HistoryConfig{
			ContextLimit: getEnvInt("HISTORY_CONTEXT_LIMIT", 6),
			DisplayLimit: getEnvInt("HISTORY_DISPLAY_LIMIT", 20),
		},
		RateLimitRPS:     getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:   getEnvInt("RATE_LIMIT_BURST", 20),
		BotWebhookSecret: getEnv("BOT_WEBHOOK_SECRET", ""),
		BotSessionTTL:    getEnvDuration("BOT_SESSION_TTL", 15*time.Minute),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		BcryptCost:       getEnvInt("BCRYPT_COST", 10),
		Locale:           domain.Locale(strings.ToLower(getEnv("LOCALE", string(domain.LocaleRU)))),
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
			MaxOpenFiles:  getEnvInt("CONVERSATION_LOG_MAX_OPEN_FILES", 64),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}

	switch c.Provider.Kind {
	case ProviderOpenAI:
		if c.Provider.APIKey == "" {
			return fmt.Errorf("PROVIDER_API_KEY is required when PROVIDER=openai")
		}
	case ProviderGRPC:
		if c.Provider.GRPCAddr == "" {
			return fmt.Errorf("GENERATOR_GRPC_ADDR is required when PROVIDER=grpc")
		}
	case ProviderCanned:
	default:
		return fmt.Errorf("unknown PROVIDER %q", c.Provider.Kind)
	}
	if c.Provider.MaxTokens <= 0 {
		return fmt.Errorf("PROVIDER_MAX_TOKENS must be > 0")
	}
	if c.Provider.Timeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be > 0")
	}
	if c.Provider.Temperature < 0 || c.Provider.Temperature > 2 {
		return fmt.Errorf("PROVIDER_TEMPERATURE must be between 0 and 2")
	}
	if !c.Locale.Valid() {
		return fmt.Errorf("unknown LOCALE %q", c.Locale)
	}

	if c.History.ContextLimit < 0 {
		return fmt.Errorf("HISTORY_CONTEXT_LIMIT must be >= 0")
	}
	if c.History.DisplayLimit <= 0 {
		return fmt.Errorf("HISTORY_DISPLAY_LIMIT must be > 0")
	}
	if c.BotSessionTTL <= 0 {
		return fmt.Errorf("BOT_SESSION_TTL must be > 0")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31")
	}

	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	if c.ConversationLog.MaxOpenFiles <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_MAX_OPEN_FILES must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// RateLimitEnabled reports whether per-client rate limiting is on.
func (c *Config) RateLimitEnabled() bool {
	return c.RateLimitRPS > 0 && c.RateLimitBurst > 0
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

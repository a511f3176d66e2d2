package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Gemini AI
	GeminiAPIKey         string
	GeminiModel          string
	GeminiConcurrentReqs int
	MaxOutputTokens      int
	Temperature          float64
	ChatTimeout          time.Duration
	MaxSteps             int

	// Rate limiting
	RateLimitPerMin int
	RedisURL        string

	// Logging
	LogFile     string
	LogLevel    string
	OTelEnabled bool

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:            getEnvOrDefault("PORT", "8080"),
		Env:             getEnvOrDefault("ENV", "development"),
		GeminiAPIKey:    firstEnv("GOOGLE_GENERATIVE_AI_API_KEY", "GEMINI_API_KEY"),
		GeminiModel:     getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		MaxOutputTokens: getEnvAsIntOrDefault("CHAT_MAX_OUTPUT_TOKENS", 1000),
		Temperature:     getEnvAsFloatOrDefault("CHAT_TEMPERATURE", 0.7),
		ChatTimeout:     time.Duration(getEnvAsIntOrDefault("CHAT_TIMEOUT_SECONDS", 30)) * time.Second,
		MaxSteps:        getEnvAsIntOrDefault("CHAT_MAX_STEPS", 5),
		RateLimitPerMin: getEnvAsIntOrDefault("RATE_LIMIT_PER_MINUTE", 20),
		RedisURL:        getEnvOrDefault("REDIS_URL", ""),
		LogFile:         getEnvOrDefault("LOG_FILE", ""),
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
		OTelEnabled:     getEnvAsBoolOrDefault("OTEL_ENABLED", false),
		FrontendURL:     getEnvOrDefault("FRONTEND_URL", "*"),

		GeminiConcurrentReqs: getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 5),
	}

	return cfg
}

// ProviderConfigured reports whether a model provider credential is set.
func (c *Config) ProviderConfigured() bool {
	return strings.TrimSpace(c.GeminiAPIKey) != ""
}

// firstEnv returns the first non-empty value among keys.
func firstEnv(keys ...string) string {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	return ""
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsFloatOrDefault(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

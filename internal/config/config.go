// Package config loads runtime configuration from the environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider identifies an LLM or embedding backend.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderOllama    Provider = "ollama"
	ProviderAnthropic Provider = "anthropic"
	ProviderBedrock   Provider = "bedrock"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// HTTP server
	ServerPort    string
	SessionTTL    time.Duration
	CookieSecure  bool
	AllowedOrigin string

	// Language model
	LLMProvider Provider
	LLMModel    string

	// Embeddings
	EmbedProvider  Provider
	EmbedModel     string
	EmbedDimension int

	// Provider credentials and endpoints
	OpenAIAPIKey    string
	AnthropicAPIKey string
	OllamaHost      string
	AWSRegion       string

	// Per-call deadlines
	LLMTimeout   time.Duration
	EmbedTimeout time.Duration
	StoreTimeout time.Duration

	// Context assembly
	HistoryWindow    int
	EchoLimit        int
	MemoryCandidates int
	EchoOrder        string
	SymbolsFile      string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "voss"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "voss"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		ServerPort:    getEnv("VOSS_SERVER_PORT", "5000"),
		SessionTTL:    getDuration("VOSS_SESSION_TTL", 7*24*time.Hour),
		CookieSecure:  getEnv("VOSS_COOKIE_SECURE", "false") == "true",
		AllowedOrigin: getEnv("VOSS_ALLOWED_ORIGIN", ""),

		LLMProvider: Provider(strings.ToLower(getEnv("VOSS_LLM_PROVIDER", string(ProviderOpenAI)))),
		LLMModel:    getEnv("VOSS_LLM_MODEL", "gpt-4"),

		EmbedProvider:  Provider(strings.ToLower(getEnv("VOSS_EMBED_PROVIDER", string(ProviderOpenAI)))),
		EmbedModel:     getEnv("VOSS_EMBED_MODEL", "text-embedding-ada-002"),
		EmbedDimension: getInt("VOSS_EMBED_DIMENSION", 1536),

		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		AWSRegion:       getEnv("AWS_REGION", "us-east-1"),

		LLMTimeout:   getDuration("VOSS_LLM_TIMEOUT", 60*time.Second),
		EmbedTimeout: getDuration("VOSS_EMBED_TIMEOUT", 15*time.Second),
		StoreTimeout: getDuration("VOSS_STORE_TIMEOUT", 10*time.Second),

		HistoryWindow:    getInt("VOSS_HISTORY_WINDOW", 20),
		EchoLimit:        getInt("VOSS_ECHO_LIMIT", 3),
		MemoryCandidates: getInt("VOSS_MEMORY_CANDIDATES", 0),
		EchoOrder:        strings.ToLower(getEnv("VOSS_ECHO_ORDER", "insertion")),
		SymbolsFile:      getEnv("VOSS_SYMBOLS_FILE", ""),

		LogFile:  getEnv("VOSS_LOG_FILE", "/tmp/voss.log"),
		LogLevel: parseLogLevel(getEnv("VOSS_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getInt falls back to defaultVal when the variable is unset or not a number.
func getInt(key string, defaultVal int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultVal
	}
	return n
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

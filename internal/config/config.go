package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// CasdoorConfig holds the identity provider connection settings.
type CasdoorConfig struct {
	Endpoint     string
	ClientID     string
	ClientSecret string
	Cert         string
	Organization string
	Application  string
}

// KafkaConfig holds the event bus settings. Publishing is disabled when no
// brokers are configured.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// SessionConfig holds the exam session engine knobs.
type SessionConfig struct {
	// MaxConcurrentSessions caps active sessions per user.
	MaxConcurrentSessions int
	// ViolationThreshold is the count at which a session is auto-submitted.
	ViolationThreshold int
	// AutoSubmitOnViolationLimit enables the threshold-triggered finalize.
	AutoSubmitOnViolationLimit bool
	// SyncInterval is the advisory client polling interval, returned on status calls.
	SyncInterval time.Duration
}

// RateLimitConfig holds the mutating-operation rate limit budget.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

type Config struct {
	Port        string
	Environment string
	LogLevel    slog.Level

	DatabaseURL string
	RedisURL    string

	Casdoor CasdoorConfig
	Kafka   KafkaConfig
	Session SessionConfig
	Rate    RateLimitConfig

	// EncryptionKey enables at-rest encryption of question/answer text when set.
	EncryptionKey string

	// BotVerifySecret enables the bot-verification gate on session start when set.
	BotVerifySecret   string
	BotVerifyEndpoint string
}

// LoadConfig reads configuration from the environment, with a best-effort
// .env file for local development.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    parseLogLevel(getEnv("LOG_LEVEL", "info")),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		Casdoor: CasdoorConfig{
			Endpoint:     os.Getenv("CASDOOR_ENDPOINT"),
			ClientID:     os.Getenv("CASDOOR_CLIENT_ID"),
			ClientSecret: os.Getenv("CASDOOR_CLIENT_SECRET"),
			Cert:         os.Getenv("CASDOOR_CERT"),
			Organization: os.Getenv("CASDOOR_ORGANIZATION"),
			Application:  os.Getenv("CASDOOR_APPLICATION"),
		},
		Kafka: KafkaConfig{
			Brokers: splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("KAFKA_TOPIC", "exam-session-events"),
		},
		Session: SessionConfig{
			MaxConcurrentSessions:      getEnvInt("SESSION_MAX_CONCURRENT", 1),
			ViolationThreshold:         getEnvInt("SESSION_VIOLATION_THRESHOLD", 10),
			AutoSubmitOnViolationLimit: getEnvBool("SESSION_AUTO_SUBMIT_ON_VIOLATIONS", true),
			SyncInterval:               time.Duration(getEnvInt("SESSION_SYNC_INTERVAL_SECONDS", 30)) * time.Second,
		},
		Rate: RateLimitConfig{
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 60),
			Window:   time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
		},
		EncryptionKey:     os.Getenv("TEXT_ENCRYPTION_KEY"),
		BotVerifySecret:   os.Getenv("BOT_VERIFY_SECRET"),
		BotVerifyEndpoint: getEnv("BOT_VERIFY_ENDPOINT", "https://challenges.cloudflare.com/turnstile/v0/siteverify"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Session.MaxConcurrentSessions < 1 {
		return nil, fmt.Errorf("SESSION_MAX_CONCURRENT must be at least 1")
	}
	if cfg.Session.ViolationThreshold < 1 {
		return nil, fmt.Errorf("SESSION_VIOLATION_THRESHOLD must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

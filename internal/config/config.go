package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            string
	DBUrl           string
	JWTSecret       string
	AppEnv          string
	LogLevel        string
	ChatSendRate    float64
	ChatSendBurst   int
	ShutdownTimeout time.Duration
	MetricsEnabled  bool
}

// ClientConfig configures the terminal chat client.
type ClientConfig struct {
	AppEnv            string
	LogLevel          string
	ServerURL         string
	Token             string
	HistoryLimit      int
	HeartbeatInterval time.Duration
	ReconnectBase     time.Duration
	ReconnectMax      time.Duration
	ReadAckDelay      time.Duration
}

// loadDotEnv reads .env when present and reports whether it was found.
func loadDotEnv() bool {
	return godotenv.Load() == nil
}

func LoadConfig() (*Config, error) {
	loadDotEnv()

	jwtSecret, exists := os.LookupEnv("JWT_SECRET")
	if !exists || jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	sendRate, err := getEnvFloat("CHAT_SEND_RATE", 5)
	if err != nil {
		return nil, err
	}
	sendBurst, err := getEnvInt("CHAT_SEND_BURST", 10)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:            getEnv("PORT", "8080"),
		DBUrl:           getEnv("DB_URL", ""),
		JWTSecret:       jwtSecret,
		AppEnv:          normalizeEnv(getEnv("APP_ENV", "production")),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ChatSendRate:    sendRate,
		ChatSendBurst:   sendBurst,
		ShutdownTimeout: shutdownTimeout,
		MetricsEnabled:  getEnvBool("ENABLE_METRICS", true),
	}, nil
}

func LoadClientConfig() (*ClientConfig, error) {
	loadDotEnv()

	historyLimit, err := getEnvInt("CHAT_HISTORY_LIMIT", 50)
	if err != nil {
		return nil, err
	}
	heartbeat, err := getEnvDuration("CHAT_HEARTBEAT_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}
	reconnectBase, err := getEnvDuration("CHAT_RECONNECT_BASE", time.Second)
	if err != nil {
		return nil, err
	}
	reconnectMax, err := getEnvDuration("CHAT_RECONNECT_MAX", 10*time.Second)
	if err != nil {
		return nil, err
	}
	readAck, err := getEnvDuration("CHAT_READ_ACK_DELAY", 500*time.Millisecond)
	if err != nil {
		return nil, err
	}

	return &ClientConfig{
		AppEnv:            normalizeEnv(getEnv("APP_ENV", "development")),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		ServerURL:         strings.TrimRight(getEnv("CHAT_SERVER_URL", "http://localhost:8080"), "/"),
		Token:             getEnv("CHAT_TOKEN", ""),
		HistoryLimit:      historyLimit,
		HeartbeatInterval: heartbeat,
		ReconnectBase:     reconnectBase,
		ReconnectMax:      reconnectMax,
		ReadAckDelay:      readAck,
	}, nil
}

// APIBaseURL is the REST prefix of the chat endpoints.
func (c *ClientConfig) APIBaseURL() string {
	return c.ServerURL + "/api/v1"
}

// WebSocketURL derives the streaming endpoint from the server URL.
func (c *ClientConfig) WebSocketURL() string {
	base := c.ServerURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/api/v1/ws"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
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

func getEnvInt(key string, fallback int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, value)
	}
	return parsed, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("%s must be a positive number, got %q", key, value)
	}
	return parsed, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, value)
	}
	return parsed, nil
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}

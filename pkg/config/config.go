package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the driftroom services.
type Config struct {
	Env string

	APIAddr     string
	GatewayAddr string

	RedisAddr    string
	KafkaBrokers []string
	KafkaTopic   string

	// RoomTTL is the fixed lifetime armed on every new room. Injected into
	// the store so tests can run with short lifetimes.
	RoomTTL time.Duration

	JWTSecret string

	// NodeID partitions the message ID space across API instances.
	NodeID int64
}

// Load reads configuration from environment variables. In development a
// .env file is loaded if present; in production the JWT secret is required.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Env:         getEnv("ENV", "development"),
		APIAddr:     getEnv("API_ADDR", ":8081"),
		GatewayAddr: getEnv("GATEWAY_ADDR", ":8080"),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		KafkaTopic:  getEnv("KAFKA_TOPIC", "room-events"),
		RoomTTL:     getDuration("ROOM_TTL", 10*time.Minute),
		JWTSecret:   getEnv("JWT_SECRET", "dev-secret"),
		NodeID:      getInt64("NODE_ID", 1),
	}

	for _, b := range strings.Split(getEnv("KAFKA_BROKERS", "localhost:19092"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
		}
	}

	if cfg.Env == "production" && os.Getenv("JWT_SECRET") == "" {
		panic("JWT_SECRET is required in production")
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return n
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"chatpay-wallet/pkg/db"
)

const (
	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"

	ModeSimulated = "simulated"
	ModeStatic    = "static"
	ModeHTTP      = "http"
)

// AppConfig holds all application-wide configurations.
type AppConfig struct {
	ServerPort string
	LogLevel   string
	DB         db.Config
	Lock       LockConfig
	Gateway    GatewayConfig
	Assistant  AssistantConfig
	PolicyFile string // optional YAML money policy
}

// LockConfig selects the per-account lock backend.
type LockConfig struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

// GatewayConfig selects the payment provider client.
type GatewayConfig struct {
	Mode      string
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

// AssistantConfig selects the generative reply client.
type AssistantConfig struct {
	Mode    string
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// LoadConfig loads configuration from environment variables, after merging
// a .env file from the working directory when one exists.
// It returns an AppConfig instance or an error if any variable is invalid.
func LoadConfig() (*AppConfig, error) {
	_ = godotenv.Load()

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	autoMigrate, err := strconv.ParseBool(getEnv("DB_AUTO_MIGRATE", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_AUTO_MIGRATE: %w", err)
	}
	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	lockTTL, err := getDuration("LOCK_TTL", 30*time.Second)
	if err != nil {
		return nil, err
	}
	gatewayTimeout, err := getDuration("GATEWAY_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	assistantTimeout, err := getDuration("ASSISTANT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &AppConfig{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		DB: db.Config{
			Driver:      getEnv("DB_DRIVER", db.DriverPostgres),
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        dbPort,
			User:        getEnv("DB_USER", "user"),
			Password:    getEnv("DB_PASSWORD", "password"),
			DBName:      getEnv("DB_NAME", "walletdb"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			SQLitePath:  getEnv("DB_SQLITE_PATH", "file:wallet.db"),
			AutoMigrate: autoMigrate,
		},
		Lock: LockConfig{
			Backend:       getEnv("LOCK_BACKEND", LockBackendMemory),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			RedisDB:       redisDB,
			TTL:           lockTTL,
		},
		Gateway: GatewayConfig{
			Mode:      getEnv("GATEWAY_MODE", ModeSimulated),
			BaseURL:   os.Getenv("GATEWAY_BASE_URL"),
			SecretKey: os.Getenv("GATEWAY_SECRET_KEY"),
			Timeout:   gatewayTimeout,
		},
		Assistant: AssistantConfig{
			Mode:    getEnv("ASSISTANT_MODE", ModeStatic),
			BaseURL: os.Getenv("ASSISTANT_BASE_URL"),
			APIKey:  os.Getenv("ASSISTANT_API_KEY"),
			Model:   getEnv("ASSISTANT_MODEL", "gpt-4o-mini"),
			Timeout: assistantTimeout,
		},
		PolicyFile: os.Getenv("POLICY_FILE"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	switch c.DB.Driver {
	case db.DriverPostgres, db.DriverSQLite:
	default:
		return fmt.Errorf("invalid DB_DRIVER %q: want %s or %s", c.DB.Driver, db.DriverPostgres, db.DriverSQLite)
	}
	switch c.Lock.Backend {
	case LockBackendMemory, LockBackendRedis:
	default:
		return fmt.Errorf("invalid LOCK_BACKEND %q: want %s or %s", c.Lock.Backend, LockBackendMemory, LockBackendRedis)
	}
	switch c.Gateway.Mode {
	case ModeSimulated:
	case ModeHTTP:
		if c.Gateway.BaseURL == "" {
			return fmt.Errorf("GATEWAY_BASE_URL is required when GATEWAY_MODE=http")
		}
	default:
		return fmt.Errorf("invalid GATEWAY_MODE %q", c.Gateway.Mode)
	}
	switch c.Assistant.Mode {
	case ModeStatic:
	case ModeHTTP:
		if c.Assistant.BaseURL == "" {
			return fmt.Errorf("ASSISTANT_BASE_URL is required when ASSISTANT_MODE=http")
		}
	default:
		return fmt.Errorf("invalid ASSISTANT_MODE %q", c.Assistant.Mode)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

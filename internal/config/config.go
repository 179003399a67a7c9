// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"credit-ledger/pkg/db"
)

// Store backends.
const (
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"
)

// Cache backends.
const (
	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"
	CacheBackendNone   = "none"
)

// AppConfig holds all application-wide configurations.
type AppConfig struct {
	ServerPort string
	LogLevel   string

	DB              db.Config
	AutoMigrate     bool
	StoreBackend    string
	StoreTimeout    time.Duration
	StartingBalance int64

	Cache CacheConfig
	Kafka KafkaConfig

	SendRatePerSec float64
	SendBurst      int

	TraceStdout bool
}

// CacheConfig configures the balance cache substrate.
type CacheConfig struct {
	Backend          string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	TTL              time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// KafkaConfig configures ledger event publication. Empty Brokers disables it.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// LoadConfig loads configuration from environment variables, after merging
// an optional .env file from the working directory.
// It returns an AppConfig instance or an error if any variable is invalid.
func LoadConfig() (*AppConfig, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	dbPort, err := intEnv("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}
	autoMigrate, err := boolEnv("DB_AUTO_MIGRATE", true)
	if err != nil {
		return nil, err
	}
	storeTimeout, err := durationEnv("STORE_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	startingBalance, err := intEnv("STARTING_BALANCE", 100)
	if err != nil {
		return nil, err
	}
	if startingBalance < 0 {
		return nil, fmt.Errorf("invalid STARTING_BALANCE: must not be negative")
	}
	redisDB, err := intEnv("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := durationEnv("CACHE_TTL", 300*time.Second)
	if err != nil {
		return nil, err
	}
	breakerThreshold, err := intEnv("CACHE_BREAKER_THRESHOLD", 5)
	if err != nil {
		return nil, err
	}
	breakerCooldown, err := durationEnv("CACHE_BREAKER_COOLDOWN", 30*time.Second)
	if err != nil {
		return nil, err
	}
	sendBurst, err := intEnv("SEND_BURST", 10)
	if err != nil {
		return nil, err
	}
	traceStdout, err := boolEnv("TRACE_STDOUT", false)
	if err != nil {
		return nil, err
	}

	sendRate := 5.0
	if v := os.Getenv("SEND_RATE_PER_SEC"); v != "" {
		sendRate, err = strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SEND_RATE_PER_SEC: %w", err)
		}
	}

	storeBackend := strings.ToLower(stringEnv("STORE_BACKEND", StoreBackendPostgres))
	switch storeBackend {
	case StoreBackendPostgres, StoreBackendMemory:
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND %q", storeBackend)
	}

	cacheBackend := strings.ToLower(stringEnv("CACHE_BACKEND", CacheBackendRedis))
	switch cacheBackend {
	case CacheBackendRedis, CacheBackendMemory, CacheBackendNone:
	default:
		return nil, fmt.Errorf("invalid CACHE_BACKEND %q", cacheBackend)
	}

	var brokers []string
	for _, b := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}

	return &AppConfig{
		ServerPort: stringEnv("SERVER_PORT", "8080"),
		LogLevel:   stringEnv("LOG_LEVEL", "info"),
		DB: db.Config{
			Host:     stringEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     stringEnv("DB_USER", "user"),
			Password: stringEnv("DB_PASSWORD", "password"),
			DBName:   stringEnv("DB_NAME", "ledgerdb"),
			SSLMode:  stringEnv("DB_SSLMODE", "disable"),
		},
		AutoMigrate:     autoMigrate,
		StoreBackend:    storeBackend,
		StoreTimeout:    storeTimeout,
		StartingBalance: int64(startingBalance),
		Cache: CacheConfig{
			Backend:          cacheBackend,
			RedisAddr:        stringEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword:    os.Getenv("REDIS_PASSWORD"),
			RedisDB:          redisDB,
			TTL:              cacheTTL,
			BreakerThreshold: breakerThreshold,
			BreakerCooldown:  breakerCooldown,
		},
		Kafka: KafkaConfig{
			Brokers: brokers,
			Topic:   stringEnv("KAFKA_TOPIC", "ledger_events"),
		},
		SendRatePerSec: sendRate,
		SendBurst:      sendBurst,
		TraceStdout:    traceStdout,
	}, nil
}

func stringEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func boolEnv(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

// durationEnv accepts Go durations ("300s", "5m") or a bare number of seconds.
func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// Storage backend selectors.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type Config struct {
	ListenAddr       string
	StorageBackend   string
	DBPath           string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	EngineURL        string
	EngineMaxRetries int
}

func Load() (*Config, error) {
	cfg := &Config{
		// Loopback by default: the popup is a local surface.
		ListenAddr:     getEnv("RESUMEWRIGHT_LISTEN_ADDR", "127.0.0.1:8420"),
		StorageBackend: getEnv("RESUMEWRIGHT_STORAGE", BackendSQLite),
		DBPath:         getEnv("RESUMEWRIGHT_DB_PATH", "resumewright.db"),
		RedisAddr:      getEnv("RESUMEWRIGHT_REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("RESUMEWRIGHT_REDIS_PASSWORD", ""),
		EngineURL:      getEnv("RESUMEWRIGHT_ENGINE_URL", "http://localhost:9090"),
	}

	if cfg.StorageBackend != BackendSQLite && cfg.StorageBackend != BackendRedis {
		return nil, fmt.Errorf("RESUMEWRIGHT_STORAGE %q must be %q or %q",
			cfg.StorageBackend, BackendSQLite, BackendRedis)
	}

	var err error
	cfg.RedisDB, err = getEnvInt("RESUMEWRIGHT_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("RESUMEWRIGHT_REDIS_DB: %w", err)
	}

	cfg.EngineMaxRetries, err = getEnvInt("RESUMEWRIGHT_ENGINE_MAX_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("RESUMEWRIGHT_ENGINE_MAX_RETRIES: %w", err)
	}
	if cfg.EngineMaxRetries < 0 {
		return nil, errors.New("RESUMEWRIGHT_ENGINE_MAX_RETRIES must be >= 0")
	}

	if cfg.EngineURL == "" {
		return nil, errors.New("RESUMEWRIGHT_ENGINE_URL must not be empty")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

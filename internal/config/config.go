// Package config reads process settings from the environment. main loads
// .env with godotenv before calling Load.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type StoreKind string

const (
	StorePostgres StoreKind = "postgres"
	StorePebble   StoreKind = "pebble"
	StoreMemory   StoreKind = "memory"
)

type Config struct {
	Port       string
	DBURL      string
	Store      StoreKind
	PebblePath string
	JWTSecret  string
	RedisAddr  string

	GCSBucket      string
	GCPCredentials string
	SnapshotDir    string

	HistoryLimit int
	PersistQueue int
	DBMigrate    bool
}

// Load reads the environment. Only malformed values are errors; missing
// ones fall back to defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getenv("PORT", "3000"),
		DBURL:          os.Getenv("DB_URL"),
		PebblePath:     getenv("PEBBLE_PATH", "data/chats"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		GCSBucket:      os.Getenv("GCS_BUCKET"),
		GCPCredentials: os.Getenv("GCP_SERVICE_ACCOUNT_CREDENTIALS"),
		SnapshotDir:    getenv("SNAPSHOT_DIR", "temp/images"),
	}

	switch store := StoreKind(strings.ToLower(os.Getenv("STORE"))); store {
	case "":
		cfg.Store = StoreMemory
		if cfg.DBURL != "" {
			cfg.Store = StorePostgres
		}
	case StorePostgres, StorePebble, StoreMemory:
		cfg.Store = store
	default:
		return nil, fmt.Errorf("STORE must be postgres, pebble or memory, got %q", store)
	}
	if cfg.Store == StorePostgres && cfg.DBURL == "" {
		return nil, fmt.Errorf("STORE=postgres requires DB_URL")
	}

	var err error
	if cfg.HistoryLimit, err = intEnv("HISTORY_LIMIT", 1000); err != nil {
		return nil, err
	}
	if cfg.PersistQueue, err = intEnv("PERSIST_QUEUE", 1024); err != nil {
		return nil, err
	}
	if cfg.DBMigrate, err = boolEnv("DB_MIGRATE", false); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}

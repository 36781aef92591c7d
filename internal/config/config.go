// Package config loads process settings from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds the settings shared by the api, worker and cli binaries.
type Config struct {
	Port         string
	DatabasePath string
	LogLevel     string
	LogFormat    string

	// Google Cloud. Empty values disable the matching integration.
	GCPProjectID          string
	GoogleCredentialsFile string
	GCSBucket             string
	GCSInboxPrefix        string
	BQDataset             string

	GeminiModel        string
	AICategoryFallback bool

	MaxUploadBytes int64
	MatchThreshold int
	CacheTTL       time.Duration
	WorkerCount    int
	PollInterval   time.Duration
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load reads .env when present and then the process environment.
func Load(log zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded, using process environment")
	}
	return FromLookup(os.LookupEnv, log)
}

// FromLookup builds a Config from lookup. Malformed optional values are
// logged and replaced by their defaults; out of range values are errors.
func FromLookup(lookup LookupFunc, log zerolog.Logger) (*Config, error) {
	e := env{lookup: lookup, log: log}

	cfg := &Config{
		Port:                  e.str("PORT", "8080"),
		DatabasePath:          e.str("DATABASE_PATH", "./reconciler.db"),
		LogLevel:              e.str("LOG_LEVEL", "info"),
		LogFormat:             e.str("LOG_FORMAT", "console"),
		GCPProjectID:          e.str("GCP_PROJECT_ID", ""),
		GoogleCredentialsFile: e.str("GOOGLE_CREDENTIALS_FILE", ""),
		GCSBucket:             e.str("GCS_BUCKET", ""),
		GCSInboxPrefix:        e.str("GCS_INBOX_PREFIX", "inbox/"),
		BQDataset:             e.str("BQ_DATASET", "reconciliation"),
		GeminiModel:           e.str("GEMINI_MODEL", "gemini-2.5-flash"),
		AICategoryFallback:    e.bool("AI_CATEGORY_FALLBACK", false),
		MaxUploadBytes:        e.int64("MAX_UPLOAD_BYTES", 10<<20),
		MatchThreshold:        e.int("MATCH_THRESHOLD", 60),
		CacheTTL:              e.duration("CACHE_TTL", 5*time.Minute),
		WorkerCount:           e.int("WORKER_COUNT", 5),
		PollInterval:          e.duration("POLL_INTERVAL", 30*time.Second),
	}

	if cfg.MatchThreshold < 0 || cfg.MatchThreshold > 100 {
		return nil, fmt.Errorf("MATCH_THRESHOLD must be between 0 and 100, got %d", cfg.MatchThreshold)
	}
	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", cfg.MaxUploadBytes)
	}
	return cfg, nil
}

// BigQueryEnabled reports whether completed batches should be exported.
func (c *Config) BigQueryEnabled() bool {
	return c.GCPProjectID != "" && c.BQDataset != ""
}

type env struct {
	lookup LookupFunc
	log    zerolog.Logger
}

func (e env) str(key, fallback string) string {
	if v, ok := e.lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func (e env) int(key string, fallback int) int {
	raw := e.str(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		e.invalid(key, raw, fallback, err)
		return fallback
	}
	return v
}

func (e env) int64(key string, fallback int64) int64 {
	raw := e.str(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		e.invalid(key, raw, fallback, err)
		return fallback
	}
	return v
}

func (e env) bool(key string, fallback bool) bool {
	raw := e.str(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		e.invalid(key, raw, fallback, err)
		return fallback
	}
	return v
}

func (e env) duration(key string, fallback time.Duration) time.Duration {
	raw := e.str(key, "")
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		e.invalid(key, raw, fallback, err)
		return fallback
	}
	return v
}

func (e env) invalid(key, raw string, fallback interface{}, err error) {
	e.log.Warn().
		Err(err).
		Str("key", key).
		Str("value", raw).
		Interface("default", fallback).
		Msg("Invalid environment value, using default")
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultTopic          = "environmental/measurements"
	defaultMinInterval    = 5 * time.Minute
	defaultRequestTimeout = 30 * time.Second
	defaultValueEpsilon   = 0.01
)

// Config holds runtime configuration for the publisher.
type Config struct {
	RedisAddr      string
	RedisPassword  string
	Topic          string
	Source         string
	MinInterval    time.Duration
	RequestTimeout time.Duration
	ValueEpsilon   float64
	LogLevel       string
	DryRun         bool
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Config{}

	dryRun := strings.TrimSpace(os.Getenv("DRY_RUN"))
	cfg.DryRun = dryRun == "1" || strings.EqualFold(dryRun, "true")

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if cfg.RedisAddr == "" && !cfg.DryRun {
		return cfg, errors.New("REDIS_ADDR is required")
	}
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	cfg.Topic = strings.TrimSpace(os.Getenv("INGEST_TOPIC"))
	if cfg.Topic == "" {
		cfg.Topic = defaultTopic
	}

	cfg.Source = strings.TrimSpace(os.Getenv("READINGS_SOURCE"))
	if cfg.Source == "" {
		return cfg, errors.New("READINGS_SOURCE is required")
	}

	cfg.MinInterval = defaultMinInterval
	if v := strings.TrimSpace(os.Getenv("PUBLISHER_MIN_INTERVAL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid PUBLISHER_MIN_INTERVAL: %w", err)
		}
		cfg.MinInterval = d
	}

	cfg.RequestTimeout = defaultRequestTimeout
	if v := strings.TrimSpace(os.Getenv("PUBLISH_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid PUBLISH_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = d
	}

	cfg.ValueEpsilon = defaultValueEpsilon
	if v := strings.TrimSpace(os.Getenv("PUBLISHER_VALUE_EPSILON")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid PUBLISHER_VALUE_EPSILON: %w", err)
		}
		cfg.ValueEpsilon = f
	}

	cfg.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))

	return cfg, nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds environment-driven settings for the ingestion service.
type Config struct {
	StoreDriver string
	DatabaseURL string
	SeedFile    string
	Port        int
	BearerToken string
	LogLevel    string

	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	IngestTopic      string
	SubscriberBuffer int

	ScoringURL             string
	ScoringTimeout         time.Duration
	ScoringTrainTimeout    time.Duration
	ScoringSensitivity     float64
	ScoringWorkers         int
	ScoringQueue           int
	ScoringBreakerFailures int
	ScoringBreakerCooldown time.Duration

	ConfigCacheTTL  time.Duration
	ConfigCacheSize int

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load() // ignore missing file

	cfg := Config{
		StoreDriver:            DriverPostgres,
		Port:                   8080,
		LogLevel:               "info",
		IngestTopic:            "environmental/measurements",
		SubscriberBuffer:       128,
		ScoringURL:             "http://localhost:8001/api",
		ScoringTimeout:         5 * time.Second,
		ScoringTrainTimeout:    300 * time.Second,
		ScoringSensitivity:     0.5,
		ScoringWorkers:         4,
		ScoringQueue:           256,
		ScoringBreakerFailures: 5,
		ScoringBreakerCooldown: 30 * time.Second,
		ConfigCacheTTL:         30 * time.Second,
		ConfigCacheSize:        1024,
	}

	if driver := os.Getenv("STORE_DRIVER"); driver != "" {
		if driver != DriverPostgres && driver != DriverMemory {
			return cfg, fmt.Errorf("invalid STORE_DRIVER: %s", driver)
		}
		cfg.StoreDriver = driver
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.StoreDriver == DriverPostgres && cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}
	cfg.SeedFile = os.Getenv("SEED_FILE")

	if portStr := os.Getenv("PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		} else {
			return cfg, fmt.Errorf("invalid PORT: %s", portStr)
		}
	} else if portStr := os.Getenv("API_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		} else {
			return cfg, fmt.Errorf("invalid API_PORT: %s", portStr)
		}
	}

	cfg.BearerToken = os.Getenv("API_BEARER_TOKEN")
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if n, err := strconv.Atoi(dbStr); err == nil && n >= 0 {
			cfg.RedisDB = n
		} else {
			return cfg, fmt.Errorf("invalid REDIS_DB: %s", dbStr)
		}
	}
	if topic := os.Getenv("INGEST_TOPIC"); topic != "" {
		cfg.IngestTopic = topic
	}
	if err := intEnv("SUBSCRIBER_BUFFER", &cfg.SubscriberBuffer, 0); err != nil {
		return cfg, err
	}

	if url, ok := os.LookupEnv("SCORING_URL"); ok {
		cfg.ScoringURL = url
	}
	if err := durationEnv("SCORING_TIMEOUT", &cfg.ScoringTimeout); err != nil {
		return cfg, err
	}
	if err := durationEnv("SCORING_TRAIN_TIMEOUT", &cfg.ScoringTrainTimeout); err != nil {
		return cfg, err
	}
	if s := os.Getenv("SCORING_SENSITIVITY"); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil && v >= 0 && v <= 1 {
			cfg.ScoringSensitivity = v
		} else {
			return cfg, fmt.Errorf("invalid SCORING_SENSITIVITY: %s", s)
		}
	}
	if err := intEnv("SCORING_WORKERS", &cfg.ScoringWorkers, 1); err != nil {
		return cfg, err
	}
	if err := intEnv("SCORING_QUEUE", &cfg.ScoringQueue, 0); err != nil {
		return cfg, err
	}
	if err := intEnv("SCORING_BREAKER_FAILURES", &cfg.ScoringBreakerFailures, 1); err != nil {
		return cfg, err
	}
	if err := durationEnv("SCORING_BREAKER_COOLDOWN", &cfg.ScoringBreakerCooldown); err != nil {
		return cfg, err
	}

	if ttlStr := os.Getenv("CONFIG_CACHE_TTL"); ttlStr != "" {
		ttl, err := time.ParseDuration(ttlStr)
		if err != nil || ttl < 0 {
			return cfg, fmt.Errorf("invalid CONFIG_CACHE_TTL: %s", ttlStr)
		}
		cfg.ConfigCacheTTL = ttl
	}
	if err := intEnv("CONFIG_CACHE_SIZE", &cfg.ConfigCacheSize, 1); err != nil {
		return cfg, err
	}

	cfg.InfluxURL = os.Getenv("INFLUX_URL")
	cfg.InfluxToken = os.Getenv("INFLUX_TOKEN")
	cfg.InfluxOrg = os.Getenv("INFLUX_ORG")
	cfg.InfluxBucket = os.Getenv("INFLUX_BUCKET")
	if cfg.InfluxURL != "" && (cfg.InfluxOrg == "" || cfg.InfluxBucket == "") {
		return cfg, errors.New("INFLUX_ORG and INFLUX_BUCKET are required when INFLUX_URL is set")
	}

	return cfg, nil
}

// ListenAddr returns the host:port string for the HTTP server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func intEnv(key string, dst *int, min int) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < min {
		return fmt.Errorf("invalid %s: %s", key, s)
	}
	*dst = n
	return nil
}

func durationEnv(key string, dst *time.Duration) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fmt.Errorf("invalid %s: %s", key, s)
	}
	*dst = d
	return nil
}

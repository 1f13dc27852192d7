package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for _, key := range []string{"DRY_RUN", "REDIS_ADDR", "REDIS_PASSWORD", "INGEST_TOPIC", "READINGS_SOURCE",
		"PUBLISHER_MIN_INTERVAL", "PUBLISH_TIMEOUT", "PUBLISHER_VALUE_EPSILON", "LOG_LEVEL"} {
		t.Setenv(key, kv[key])
	}
}

func TestLoad(t *testing.T) {
	setEnv(t, map[string]string{"REDIS_ADDR": "localhost:6379", "READINGS_SOURCE": "feed.json"})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "environmental/measurements", cfg.Topic)
	assert.Equal(t, 5*time.Minute, cfg.MinInterval)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.False(t, cfg.DryRun)
}

func TestLoad_DryRunWithoutRedis(t *testing.T) {
	setEnv(t, map[string]string{"DRY_RUN": "true", "READINGS_SOURCE": "feed.json"})

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.DryRun)
}

func TestLoad_Errors(t *testing.T) {
	setEnv(t, map[string]string{"READINGS_SOURCE": "feed.json"})
	_, err := Load()
	assert.EqualError(t, err, "REDIS_ADDR is required")

	setEnv(t, map[string]string{"REDIS_ADDR": "localhost:6379"})
	_, err = Load()
	assert.EqualError(t, err, "READINGS_SOURCE is required")

	setEnv(t, map[string]string{"REDIS_ADDR": "localhost:6379", "READINGS_SOURCE": "feed.json", "PUBLISH_TIMEOUT": "later"})
	_, err = Load()
	assert.ErrorContains(t, err, "invalid PUBLISH_TIMEOUT")
}

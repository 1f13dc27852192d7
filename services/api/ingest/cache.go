package ingest

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/02loveslollipop/Shizuku-envmon/services/api/telemetry"
)

// ConfigLoader loads the sensor configs of one node from storage.
type ConfigLoader interface {
	SensorConfigs(ctx context.Context, nodeID int64) ([]telemetry.SensorConfig, error)
}

// ConfigCache keeps recently used sensor configs in memory so that bursts of
// readings from one node do not query storage every time. A non-positive ttl
// disables caching.
type ConfigCache struct {
	loader ConfigLoader
	lru    *expirable.LRU[int64, []telemetry.SensorConfig]
}

// NewConfigCache wraps loader with an LRU of at most size nodes.
func NewConfigCache(loader ConfigLoader, size int, ttl time.Duration) *ConfigCache {
	c := &ConfigCache{loader: loader}
	if ttl > 0 {
		if size <= 0 {
			size = 1024
		}
		c.lru = expirable.NewLRU[int64, []telemetry.SensorConfig](size, nil, ttl)
	}
	return c
}

// SensorConfigs returns the configs for nodeID, loading them on a miss.
func (c *ConfigCache) SensorConfigs(ctx context.Context, nodeID int64) ([]telemetry.SensorConfig, error) {
	if c.lru != nil {
		if configs, ok := c.lru.Get(nodeID); ok {
			return configs, nil
		}
	}

	configs, err := c.loader.SensorConfigs(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if c.lru != nil {
		c.lru.Add(nodeID, configs)
	}
	return configs, nil
}

// Invalidate drops the cached configs of nodeID.
func (c *ConfigCache) Invalidate(nodeID int64) {
	if c.lru != nil {
		c.lru.Remove(nodeID)
	}
}

// Len reports how many nodes are cached.
func (c *ConfigCache) Len() int {
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}

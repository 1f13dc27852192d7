package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/02loveslollipop/Shizuku-envmon/services/publisher/internal/models"
)

// LastPublishedKey is the Redis hash holding the last message sent per node.
const LastPublishedKey = "shizuku:publisher:last"

// FetchLastPublished loads the last published values for the given nodes.
func FetchLastPublished(ctx context.Context, client redis.UniversalClient, nodeIDs []int64) (map[int64]models.LastPublished, error) {
	result := make(map[int64]models.LastPublished, len(nodeIDs))
	if len(nodeIDs) == 0 {
		return result, nil
	}

	fields := make([]string, len(nodeIDs))
	for i, id := range nodeIDs {
		fields[i] = strconv.FormatInt(id, 10)
	}

	values, err := client.HMGet(ctx, LastPublishedKey, fields...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var last models.LastPublished
		if err := json.Unmarshal([]byte(s), &last); err != nil {
			return nil, fmt.Errorf("decode last published for node %d: %w", nodeIDs[i], err)
		}
		result[nodeIDs[i]] = last
	}
	return result, nil
}

// Messages publishes msgs on topic and records each as its node's last
// published value, in one pipeline.
func Messages(ctx context.Context, client redis.UniversalClient, topic string, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	pipe := client.Pipeline()
	for _, m := range msgs {
		payload, err := json.Marshal(m)
		if err != nil {
			return err
		}
		last, err := json.Marshal(models.LastPublished{Temperature: m.Temperature, Humidity: m.Humidity, CO2: m.CO2, TS: m.Timestamp})
		if err != nil {
			return err
		}
		pipe.Publish(ctx, topic, payload)
		pipe.HSet(ctx, LastPublishedKey, strconv.FormatInt(m.NodeID, 10), last)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish %d messages: %w", len(msgs), err)
	}
	return nil
}

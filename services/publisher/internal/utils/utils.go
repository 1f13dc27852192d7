package utils

import (
	"fmt"
	"math"
	"time"

	"github.com/02loveslollipop/Shizuku-envmon/services/publisher/internal/models"
)

// BuildMessages turns feed frames into publishable messages. Frames with a
// missing or sentinel value are skipped and counted.
func BuildMessages(frames []models.Frame, retrievalTS time.Time) ([]models.Message, int) {
	out := make([]models.Message, 0, len(frames))
	skipped := 0
	for _, fr := range frames {
		temp := NormalizeValue(fr.Temperature)
		hum := NormalizeValue(fr.Humidity)
		co2 := NormalizeValue(fr.CO2)
		if temp == nil || hum == nil || co2 == nil {
			skipped++
			continue
		}

		ts := retrievalTS
		if fr.Timestamp != nil {
			ts = fr.Timestamp.UTC()
		}
		out = append(out, models.Message{
			NodeID:      fr.NodeID,
			Temperature: *temp,
			Humidity:    *hum,
			CO2:         *co2,
			Timestamp:   ts,
		})
	}
	return out, skipped
}

// NodeIDs lists the distinct node ids in msgs, in first-seen order.
func NodeIDs(msgs []models.Message) []int64 {
	seen := make(map[int64]bool, len(msgs))
	ids := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		if !seen[m.NodeID] {
			seen[m.NodeID] = true
			ids = append(ids, m.NodeID)
		}
	}
	return ids
}

// NormalizeValue cleans raw sensor values; -999 sentinel -> nil.
func NormalizeValue(v *float64) *float64 {
	if v == nil {
		return nil
	}
	if *v <= -900 || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	val := *v
	return &val
}

// FilterNewMessages drops messages that repeat the last published values of
// their node within minInterval.
func FilterNewMessages(
	msgs []models.Message,
	last map[int64]models.LastPublished,
	minInterval time.Duration,
	epsilon float64,
) []models.Message {
	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		prev, ok := last[m.NodeID]
		if !ok {
			out = append(out, m)
			last[m.NodeID] = asLast(m)
			continue
		}

		if m.Timestamp.Sub(prev.TS) >= minInterval || !sameValues(prev, m, epsilon) {
			out = append(out, m)
			last[m.NodeID] = asLast(m)
		}
	}
	return out
}

func asLast(m models.Message) models.LastPublished {
	return models.LastPublished{Temperature: m.Temperature, Humidity: m.Humidity, CO2: m.CO2, TS: m.Timestamp}
}

func sameValues(prev models.LastPublished, m models.Message, epsilon float64) bool {
	return math.Abs(prev.Temperature-m.Temperature) <= epsilon &&
		math.Abs(prev.Humidity-m.Humidity) <= epsilon &&
		math.Abs(prev.CO2-m.CO2) <= epsilon
}

// MessageString prints a message for logging.
func MessageString(m models.Message) string {
	return fmt.Sprintf("node=%d ts=%s temperature=%.2f humidity=%.2f co2=%.1f",
		m.NodeID, m.Timestamp.Format(time.RFC3339), m.Temperature, m.Humidity, m.CO2)
}

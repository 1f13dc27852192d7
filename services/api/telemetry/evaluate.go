package telemetry

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/02loveslollipop/Shizuku-envmon/services/api/apperr"
)

// Severity tiers, ordered from least to most severe.
type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// Rank orders severities; unknown values rank below Low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// SensorConfig is the per-node, per-variable monitoring rule. It is owned by
// node administration and read-only here.
type SensorConfig struct {
	ID         int64    `json:"id"`
	NodeID     int64    `json:"node_id"`
	Sensor     string   `json:"sensor,omitempty"`
	Variable   Variable `json:"variable"`
	LowerBound float64  `json:"lower_bound"`
	UpperBound float64  `json:"upper_bound"`
	Enabled    bool     `json:"enabled"`
}

// AlertCandidate is a breach found by Evaluate that has not been persisted yet.
type AlertCandidate struct {
	NodeID        int64     `json:"node_id"`
	Variable      Variable  `json:"variable"`
	ObservedValue float64   `json:"observed_value"`
	ViolatedBound float64   `json:"violated_bound"`
	Severity      Severity  `json:"severity"`
	Message       string    `json:"message"`
	DetectedAt    time.Time `json:"detected_at"`
}

// Evaluate checks reading against every enabled config for its node and
// returns one candidate per breached bound, in config order. Configs with a
// non-positive range produce a *apperr.ConfigError in the returned error and
// are skipped; the remaining configs are still evaluated.
func Evaluate(reading Reading, configs []SensorConfig) ([]AlertCandidate, error) {
	var (
		candidates []AlertCandidate
		errs       []error
	)

	for _, cfg := range configs {
		if !cfg.Enabled || cfg.NodeID != reading.NodeID {
			continue
		}

		value, ok := cfg.Variable.ValueOf(reading)
		if !ok {
			continue
		}

		width := cfg.UpperBound - cfg.LowerBound
		if !(width > 0) {
			errs = append(errs, &apperr.ConfigError{
				NodeID:   cfg.NodeID,
				SensorID: cfg.ID,
				Variable: cfg.Variable.String(),
				Lower:    cfg.LowerBound,
				Upper:    cfg.UpperBound,
			})
			continue
		}

		var bound float64
		var message string
		switch {
		case value < cfg.LowerBound:
			bound = cfg.LowerBound
			message = fmt.Sprintf("%s below minimum (%s < %s)", cfg.Variable.Label(), formatValue(value), formatValue(bound))
		case value > cfg.UpperBound:
			bound = cfg.UpperBound
			message = fmt.Sprintf("%s above maximum (%s > %s)", cfg.Variable.Label(), formatValue(value), formatValue(bound))
		default:
			continue
		}

		candidates = append(candidates, AlertCandidate{
			NodeID:        reading.NodeID,
			Variable:      cfg.Variable,
			ObservedValue: value,
			ViolatedBound: bound,
			Severity:      Classify(DeviationPercent(value, bound, width)),
			Message:       message,
			DetectedAt:    reading.Timestamp,
		})
	}

	return candidates, errors.Join(errs...)
}

// DeviationPercent is the distance from bound to value as a percentage of
// the configured range width.
func DeviationPercent(value, bound, width float64) float64 {
	return math.Abs(bound-value) / width * 100
}

// Classify maps a deviation percentage to a severity tier. Each tier
// boundary is exclusive: exactly 50 is High, not Critical.
func Classify(deviationPercent float64) Severity {
	switch {
	case deviationPercent > 50:
		return SeverityCritical
	case deviationPercent > 30:
		return SeverityHigh
	case deviationPercent > 15:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Package telemetry holds the reading model, the normalizer that builds it
// from inbound payloads and the threshold evaluator.
package telemetry

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/02loveslollipop/Shizuku-envmon/services/api/apperr"
)

// Reading is one timestamped temperature/humidity/CO2 sample for a node.
// ID is zero until the reading is persisted.
type Reading struct {
	ID          int64     `json:"id,omitempty"`
	NodeID      int64     `json:"node_id"`
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	CO2         float64   `json:"co2"`
}

// RawReading is the inbound payload shared by the push and subscribe channels.
type RawReading struct {
	NodeID      *int64     `json:"node_id" validate:"required"`
	Temperature *float64   `json:"temperature" validate:"required"`
	Humidity    *float64   `json:"humidity" validate:"required"`
	CO2         *float64   `json:"co2" validate:"required"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Normalize validates raw and converts it into a Reading. Every missing
// field is reported at once. arrival is used when the payload has no
// timestamp.
func Normalize(raw RawReading, arrival time.Time) (Reading, error) {
	if err := validate.Struct(raw); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return Reading{}, apperr.NewValidationError("invalid reading payload")
		}
		missing := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			missing = append(missing, fe.Field())
		}
		return Reading{}, apperr.NewValidationError("missing required fields", missing...)
	}

	var nonFinite []string
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"temperature", *raw.Temperature},
		{"humidity", *raw.Humidity},
		{"co2", *raw.CO2},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			nonFinite = append(nonFinite, f.name)
		}
	}
	if len(nonFinite) > 0 {
		return Reading{}, apperr.NewValidationError("non-finite values", nonFinite...)
	}

	ts := arrival.UTC()
	if raw.Timestamp != nil && !raw.Timestamp.IsZero() {
		ts = raw.Timestamp.UTC()
	}

	return Reading{
		NodeID:      *raw.NodeID,
		Timestamp:   ts,
		Temperature: *raw.Temperature,
		Humidity:    *raw.Humidity,
		CO2:         *raw.CO2,
	}, nil
}

// Raw converts r back into its wire payload.
func (r Reading) Raw() RawReading {
	nodeID, temp, hum, co2, ts := r.NodeID, r.Temperature, r.Humidity, r.CO2, r.Timestamp
	return RawReading{
		NodeID:      &nodeID,
		Temperature: &temp,
		Humidity:    &hum,
		CO2:         &co2,
		Timestamp:   &ts,
	}
}

// Package scoring talks to the external anomaly-scoring service and produces
// a rule-based verdict locally whenever that service cannot answer.
package scoring

import (
	"fmt"
	"math"
	"sync"

	"github.com/02loveslollipop/Shizuku-envmon/services/api/apperr"
)

// DefaultSensitivity is used when no sensitivity is configured.
const DefaultSensitivity = 0.5

// ModelSettings holds the tunable sensitivity shared by concurrent scorers.
type ModelSettings struct {
	mu          sync.RWMutex
	sensitivity float64
}

// NewModelSettings validates sensitivity and returns settings holding it.
func NewModelSettings(sensitivity float64) (*ModelSettings, error) {
	if err := validateSensitivity(sensitivity); err != nil {
		return nil, err
	}
	return &ModelSettings{sensitivity: sensitivity}, nil
}

// Sensitivity returns the current value in [0,1].
func (m *ModelSettings) Sensitivity() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sensitivity
}

// Threshold is the score below which a reading is anomalous.
func (m *ModelSettings) Threshold() float64 {
	return ThresholdFor(m.Sensitivity())
}

// SetSensitivity replaces the value when it lies in [0,1].
func (m *ModelSettings) SetSensitivity(v float64) error {
	if err := validateSensitivity(v); err != nil {
		return err
	}
	m.mu.Lock()
	m.sensitivity = v
	m.mu.Unlock()
	return nil
}

// ThresholdFor maps a sensitivity to its score threshold.
func ThresholdFor(sensitivity float64) float64 {
	return -0.5 + sensitivity*0.5
}

func validateSensitivity(v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return apperr.NewValidationError(fmt.Sprintf("sensitivity must be between 0 and 1, got %g", v), "sensitivity")
	}
	return nil
}

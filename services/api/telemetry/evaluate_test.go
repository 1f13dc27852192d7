package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/02loveslollipop/Shizuku-envmon/services/api/apperr"
)

func nodeConfigs(nodeID int64) []SensorConfig {
	return []SensorConfig{
		{ID: 1, NodeID: nodeID, Sensor: "DHT22", Variable: Temperature, LowerBound: 18, UpperBound: 26, Enabled: true},
		{ID: 2, NodeID: nodeID, Sensor: "DHT22", Variable: Humidity, LowerBound: 30, UpperBound: 70, Enabled: true},
		{ID: 3, NodeID: nodeID, Sensor: "MQ-135", Variable: CO2, LowerBound: 300, UpperBound: 1000, Enabled: true},
	}
}

func reading(temp, hum, co2 float64) Reading {
	return Reading{
		NodeID:      1,
		Timestamp:   time.Date(2025, 5, 4, 10, 0, 0, 0, time.UTC),
		Temperature: temp,
		Humidity:    hum,
		CO2:         co2,
	}
}

func TestEvaluate_AllInRange(t *testing.T) {
	for _, r := range []Reading{
		reading(18, 30, 300),
		reading(26, 70, 1000),
		reading(22, 50, 650),
	} {
		candidates, err := Evaluate(r, nodeConfigs(1))
		require.NoError(t, err)
		assert.Empty(t, candidates)
	}
}

func TestEvaluate_SingleBreachAbove(t *testing.T) {
	r := reading(30, 50, 500)

	candidates, err := Evaluate(r, nodeConfigs(1))
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	c := candidates[0]
	assert.Equal(t, int64(1), c.NodeID)
	assert.Equal(t, Temperature, c.Variable)
	assert.Equal(t, 30.0, c.ObservedValue)
	assert.Equal(t, 26.0, c.ViolatedBound)
	assert.Equal(t, "Temperature above maximum (30 > 26)", c.Message)
	assert.Equal(t, r.Timestamp, c.DetectedAt)
	// |26-30| / 8 * 100 == 50, which is not strictly greater than 50.
	assert.Equal(t, SeverityHigh, c.Severity)
}

func TestEvaluate_SingleBreachBelow(t *testing.T) {
	candidates, err := Evaluate(reading(22, 20, 500), nodeConfigs(1))
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	c := candidates[0]
	assert.Equal(t, Humidity, c.Variable)
	assert.Equal(t, 30.0, c.ViolatedBound)
	assert.Equal(t, "Humidity below minimum (20 < 30)", c.Message)
	// 10 / 40 * 100 = 25
	assert.Equal(t, SeverityMedium, c.Severity)
}

func TestEvaluate_AllThreeBreachInConfigOrder(t *testing.T) {
	candidates, err := Evaluate(reading(40, 95, 2000), nodeConfigs(1))
	require.NoError(t, err)
	require.Len(t, candidates, 3)
	assert.Equal(t, Temperature, candidates[0].Variable)
	assert.Equal(t, Humidity, candidates[1].Variable)
	assert.Equal(t, CO2, candidates[2].Variable)
}

func TestEvaluate_SkipsDisabledAndOtherNodes(t *testing.T) {
	cfgs := nodeConfigs(1)
	cfgs[0].Enabled = false
	cfgs = append(cfgs, SensorConfig{ID: 9, NodeID: 2, Variable: Humidity, LowerBound: 0, UpperBound: 1, Enabled: true})

	candidates, err := Evaluate(reading(40, 50, 500), cfgs)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestEvaluate_SkipsUnknownVariable(t *testing.T) {
	cfgs := []SensorConfig{{ID: 4, NodeID: 1, Variable: VariableUnknown, LowerBound: 0, UpperBound: 1, Enabled: true}}

	candidates, err := Evaluate(reading(40, 50, 500), cfgs)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestEvaluate_DegenerateRangeIsConfigError(t *testing.T) {
	cfgs := nodeConfigs(1)
	cfgs[0].LowerBound, cfgs[0].UpperBound = 25, 25
	cfgs[1].LowerBound, cfgs[1].UpperBound = 70, 30

	candidates, err := Evaluate(reading(40, 95, 2000), cfgs)
	require.Error(t, err)

	var cfgErr *apperr.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, int64(1), cfgErr.SensorID)

	// The CO2 sensor is still evaluated.
	require.Len(t, candidates, 1)
	assert.Equal(t, CO2, candidates[0].Variable)
}

func TestClassify_StrictBoundaries(t *testing.T) {
	cases := []struct {
		deviation float64
		want      Severity
	}{
		{0, SeverityLow},
		{15, SeverityLow},
		{15.0001, SeverityMedium},
		{30, SeverityMedium},
		{30.0001, SeverityHigh},
		{50, SeverityHigh},
		{50.0001, SeverityCritical},
		{400, SeverityCritical},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.deviation), "deviation %v", tc.deviation)
	}
}

func TestSeverity_MonotonicInDeviation(t *testing.T) {
	cfg := []SensorConfig{{ID: 1, NodeID: 1, Variable: Temperature, LowerBound: 18, UpperBound: 26, Enabled: true}}

	prev := 0
	for step := 0.1; step <= 20; step += 0.1 {
		candidates, err := Evaluate(reading(26+step, 50, 500), cfg)
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		rank := candidates[0].Severity.Rank()
		assert.GreaterOrEqual(t, rank, prev, "step %v", step)
		prev = rank
	}
	assert.Equal(t, SeverityCritical.Rank(), prev)
}

func TestDeviationPercent(t *testing.T) {
	assert.InDelta(t, 50.0, DeviationPercent(30, 26, 8), 1e-9)
	assert.InDelta(t, 25.0, DeviationPercent(20, 30, 40), 1e-9)
}

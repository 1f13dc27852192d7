package scoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/02loveslollipop/Shizuku-envmon/services/api/apperr"
	"github.com/02loveslollipop/Shizuku-envmon/services/api/telemetry"
)

func reading(temp, hum, co2 float64) telemetry.Reading {
	return telemetry.Reading{NodeID: 1, Timestamp: time.Now().UTC(), Temperature: temp, Humidity: hum, CO2: co2}
}

func TestFallback(t *testing.T) {
	tests := []struct {
		name      string
		reading   telemetry.Reading
		threshold float64
		score     float64
		anomalous bool
	}{
		{"all normal", reading(22, 50, 500), ThresholdFor(0.5), 0, false},
		{"one out", reading(30, 50, 500), ThresholdFor(0.5), -1.0 / 3, true},
		{"two out", reading(30, 80, 500), ThresholdFor(0.5), -2.0 / 3, true},
		{"all out", reading(10, 10, 2000), ThresholdFor(0.5), -1, true},
		{"one out at low sensitivity", reading(30, 50, 500), ThresholdFor(0), -1.0 / 3, false},
		{"two out at low sensitivity", reading(30, 80, 500), ThresholdFor(0), -2.0 / 3, true},
		{"band edges are normal", reading(18, 70, 1000), ThresholdFor(1), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Fallback(tt.reading, tt.threshold)
			assert.InDelta(t, tt.score, v.Score, 1e-9)
			assert.Equal(t, tt.anomalous, v.IsAnomaly)
			assert.Equal(t, SourceFallback, v.Source)
			assert.Equal(t, tt.threshold, v.Threshold)
		})
	}
}

func TestFallback_NormalFlags(t *testing.T) {
	v := Fallback(reading(30, 50, 1200), ThresholdFor(0.5))
	assert.False(t, v.TemperatureNormal)
	assert.True(t, v.HumidityNormal)
	assert.False(t, v.CO2Normal)
}

func TestModelSettings(t *testing.T) {
	s, err := NewModelSettings(0.5)
	require.NoError(t, err)
	assert.Equal(t, -0.25, s.Threshold())

	require.NoError(t, s.SetSensitivity(1))
	assert.Equal(t, 0.0, s.Threshold())
	require.NoError(t, s.SetSensitivity(0))
	assert.Equal(t, -0.5, s.Threshold())

	for _, bad := range []float64{-0.1, 1.5} {
		err := s.SetSensitivity(bad)
		assert.True(t, apperr.IsValidation(err), "value %v", bad)
	}
	assert.Equal(t, 0.0, s.Sensitivity())

	_, err = NewModelSettings(2)
	assert.True(t, apperr.IsValidation(err))
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(Options{
		BaseURL:         baseURL,
		Timeout:         time.Second,
		Sensitivity:     0.5,
		BreakerFailures: 2,
		BreakerCooldown: time.Minute,
	}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	return c
}

func TestClient_ScoreRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/analyze", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var body analyzeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(1), body.NodeID)
		assert.Equal(t, 30.0, body.Temperature)

		_ = json.NewEncoder(w).Encode(map[string]any{"is_anomaly": true, "anomaly_score": -0.12, "prediction": map[string]bool{}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/api")
	v := c.Score(context.Background(), reading(30, 50, 500))

	assert.Equal(t, SourceRemote, v.Source)
	assert.True(t, v.IsAnomaly)
	assert.Equal(t, -0.12, v.Score)
	assert.False(t, v.TemperatureNormal)
	assert.True(t, v.HumidityNormal)
}

func TestClient_ScoreFallsBackWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url)
	v := c.Score(context.Background(), reading(30, 50, 500))

	assert.Equal(t, SourceFallback, v.Source)
	assert.InDelta(t, -0.333, v.Score, 0.001)
	assert.True(t, v.IsAnomaly)
}

func TestClient_ScoreFallsBackOnBadResponses(t *testing.T) {
	for name, handler := range map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"garbage body": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("not json"))
		},
		"missing fields": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"prediction": {}}`))
		},
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(handler)
			defer srv.Close()

			v := newTestClient(t, srv.URL).Score(context.Background(), reading(22, 50, 500))
			assert.Equal(t, SourceFallback, v.Source)
			assert.False(t, v.IsAnomaly)
		})
	}
}

func TestClient_ScoreWithoutBaseURL(t *testing.T) {
	v := newTestClient(t, "").Score(context.Background(), reading(10, 10, 2000))
	assert.Equal(t, SourceFallback, v.Source)
	assert.Equal(t, -1.0, v.Score)
	assert.True(t, v.IsAnomaly)
}

func TestClient_BreakerSkipsDeadService(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	for i := 0; i < 5; i++ {
		v := c.Score(context.Background(), reading(22, 50, 500))
		assert.Equal(t, SourceFallback, v.Source)
	}
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, breakerOpen, c.breaker.current())
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Date(2025, 5, 4, 10, 0, 0, 0, time.UTC)
	b := newBreaker(1, time.Minute)
	b.now = func() time.Time { return now }

	require.NoError(t, b.allow())
	assert.True(t, b.recordFailure())
	assert.ErrorIs(t, b.allow(), errBreakerOpen)

	now = now.Add(2 * time.Minute)
	require.NoError(t, b.allow())
	assert.ErrorIs(t, b.allow(), errBreakerOpen, "only one probe while half open")

	b.recordSuccess()
	assert.Equal(t, breakerClosed, b.current())
	assert.NoError(t, b.allow())
}

func TestClient_SetSensitivity(t *testing.T) {
	var pushed float64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/model/sensitivity", r.URL.Path)
		var body map[string]float64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		pushed = body["sensitivity"]
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	update, err := c.SetSensitivity(context.Background(), 0.8)
	require.NoError(t, err)
	assert.True(t, update.Synced)
	assert.Equal(t, 0.8, pushed)
	assert.InDelta(t, -0.1, update.Threshold, 1e-9)
	assert.Equal(t, 0.8, c.Settings().Sensitivity())

	_, err = c.SetSensitivity(context.Background(), 1.5)
	assert.True(t, apperr.IsValidation(err))
	assert.Equal(t, 0.8, c.Settings().Sensitivity())
}

func TestClient_SetSensitivityKeepsLocalValueWhenPushFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	update, err := c.SetSensitivity(context.Background(), 0.2)
	require.NoError(t, err)
	assert.False(t, update.Synced)
	assert.Equal(t, 0.2, c.Settings().Sensitivity())
}

func TestClient_ModelInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/model/info", r.URL.Path)
		_, _ = w.Write([]byte(`{"version": "20250504_100000", "precision": 0.85, "sensibilidad": 0.7, "loaded": true}`))
	}))
	defer srv.Close()

	info := newTestClient(t, srv.URL).ModelInfo(context.Background())
	assert.Equal(t, "20250504_100000", info.Version)
	assert.Equal(t, 0.85, info.Precision)
	assert.Equal(t, 0.7, info.Sensitivity)
	assert.True(t, info.Loaded)
	assert.Equal(t, SourceRemote, info.Source)
}

func TestClient_ModelInfoFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	info := newTestClient(t, srv.URL).ModelInfo(context.Background())
	assert.False(t, info.Loaded)
	assert.Equal(t, 0.5, info.Sensitivity)
	assert.Equal(t, SourceFallback, info.Source)
}

func TestClient_Train(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/train", r.URL.Path)
		var body struct {
			DatasetPath string         `json:"dataset_path"`
			Parameters  map[string]any `json:"parameters"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "/data/readings.csv", body.DatasetPath)
		assert.Equal(t, 0.1, body.Parameters["contamination"])
		_, _ = w.Write([]byte(`{"message": "trained", "version": "v2", "samples": 1200}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	res, err := c.Train(context.Background(), "/data/readings.csv", map[string]any{"contamination": 0.1})
	require.NoError(t, err)
	assert.Equal(t, "v2", res.Version)
	assert.Equal(t, 1200, res.Samples)

	_, err = c.Train(context.Background(), " ", nil)
	assert.True(t, apperr.IsValidation(err))
}

func TestClient_TrainUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Train(context.Background(), "/missing.csv", nil)
	assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)

	_, err = newTestClient(t, "").Train(context.Background(), "/data.csv", nil)
	assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
}

package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/02loveslollipop/Shizuku-envmon/services/api/apperr"
	"github.com/02loveslollipop/Shizuku-envmon/services/api/metrics"
	"github.com/02loveslollipop/Shizuku-envmon/services/api/telemetry"
)

// Options configures a Client.
type Options struct {
	// BaseURL is the scoring service API root, e.g. http://localhost:8001/api.
	// Empty means every reading is scored by the local fallback.
	BaseURL         string
	Timeout         time.Duration
	TrainTimeout    time.Duration
	Sensitivity     float64
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Client scores readings against the remote service.
type Client struct {
	baseURL  string
	http     *http.Client
	train    *http.Client
	settings *ModelSettings
	breaker  *breaker
	logger   *zap.SugaredLogger
}

// NewClient builds a client from opts.
func NewClient(opts Options, logger *zap.SugaredLogger) (*Client, error) {
	settings, err := NewModelSettings(opts.Sensitivity)
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.TrainTimeout <= 0 {
		opts.TrainTimeout = 300 * time.Second
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = 30 * time.Second
	}

	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		http:     &http.Client{Timeout: opts.Timeout},
		train:    &http.Client{Timeout: opts.TrainTimeout},
		settings: settings,
		breaker:  newBreaker(opts.BreakerFailures, opts.BreakerCooldown),
		logger:   logger,
	}, nil
}

// Settings exposes the sensitivity the client scores with.
func (c *Client) Settings() *ModelSettings {
	return c.settings
}

type analyzeRequest struct {
	NodeID      int64   `json:"node_id"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	CO2         float64 `json:"co2"`
}

type analyzeResponse struct {
	IsAnomaly    *bool    `json:"is_anomaly"`
	AnomalyScore *float64 `json:"anomaly_score"`
}

// Score returns the remote verdict for r, or the local fallback verdict when
// the service is not configured, unreachable, failing or skipped by the breaker.
func (c *Client) Score(ctx context.Context, r telemetry.Reading) AnomalyVerdict {
	threshold := c.settings.Threshold()

	verdict, err := c.scoreRemote(ctx, r, threshold)
	if err != nil {
		if !errors.Is(err, errBreakerOpen) && !errors.Is(err, errNotConfigured) {
			c.logger.Warnw("Scoring service unavailable, using rule-based fallback",
				"node_id", r.NodeID,
				"error", err)
		}
		verdict = Fallback(r, threshold)
	}

	metrics.AnomalyVerdicts.WithLabelValues(string(verdict.Source), strconv.FormatBool(verdict.IsAnomaly)).Inc()
	return verdict
}

var errNotConfigured = errors.New("scoring service not configured")

func (c *Client) scoreRemote(ctx context.Context, r telemetry.Reading, threshold float64) (AnomalyVerdict, error) {
	if c.baseURL == "" {
		return AnomalyVerdict{}, errNotConfigured
	}
	if err := c.breaker.allow(); err != nil {
		return AnomalyVerdict{}, err
	}

	var resp analyzeResponse
	err := c.doJSON(ctx, c.http, http.MethodPost, "/analyze", analyzeRequest{
		NodeID:      r.NodeID,
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		CO2:         r.CO2,
	}, &resp)
	if err == nil && (resp.IsAnomaly == nil || resp.AnomalyScore == nil) {
		err = errors.New("analyze response missing is_anomaly or anomaly_score")
	}
	if err != nil {
		if c.breaker.recordFailure() {
			c.logger.Warnw("Scoring circuit opened", "cooldown", c.breaker.cooldown)
		}
		return AnomalyVerdict{}, err
	}
	c.breaker.recordSuccess()

	v := withNormalFlags(AnomalyVerdict{
		NodeID:    r.NodeID,
		IsAnomaly: *resp.IsAnomaly,
		Score:     *resp.AnomalyScore,
		Threshold: threshold,
		Source:    SourceRemote,
	}, r)
	return v, nil
}

// SensitivityUpdate reports the value now in effect and whether the remote
// service accepted it.
type SensitivityUpdate struct {
	Sensitivity float64 `json:"sensitivity"`
	Threshold   float64 `json:"threshold"`
	Synced      bool    `json:"synced"`
}

// SetSensitivity validates v, applies it locally and pushes it to the remote
// service. A failed push is reported through Synced; the local value stays.
func (c *Client) SetSensitivity(ctx context.Context, v float64) (SensitivityUpdate, error) {
	if err := c.settings.SetSensitivity(v); err != nil {
		return SensitivityUpdate{}, err
	}
	update := SensitivityUpdate{Sensitivity: v, Threshold: ThresholdFor(v)}

	if c.baseURL == "" {
		return update, nil
	}
	if err := c.doJSON(ctx, c.http, http.MethodPut, "/model/sensitivity", map[string]float64{"sensitivity": v}, nil); err != nil {
		c.logger.Warnw("Failed to push sensitivity to scoring service", "sensitivity", v, "error", err)
		return update, nil
	}
	update.Synced = true
	return update, nil
}

// ModelInfo describes the model currently answering score requests.
type ModelInfo struct {
	Version     string  `json:"version"`
	Precision   float64 `json:"precision"`
	Sensitivity float64 `json:"sensitivity"`
	Loaded      bool    `json:"loaded"`
	Source      Source  `json:"source"`
}

type modelInfoResponse struct {
	Version      string   `json:"version"`
	Precision    float64  `json:"precision"`
	Sensitivity  *float64 `json:"sensitivity"`
	Sensibilidad *float64 `json:"sensibilidad"`
	Loaded       bool     `json:"loaded"`
}

// ModelInfo asks the remote service about its model. When it cannot answer
// the local description is returned with Loaded false.
func (c *Client) ModelInfo(ctx context.Context) ModelInfo {
	local := ModelInfo{Version: "rules", Sensitivity: c.settings.Sensitivity(), Source: SourceFallback}
	if c.baseURL == "" {
		return local
	}

	var resp modelInfoResponse
	if err := c.doJSON(ctx, c.http, http.MethodGet, "/model/info", nil, &resp); err != nil {
		c.logger.Warnw("Failed to fetch model info", "error", err)
		return local
	}

	info := ModelInfo{
		Version:     resp.Version,
		Precision:   resp.Precision,
		Sensitivity: local.Sensitivity,
		Loaded:      resp.Loaded,
		Source:      SourceRemote,
	}
	switch {
	case resp.Sensitivity != nil:
		info.Sensitivity = *resp.Sensitivity
	case resp.Sensibilidad != nil:
		info.Sensitivity = *resp.Sensibilidad
	}
	return info
}

// TrainResult is the remote service's answer to a training request.
type TrainResult struct {
	Message string `json:"message"`
	Version string `json:"version"`
	Samples int    `json:"samples"`
}

// Train forwards a training request. It uses the long training timeout and,
// unlike Score, returns its errors.
func (c *Client) Train(ctx context.Context, datasetPath string, params map[string]any) (TrainResult, error) {
	if strings.TrimSpace(datasetPath) == "" {
		return TrainResult{}, apperr.NewValidationError("dataset_path is required", "dataset_path")
	}
	if c.baseURL == "" {
		return TrainResult{}, fmt.Errorf("train: %w", apperr.ErrUpstreamUnavailable)
	}

	body := map[string]any{"dataset_path": datasetPath, "parameters": params}
	var result TrainResult
	if err := c.doJSON(ctx, c.train, http.MethodPost, "/train", body, &result); err != nil {
		return TrainResult{}, fmt.Errorf("train: %w: %w", apperr.ErrUpstreamUnavailable, err)
	}

	c.logger.Infow("Scoring model trained", "version", result.Version, "samples", result.Samples)
	return result, nil
}

func (c *Client) doJSON(ctx context.Context, client *http.Client, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %s from %s", resp.Status, path)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

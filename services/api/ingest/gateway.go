// Package ingest runs incoming readings through normalization, persistence,
// threshold evaluation and alert recording, for both the HTTP push path and
// the pub/sub subscription.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/02loveslollipop/Shizuku-envmon/services/api/alerts"
	"github.com/02loveslollipop/Shizuku-envmon/services/api/apperr"
	"github.com/02loveslollipop/Shizuku-envmon/services/api/db"
	"github.com/02loveslollipop/Shizuku-envmon/services/api/metrics"
	"github.com/02loveslollipop/Shizuku-envmon/services/api/telemetry"
)

// Source names the channel a reading arrived on.
type Source string

const (
	SourceHTTP   Source = "http"
	SourcePubSub Source = "pubsub"
)

// Store is the node and reading storage the gateway writes to.
type Store interface {
	GetNode(ctx context.Context, id int64) (db.Node, error)
	TouchNode(ctx context.Context, id int64, ts time.Time) error
	InsertReading(ctx context.Context, r telemetry.Reading, source string) (telemetry.Reading, error)
}

// ReadingMirror copies persisted readings to a secondary store.
type ReadingMirror interface {
	WriteReading(ctx context.Context, r telemetry.Reading) error
}

// Result is what one successful ingestion produced.
type Result struct {
	Reading telemetry.Reading `json:"data"`
	Alerts  []alerts.Alert    `json:"alerts"`
}

// GatewayConfig lists the collaborators of a Gateway. Mirror and Scoring are
// optional.
type GatewayConfig struct {
	Store   Store
	Configs *ConfigCache
	Alerts  *alerts.Manager
	Mirror  ReadingMirror
	Scoring *ScoringPool
	Logger  *zap.SugaredLogger
}

// Gateway is shared by every ingress channel.
type Gateway struct {
	store   Store
	configs *ConfigCache
	alerts  *alerts.Manager
	mirror  ReadingMirror
	scoring *ScoringPool
	logger  *zap.SugaredLogger
	now     func() time.Time
}

// NewGateway builds a gateway from cfg.
func NewGateway(cfg GatewayConfig) *Gateway {
	return &Gateway{
		store:   cfg.Store,
		configs: cfg.Configs,
		alerts:  cfg.Alerts,
		mirror:  cfg.Mirror,
		scoring: cfg.Scoring,
		logger:  cfg.Logger,
		now:     time.Now,
	}
}

// Ingest normalizes raw, stores it, records an alert for every breached
// threshold and hands the reading to the scoring pool.
//
// The reading is committed before sensor configs are loaded, so a config or
// alert failure returns an error while the reading stays stored. Liveness,
// mirror and scoring failures are only logged.
func (g *Gateway) Ingest(ctx context.Context, raw telemetry.RawReading, source Source) (Result, error) {
	start := g.now()
	defer func() {
		metrics.IngestDuration.WithLabelValues(string(source)).Observe(time.Since(start).Seconds())
	}()

	reading, err := telemetry.Normalize(raw, start)
	if err != nil {
		g.fail(source, "validation")
		return Result{}, err
	}

	if _, err := g.store.GetNode(ctx, reading.NodeID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			g.fail(source, "unknown_node")
			return Result{}, fmt.Errorf("ingest: %w", err)
		}
		g.fail(source, "persistence")
		return Result{}, apperr.Persistence("lookup node", err)
	}

	reading, err = g.store.InsertReading(ctx, reading, string(source))
	if err != nil {
		g.fail(source, "persistence")
		return Result{}, apperr.Persistence("insert reading", err)
	}

	configs, err := g.configs.SensorConfigs(ctx, reading.NodeID)
	if err != nil {
		g.fail(source, "persistence")
		return Result{}, apperr.Persistence("load sensor configs", err)
	}

	candidates, err := telemetry.Evaluate(reading, configs)
	if err != nil {
		g.reportConfigErrors(err)
	}

	recorded, err := g.alerts.RecordAll(ctx, candidates)
	if err != nil {
		g.fail(source, "persistence")
		return Result{}, err
	}

	if err := g.store.TouchNode(ctx, reading.NodeID, reading.Timestamp); err != nil {
		g.logger.Warnw("Failed to update node liveness", "node_id", reading.NodeID, "error", err)
	}

	if g.mirror != nil {
		if err := g.mirror.WriteReading(ctx, reading); err != nil {
			metrics.MirrorFailures.Inc()
			g.logger.Warnw("Failed to mirror reading", "node_id", reading.NodeID, "reading_id", reading.ID, "error", err)
		}
	}

	if g.scoring != nil && !g.scoring.Submit(reading) {
		g.logger.Warnw("Scoring queue full, reading not scored", "node_id", reading.NodeID, "reading_id", reading.ID)
	}

	metrics.ReadingsIngested.WithLabelValues(string(source)).Inc()
	g.logger.Debugw("Reading ingested",
		"node_id", reading.NodeID,
		"reading_id", reading.ID,
		"source", source,
		"alerts", len(recorded))

	return Result{Reading: reading, Alerts: recorded}, nil
}

// RefreshSensors drops the cached sensor configs of a known node.
func (g *Gateway) RefreshSensors(ctx context.Context, nodeID int64) error {
	if _, err := g.store.GetNode(ctx, nodeID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return fmt.Errorf("refresh sensors: %w", err)
		}
		return apperr.Persistence("lookup node", err)
	}
	g.configs.Invalidate(nodeID)
	g.logger.Infow("Sensor configs invalidated", "node_id", nodeID)
	return nil
}

func (g *Gateway) fail(source Source, reason string) {
	metrics.IngestFailures.WithLabelValues(string(source), reason).Inc()
}

func (g *Gateway) reportConfigErrors(err error) {
	var errs []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	} else {
		errs = []error{err}
	}
	for _, e := range errs {
		metrics.SensorConfigErrors.Inc()
		var cfgErr *apperr.ConfigError
		if errors.As(e, &cfgErr) {
			g.logger.Warnw("Skipping sensor with invalid bounds",
				"node_id", cfgErr.NodeID,
				"sensor_id", cfgErr.SensorID,
				"variable", cfgErr.Variable,
				"lower", cfgErr.Lower,
				"upper", cfgErr.Upper)
			continue
		}
		g.logger.Warnw("Sensor evaluation error", "error", e)
	}
}

package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/02loveslollipop/Shizuku-envmon/services/api/alerts"
	"github.com/02loveslollipop/Shizuku-envmon/services/api/config"
	"github.com/02loveslollipop/Shizuku-envmon/services/api/ingest"
	"github.com/02loveslollipop/Shizuku-envmon/services/api/scoring"
	"github.com/02loveslollipop/Shizuku-envmon/services/api/telemetry"
)

// Ingester accepts pushed readings.
type Ingester interface {
	Ingest(ctx context.Context, raw telemetry.RawReading, source ingest.Source) (ingest.Result, error)
	RefreshSensors(ctx context.Context, nodeID int64) error
}

// AlertService serves alert queries and operator updates.
type AlertService interface {
	ActiveAlerts(ctx context.Context, nodeID *int64) ([]alerts.Alert, error)
	Get(ctx context.Context, id string) (alerts.Alert, error)
	SetStatus(ctx context.Context, id string, status alerts.Status) (alerts.Alert, error)
}

// ModelService exposes the anomaly model administration calls.
type ModelService interface {
	ModelInfo(ctx context.Context) scoring.ModelInfo
	SetSensitivity(ctx context.Context, v float64) (scoring.SensitivityUpdate, error)
	Train(ctx context.Context, datasetPath string, params map[string]any) (scoring.TrainResult, error)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the HTTP layer delegates to. Health may be nil.
type Deps struct {
	Ingest Ingester
	Alerts AlertService
	Model  ModelService
	Health Pinger
}

// Server bundles router and dependencies for the REST API.
type Server struct {
	cfg    config.Config
	deps   Deps
	logger *zap.SugaredLogger
	engine *gin.Engine
}

// New constructs a server with routes and middleware.
func New(cfg config.Config, deps Deps, logger *zap.SugaredLogger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))
	engine.Use(corsMiddleware())

	server := &Server{cfg: cfg, deps: deps, logger: logger, engine: engine}
	server.registerRoutes()
	server.registerV1Routes()
	return server
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealthz)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *Server) handleHealthz(c *gin.Context) {
	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Health.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/02loveslollipop/Shizuku-envmon/services/api/alerts"
	"github.com/02loveslollipop/Shizuku-envmon/services/api/config"
	"github.com/02loveslollipop/Shizuku-envmon/services/api/db"
	httpserver "github.com/02loveslollipop/Shizuku-envmon/services/api/http"
	"github.com/02loveslollipop/Shizuku-envmon/services/api/ingest"
	"github.com/02loveslollipop/Shizuku-envmon/services/api/logging"
	"github.com/02loveslollipop/Shizuku-envmon/services/api/scoring"
	"github.com/02loveslollipop/Shizuku-envmon/services/api/tsdb"
)

func main() {
	os.Exit(start())
}

// start runs the service and returns the process exit code. It returns
// instead of exiting so deferred cleanup, including the logger flush, runs.
func start() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Errorw("Service stopped with error", "error", err)
		return 1
	}
	return 0
}

// storage is what the service needs from either store driver.
type storage interface {
	ingest.Store
	ingest.ConfigLoader
	alerts.Repository
}

func run(cfg config.Config, logger *zap.SugaredLogger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, health, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	scorer, err := scoring.NewClient(scoring.Options{
		BaseURL:         cfg.ScoringURL,
		Timeout:         cfg.ScoringTimeout,
		TrainTimeout:    cfg.ScoringTrainTimeout,
		Sensitivity:     cfg.ScoringSensitivity,
		BreakerFailures: uint32(cfg.ScoringBreakerFailures),
		BreakerCooldown: cfg.ScoringBreakerCooldown,
	}, logger)
	if err != nil {
		return fmt.Errorf("scoring client: %w", err)
	}

	pool := ingest.NewScoringPool(scorer, cfg.ScoringWorkers, cfg.ScoringQueue, logger)
	pool.Start(ctx)
	defer pool.Stop()

	var mirror ingest.ReadingMirror
	if cfg.InfluxURL != "" {
		influx := tsdb.NewInfluxMirror(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
		defer influx.Close()
		mirror = influx
		logger.Infow("Mirroring readings to InfluxDB", "url", cfg.InfluxURL, "bucket", cfg.InfluxBucket)
	}

	manager := alerts.NewManager(store, logger)
	gateway := ingest.NewGateway(ingest.GatewayConfig{
		Store:   store,
		Configs: ingest.NewConfigCache(store, cfg.ConfigCacheSize, cfg.ConfigCacheTTL),
		Alerts:  manager,
		Mirror:  mirror,
		Scoring: pool,
		Logger:  logger,
	})

	var wg sync.WaitGroup
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()

		sub := ingest.NewSubscriber(client, cfg.IngestTopic, cfg.SubscriberBuffer, gateway, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sub.Run(ctx)
		}()
	} else {
		logger.Infow("REDIS_ADDR not set, subscribe ingress disabled")
	}

	srv := httpserver.New(cfg, httpserver.Deps{
		Ingest: gateway,
		Alerts: manager,
		Model:  scorer,
		Health: health,
	}, logger)
	logger.Infow("REST API listening", "addr", cfg.ListenAddr(), "store", cfg.StoreDriver)

	err = srv.Run(ctx)
	cancel()
	wg.Wait()
	return err
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger) (storage, httpserver.Pinger, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		mem := db.NewMemoryStore()
		if cfg.SeedFile != "" {
			if err := mem.LoadSeed(cfg.SeedFile); err != nil {
				return nil, nil, nil, err
			}
			logger.Infow("Seeded memory store", "file", cfg.SeedFile)
		}
		return mem, nil, func() {}, nil

	case config.DriverPostgres:
		pg, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("db connection error: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return pg, pg, pg.Close, nil
	}
	return nil, nil, nil, errors.New("unknown store driver " + cfg.StoreDriver)
}

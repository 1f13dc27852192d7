package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/02loveslollipop/Shizuku-envmon/services/api/logging"
	"github.com/02loveslollipop/Shizuku-envmon/services/publisher/internal/config"
	"github.com/02loveslollipop/Shizuku-envmon/services/publisher/internal/feed"
	"github.com/02loveslollipop/Shizuku-envmon/services/publisher/internal/publish"
	"github.com/02loveslollipop/Shizuku-envmon/services/publisher/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatalw("Publisher failed", "error", err)
	}
}

func run(cfg config.Config, logger *zap.SugaredLogger) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout+10*time.Second)
	defer cancel()

	client := &http.Client{Timeout: cfg.RequestTimeout}
	retrievalTS := time.Now().UTC().Truncate(time.Second)

	payload, err := feed.Fetch(ctx, client, cfg.Source)
	if err != nil {
		return err
	}
	logger.Infow("Fetched feed", "frames", len(payload.Readings), "network", payload.Network)

	msgs, skipped := utils.BuildMessages(payload.Readings, retrievalTS)
	if skipped > 0 {
		logger.Warnw("Skipped frames with missing or sentinel values", "count", skipped)
	}

	if cfg.DryRun {
		for _, m := range msgs {
			logger.Infow("dry-run: would publish", "message", utils.MessageString(m))
		}
		return nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rdb.Close()

	last, err := publish.FetchLastPublished(ctx, rdb, utils.NodeIDs(msgs))
	if err != nil {
		return err
	}

	pending := utils.FilterNewMessages(msgs, last, cfg.MinInterval, cfg.ValueEpsilon)
	if len(pending) == 0 {
		logger.Infow("No new readings to publish", "retrieval", retrievalTS.Format(time.RFC3339))
		return nil
	}

	if err := publish.Messages(ctx, rdb, cfg.Topic, pending); err != nil {
		return err
	}

	logger.Infow("Published readings", "count", len(pending), "topic", cfg.Topic)
	return nil
}

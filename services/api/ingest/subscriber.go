package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/02loveslollipop/Shizuku-envmon/services/api/apperr"
	"github.com/02loveslollipop/Shizuku-envmon/services/api/metrics"
	"github.com/02loveslollipop/Shizuku-envmon/services/api/telemetry"
)

// DefaultTopic is the channel nodes publish their measurements on.
const DefaultTopic = "environmental/measurements"

// Ingester is the part of the Gateway the subscriber needs.
type Ingester interface {
	Ingest(ctx context.Context, raw telemetry.RawReading, source Source) (Result, error)
}

// Subscriber feeds readings published on a Redis channel into the gateway.
//
// A pump goroutine owns the subscription and copies payloads into a buffered
// channel; a processor goroutine drains it. When the subscription breaks the
// pump resubscribes with exponential backoff until the context ends.
type Subscriber struct {
	client   redis.UniversalClient
	topic    string
	buffer   int
	ingester Ingester
	logger   *zap.SugaredLogger

	newBackOff func() backoff.BackOff
}

// NewSubscriber creates a subscriber for topic.
func NewSubscriber(client redis.UniversalClient, topic string, buffer int, ingester Ingester, logger *zap.SugaredLogger) *Subscriber {
	if topic == "" {
		topic = DefaultTopic
	}
	if buffer < 0 {
		buffer = 0
	}
	return &Subscriber{
		client:   client,
		topic:    topic,
		buffer:   buffer,
		ingester: ingester,
		logger:   logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// Run subscribes and processes messages until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	payloads := make(chan []byte, s.buffer)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer close(payloads)
		s.pump(ctx, payloads)
	}()
	go func() {
		defer wg.Done()
		s.process(ctx, payloads)
	}()
	wg.Wait()

	s.logger.Infow("Subscriber stopped", "topic", s.topic)
	return nil
}

// Handle decodes and ingests a single message payload. Failures are logged
// and returned; they never stop the subscription.
func (s *Subscriber) Handle(ctx context.Context, payload []byte) error {
	var raw telemetry.RawReading
	if err := json.Unmarshal(payload, &raw); err != nil {
		metrics.IngestFailures.WithLabelValues(string(SourcePubSub), "malformed").Inc()
		s.logger.Warnw("Dropping malformed message", "topic", s.topic, "error", err)
		return apperr.NewValidationError(fmt.Sprintf("malformed payload: %v", err))
	}

	result, err := s.ingester.Ingest(ctx, raw, SourcePubSub)
	if err != nil {
		switch {
		case apperr.IsValidation(err), errors.Is(err, apperr.ErrNotFound):
			s.logger.Warnw("Dropping message", "topic", s.topic, "error", err)
		default:
			s.logger.Errorw("Failed to ingest message", "topic", s.topic, "error", err)
		}
		return err
	}

	if len(result.Alerts) > 0 {
		s.logger.Infow("Message raised alerts",
			"node_id", result.Reading.NodeID,
			"alerts", len(result.Alerts))
	}
	return nil
}

// process handles payloads until in is closed. Once ctx is cancelled the
// remaining buffered payloads are discarded and counted instead of being
// ingested against a dead context.
func (s *Subscriber) process(ctx context.Context, in <-chan []byte) (dropped int) {
	for payload := range in {
		if ctx.Err() != nil {
			dropped++
			continue
		}
		_ = s.Handle(ctx, payload)
	}
	if dropped > 0 {
		metrics.IngestFailures.WithLabelValues(string(SourcePubSub), "shutdown").Add(float64(dropped))
		s.logger.Warnw("Discarded buffered messages on shutdown", "topic", s.topic, "dropped", dropped)
	}
	return dropped
}

func (s *Subscriber) pump(ctx context.Context, out chan<- []byte) {
	b := s.newBackOff()
	for {
		err := s.consume(ctx, out, b)
		if ctx.Err() != nil {
			return
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			wait = time.Second
		}
		metrics.SubscriberReconnects.Inc()
		s.logger.Warnw("Subscription lost, resubscribing",
			"topic", s.topic,
			"retry_in", wait,
			"error", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *Subscriber) consume(ctx context.Context, out chan<- []byte, b backoff.BackOff) error {
	sub := s.client.Subscribe(ctx, s.topic)
	defer sub.Close()
	// Blocking reads on the pubsub connection do not observe ctx.
	stop := context.AfterFunc(ctx, func() { _ = sub.Close() })
	defer stop()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.topic, err)
	}
	b.Reset()
	s.logger.Infow("Subscribed", "topic", s.topic)

	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			return fmt.Errorf("receive: %w", err)
		}
		select {
		case out <- []byte(msg.Payload):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

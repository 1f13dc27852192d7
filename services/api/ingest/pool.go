package ingest

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/02loveslollipop/Shizuku-envmon/services/api/metrics"
	"github.com/02loveslollipop/Shizuku-envmon/services/api/scoring"
	"github.com/02loveslollipop/Shizuku-envmon/services/api/telemetry"
)

// Scorer produces an anomaly verdict for a reading. It must not fail.
type Scorer interface {
	Score(ctx context.Context, r telemetry.Reading) scoring.AnomalyVerdict
}

// ScoringPool scores readings out of band on a fixed number of workers.
type ScoringPool struct {
	scorer  Scorer
	queue   chan telemetry.Reading
	workers int
	logger  *zap.SugaredLogger

	// OnVerdict, when set, receives every verdict after it is logged.
	OnVerdict func(scoring.AnomalyVerdict)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScoringPool creates a pool with the given worker count and queue size.
func NewScoringPool(scorer Scorer, workers, queueSize int, logger *zap.SugaredLogger) *ScoringPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &ScoringPool{
		scorer:  scorer,
		queue:   make(chan telemetry.Reading, queueSize),
		workers: workers,
		logger:  logger,
	}
}

// Start launches the workers. They stop when ctx is cancelled or Stop is called.
func (p *ScoringPool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(ctx)
	}
}

// Stop cancels the workers and waits for them to return. Queued readings
// that were not picked up are discarded.
func (p *ScoringPool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// Submit queues r for scoring. It never blocks; false means the queue was
// full and r will not be scored.
func (p *ScoringPool) Submit(r telemetry.Reading) bool {
	select {
	case p.queue <- r:
		return true
	default:
		metrics.ScoringDropped.Inc()
		return false
	}
}

func (p *ScoringPool) work(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-p.queue:
			p.score(ctx, r)
		}
	}
}

func (p *ScoringPool) score(ctx context.Context, r telemetry.Reading) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Errorw("Scoring worker recovered from panic", "node_id", r.NodeID, "panic", rec)
		}
	}()

	v := p.scorer.Score(ctx, r)
	if v.IsAnomaly {
		p.logger.Warnw("Anomalous reading",
			"node_id", r.NodeID,
			"reading_id", r.ID,
			"score", v.Score,
			"threshold", v.Threshold,
			"source", v.Source)
	} else {
		p.logger.Debugw("Reading scored", "node_id", r.NodeID, "score", v.Score, "source", v.Source)
	}
	if p.OnVerdict != nil {
		p.OnVerdict(v)
	}
}

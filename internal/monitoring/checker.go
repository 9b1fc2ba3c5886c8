package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/contact-classifier/internal/queue"
)

// Checker re-enqueues stalled jobs on a fixed interval.
type Checker struct {
	collector  *Collector
	queue      queue.Enqueuer
	interval   time.Duration
	staleAfter time.Duration
}

// NewChecker creates a background sweeper.
func NewChecker(collector *Collector, q queue.Enqueuer, interval, staleAfter time.Duration) *Checker {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	return &Checker{
		collector:  collector,
		queue:      q,
		interval:   interval,
		staleAfter: staleAfter,
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting job sweeper",
		zap.Duration("interval", c.interval),
		zap.Duration("stale_after", c.staleAfter),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("job sweeper stopped")
			return
		case <-ticker.C:
			c.Check(ctx, log)
		}
	}
}

// Check runs one sweep and returns the number of jobs re-enqueued.
func (c *Checker) Check(ctx context.Context, log *zap.Logger) int {
	snap, err := c.collector.Collect(ctx, c.staleAfter)
	if err != nil {
		log.Error("monitoring: failed to collect jobs", zap.Error(err))
		return 0
	}
	if len(snap.Stalled) == 0 {
		log.Debug("monitoring: no stalled jobs", zap.Int("active", snap.Active()))
		return 0
	}

	sent := 0
	for _, id := range snap.Stalled {
		if err := c.queue.Enqueue(ctx, queue.NewTask(id, 0)); err != nil {
			log.Warn("monitoring: re-enqueue failed", zap.String("job_id", id), zap.Error(err))
			continue
		}
		sent++
	}
	log.Info("monitoring: sweep complete",
		zap.Int("active", snap.Active()),
		zap.Int("stalled", len(snap.Stalled)),
		zap.Int("enqueued", sent),
	)
	return sent
}

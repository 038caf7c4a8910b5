package publish

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/askdex/internal/metrics"
)

// RelayConfig tunes the outbox relay.
type RelayConfig struct {
	Interval  time.Duration
	BatchSize int
	Timeout   time.Duration
}

// Relay publishes outbox rows the Emitter did not get to.
type Relay struct {
	outbox Outbox
	pub    Publisher
	cfg    RelayConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewRelay creates a Relay.
func NewRelay(ob Outbox, pub Publisher, cfg RelayConfig, logger *zap.Logger) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultPublishTimeout
	}
	return &Relay{outbox: ob, pub: pub, cfg: cfg, logger: logger, now: time.Now}
}

// RelayOnce publishes one batch in creation order and stops at the first
// failure so later events for a key never overtake earlier ones.
// Returns the number of rows published.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	recs, err := r.outbox.Pending(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("read outbox: %w", err)
	}

	for i, rec := range recs {
		pctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		_, err := r.pub.PublishFields(pctx, rec.Key, rec.Fields)
		cancel()

		metrics.OutboxRelayedTotal.WithLabelValues(metrics.StatusOf(err)).Inc()
		metrics.EventsPublishedTotal.WithLabelValues(string(rec.Kind), metrics.StatusOf(err)).Inc()
		if err != nil {
			return i, fmt.Errorf("publish outbox event %s: %w", rec.EventID, err)
		}
		if err := r.outbox.MarkPublished(ctx, rec.EventID, r.now().UTC()); err != nil {
			return i + 1, fmt.Errorf("mark outbox event %s: %w", rec.EventID, err)
		}
	}
	return len(recs), nil
}

// Run relays until ctx is cancelled. Full batches are followed immediately
// by the next one.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("Outbox relay started",
		zap.Duration("interval", r.cfg.Interval),
		zap.Int("batch_size", r.cfg.BatchSize),
	)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		n, err := r.RelayOnce(ctx)
		if err != nil && ctx.Err() == nil {
			r.logger.Warn("Outbox relay batch failed", zap.Int("published", n), zap.Error(err))
		} else if n > 0 {
			r.logger.Debug("Outbox rows relayed", zap.Int("count", n))
		}
		if err == nil && n == r.cfg.BatchSize {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		select {
		case <-ctx.Done():
			r.logger.Info("Outbox relay stopped")
			return nil
		case <-ticker.C:
		}
	}
}

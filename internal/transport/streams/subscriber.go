package streams

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/askdex/internal/db"
	"github.com/kailas-cloud/askdex/internal/domain"
	"github.com/kailas-cloud/askdex/internal/domain/event"
	"github.com/kailas-cloud/askdex/internal/metrics"
)

// Dead-letter entry fields added next to the original ones.
const (
	FieldSourceStream = "source_stream"
	FieldSourceID     = "source_id"
	FieldError        = "error"
)

const ackTimeout = 2 * time.Second

// Store is the stream subset the subscriber needs.
type Store interface {
	Appender
	XGroupCreate(ctx context.Context, stream, group string) error
	XReadGroup(ctx context.Context, q *db.StreamReadQuery) ([]db.StreamMessage, error)
	XAck(ctx context.Context, stream, group string, ids ...string) error
	XAutoClaim(ctx context.Context, q *db.StreamClaimQuery) (string, []db.StreamMessage, error)
}

// Handler applies one decoded event. Errors wrapping domain.ErrMalformedEvent
// are permanent; any other error is retried in place.
type Handler interface {
	Apply(ctx context.Context, env event.Envelope) error
}

// SubscriberConfig configures the consumer group lanes.
type SubscriberConfig struct {
	Topology
	Group      string
	Consumer   string
	DeadLetter string
	BatchSize  int
	Block      time.Duration
	// ClaimInterval of 0 disables the reclaimer.
	ClaimInterval time.Duration
	ClaimIdle     time.Duration
	RetryInitial  time.Duration
	RetryMax      time.Duration
}

func (c *SubscriberConfig) applyDefaults() {
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	if c.Partitions < 1 {
		c.Partitions = 1
	}
	if c.DeadLetter == "" {
		c.DeadLetter = DefaultDeadLetter
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.ClaimIdle <= 0 {
		c.ClaimIdle = time.Minute
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = 100 * time.Millisecond
	}
	if c.RetryMax < c.RetryInitial {
		c.RetryMax = max(5*time.Second, c.RetryInitial)
	}
}

// Subscriber consumes every partition stream through one consumer group.
// Each partition gets its own lane, so events sharing a key are applied in
// stream order and a failing event blocks only its own partition.
type Subscriber struct {
	store   Store
	handler Handler
	cfg     SubscriberConfig
	logger  *zap.Logger
}

// NewSubscriber creates a Subscriber.
func NewSubscriber(store Store, handler Handler, cfg SubscriberConfig, logger *zap.Logger) *Subscriber {
	cfg.applyDefaults()
	return &Subscriber{store: store, handler: handler, cfg: cfg, logger: logger}
}

// Run creates the consumer groups and consumes until ctx is cancelled.
// Returns nil on graceful shutdown.
func (s *Subscriber) Run(ctx context.Context) error {
	if s.cfg.Group == "" || s.cfg.Consumer == "" {
		return fmt.Errorf("consumer group and consumer name are required")
	}

	streams := s.cfg.Streams()
	for _, stream := range streams {
		if err := s.store.XGroupCreate(ctx, stream, s.cfg.Group); err != nil {
			return fmt.Errorf("create group %s on %s: %w", s.cfg.Group, stream, err)
		}
	}

	s.logger.Info("Subscriber started",
		zap.String("group", s.cfg.Group),
		zap.String("consumer", s.cfg.Consumer),
		zap.Int("partitions", len(streams)),
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, stream := range streams {
		g.Go(func() error { return s.lane(gctx, stream) })
		if s.cfg.ClaimInterval > 0 {
			g.Go(func() error { return s.reclaim(gctx, stream) })
		}
	}
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	s.logger.Info("Subscriber stopped")
	return nil
}

// lane first drains entries this consumer already owns (a previous run died
// before acking them), then follows new entries.
func (s *Subscriber) lane(ctx context.Context, stream string) error {
	log := s.logger.With(zap.String("stream", stream))
	draining := true
	cursor := db.StreamPending
	delay := s.cfg.RetryInitial

	for ctx.Err() == nil {
		q := &db.StreamReadQuery{
			Stream:   stream,
			Group:    s.cfg.Group,
			Consumer: s.cfg.Consumer,
			ID:       cursor,
			Count:    s.cfg.BatchSize,
		}
		if !draining {
			q.Block = s.cfg.Block
		}

		msgs, err := s.store.XReadGroup(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("Stream read failed", zap.Error(err), zap.Duration("backoff", delay))
			if !sleep(ctx, delay) {
				return nil
			}
			delay = min(delay*2, s.cfg.RetryMax)
			continue
		}
		delay = s.cfg.RetryInitial

		if draining {
			if len(msgs) == 0 {
				draining = false
				cursor = db.StreamNew
				continue
			}
			cursor = msgs[len(msgs)-1].ID
		}

		for _, msg := range msgs {
			if !s.process(ctx, stream, msg) {
				return nil
			}
		}
	}
	return nil
}

// reclaim periodically takes over entries that sat unacknowledged longer
// than ClaimIdle, typically owned by a consumer that crashed.
func (s *Subscriber) reclaim(ctx context.Context, stream string) error {
	ticker := time.NewTicker(s.cfg.ClaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		s.claimOnce(ctx, stream)
	}
}

// claimOnce walks the pending list once. Returns the number of claimed entries.
func (s *Subscriber) claimOnce(ctx context.Context, stream string) int {
	log := s.logger.With(zap.String("stream", stream))
	start := db.StreamStart
	claimed := 0

	for ctx.Err() == nil {
		next, msgs, err := s.store.XAutoClaim(ctx, &db.StreamClaimQuery{
			Stream:   stream,
			Group:    s.cfg.Group,
			Consumer: s.cfg.Consumer,
			MinIdle:  s.cfg.ClaimIdle,
			Start:    start,
			Count:    s.cfg.BatchSize,
		})
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("Autoclaim failed", zap.Error(err))
			}
			return claimed
		}

		if len(msgs) > 0 {
			claimed += len(msgs)
			metrics.ClaimedTotal.WithLabelValues(stream).Add(float64(len(msgs)))
			log.Info("Reclaimed idle entries", zap.Int("count", len(msgs)))
		}
		for _, msg := range msgs {
			if !s.process(ctx, stream, msg) {
				return claimed
			}
		}

		if next == "" || next == db.StreamStart || (next == start && len(msgs) == 0) {
			return claimed
		}
		start = next
	}
	return claimed
}

// process applies one entry and acknowledges it. Transient failures are
// retried in place with capped exponential backoff; permanent ones go to
// the dead-letter stream. Returns false only when ctx is done before the
// entry was settled, in which case it stays pending.
func (s *Subscriber) process(ctx context.Context, stream string, msg db.StreamMessage) bool {
	log := s.logger.With(zap.String("stream", stream), zap.String("entry_id", msg.ID))

	env, permanent := event.Decode(msg.Fields)
	if permanent == nil {
		log = log.With(
			zap.String("event_id", env.ID),
			zap.String("kind", string(env.Kind)),
			zap.String("key", env.Key),
		)
		ok := s.retry(ctx, stream, log, "Apply", func() error {
			err := s.handler.Apply(ctx, env)
			if errors.Is(err, domain.ErrMalformedEvent) {
				permanent = err
				return nil
			}
			return err
		})
		if !ok {
			return false
		}
	}

	if permanent != nil {
		ok := s.retry(ctx, stream, log, "Dead-letter", func() error {
			return s.deadLetter(ctx, stream, msg, permanent)
		})
		if !ok {
			return false
		}
		metrics.DeadLettersTotal.WithLabelValues(stream).Inc()
		log.Error("Event dead-lettered", zap.Error(permanent))
	}

	s.ack(ctx, stream, msg.ID, log)
	return true
}

func (s *Subscriber) retry(ctx context.Context, stream string, log *zap.Logger, op string, fn func() error) bool {
	delay := s.cfg.RetryInitial
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		metrics.ProjectionRetriesTotal.WithLabelValues(stream).Inc()
		log.Warn(op+" failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
		)
		if !sleep(ctx, delay) {
			return false
		}
		delay = min(delay*2, s.cfg.RetryMax)
	}
}

func (s *Subscriber) deadLetter(ctx context.Context, stream string, msg db.StreamMessage, cause error) error {
	fields := make(map[string]string, len(msg.Fields)+3)
	for k, v := range msg.Fields {
		fields[k] = v
	}
	fields[FieldSourceStream] = stream
	fields[FieldSourceID] = msg.ID
	fields[FieldError] = cause.Error()

	if _, err := s.store.XAdd(ctx, s.cfg.DeadLetter, fields); err != nil {
		return fmt.Errorf("append to %s: %w", s.cfg.DeadLetter, err)
	}
	return nil
}

// ack runs detached from ctx so an entry applied right before shutdown is
// still acknowledged.
func (s *Subscriber) ack(ctx context.Context, stream, id string, log *zap.Logger) {
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
	defer cancel()
	if err := s.store.XAck(ackCtx, stream, s.cfg.Group, id); err != nil {
		log.Warn("Ack failed, entry will be redelivered", zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

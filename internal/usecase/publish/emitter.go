// Package publish moves committed domain events to the message channel:
// directly after commit (Emitter) or from the transactional outbox (Relay).
package publish

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/askdex/internal/domain/event"
	"github.com/kailas-cloud/askdex/internal/metrics"
)

const defaultPublishTimeout = 2 * time.Second

// Emitter publishes events after the mutation that produced them committed.
// Failures are logged and counted, never returned: the mutation stands.
type Emitter struct {
	pub     Publisher
	outbox  Marker
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewEmitter creates an Emitter for direct delivery.
func NewEmitter(pub Publisher, timeout time.Duration, logger *zap.Logger) *Emitter {
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &Emitter{pub: pub, timeout: timeout, logger: logger, now: time.Now}
}

// WithOutbox makes the Emitter mark rows published after each successful
// publish. Rows it fails to publish are left to the Relay.
func (e *Emitter) WithOutbox(m Marker) *Emitter {
	e.outbox = m
	return e
}

// Emit publishes envs in order. A client disconnect does not abort it.
func (e *Emitter) Emit(ctx context.Context, envs ...event.Envelope) {
	base := context.WithoutCancel(ctx)
	for i := range envs {
		e.emitOne(base, &envs[i])
	}
}

func (e *Emitter) emitOne(ctx context.Context, env *event.Envelope) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	_, err := e.pub.Publish(ctx, env)
	metrics.EventsPublishedTotal.WithLabelValues(string(env.Kind), metrics.StatusOf(err)).Inc()
	if err != nil {
		e.logger.Error("Event publish failed",
			zap.String("event_id", env.ID),
			zap.String("kind", string(env.Kind)),
			zap.String("key", env.Key),
			zap.Int64("revision", env.Revision),
			zap.Error(err),
		)
		return
	}

	if e.outbox == nil {
		return
	}
	if err := e.outbox.MarkPublished(ctx, env.ID, e.now().UTC()); err != nil {
		// The relay will publish it again; consumers are idempotent.
		e.logger.Warn("Outbox mark failed", zap.String("event_id", env.ID), zap.Error(err))
	}
}

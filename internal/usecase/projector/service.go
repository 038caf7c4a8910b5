// Package projector applies domain events to the search index so that it
// converges to the projection of the system of record under duplicate and
// reordered delivery.
package projector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/askdex/internal/domain"
	domdoc "github.com/kailas-cloud/askdex/internal/domain/document"
	"github.com/kailas-cloud/askdex/internal/domain/event"
	"github.com/kailas-cloud/askdex/internal/metrics"
)

// Result labels for askdex_events_projected_total.
const (
	ResultUpserted  = "upserted"
	ResultDeleted   = "deleted"
	ResultMalformed = "malformed"
	ResultError     = "error"
	resultSkip      = "skipped_"
)

const (
	defaultStripes    = 256
	maxCommitAttempts = 5
)

// Config tunes the projector.
type Config struct {
	TombstoneTTL time.Duration
	// ApplyTimeout bounds the index calls of one Apply; 0 disables it.
	ApplyTimeout time.Duration
	// Stripes is the number of per-id lock stripes.
	Stripes int
}

// Service applies events one document at a time.
type Service struct {
	index  Index
	cfg    Config
	locks  []sync.Mutex
	logger *zap.Logger
}

// New creates a projector Service.
func New(index Index, cfg Config, logger *zap.Logger) *Service {
	if cfg.Stripes <= 0 {
		cfg.Stripes = defaultStripes
	}
	if cfg.TombstoneTTL <= 0 {
		cfg.TombstoneTTL = 24 * time.Hour
	}
	return &Service{
		index:  index,
		cfg:    cfg,
		locks:  make([]sync.Mutex, cfg.Stripes),
		logger: logger,
	}
}

// Apply projects env onto the index. Duplicates and stale events succeed
// without effect. Errors wrapping domain.ErrMalformedEvent are permanent;
// any other error means the index was not updated and Apply may be retried.
func (s *Service) Apply(ctx context.Context, env event.Envelope) error {
	start := time.Now()

	result, err := s.apply(ctx, env)

	metrics.EventsProjectedTotal.WithLabelValues(string(env.Kind), result).Inc()
	metrics.ProjectionDuration.WithLabelValues(string(env.Kind)).Observe(time.Since(start).Seconds())

	if err != nil {
		return err
	}
	s.logger.Debug("Event projected",
		zap.String("event_id", env.ID),
		zap.String("kind", string(env.Kind)),
		zap.String("key", env.Key),
		zap.Int64("revision", env.Revision),
		zap.String("result", result),
	)
	return nil
}

func (s *Service) apply(ctx context.Context, env event.Envelope) (string, error) {
	if env.Payload == nil || env.Key == "" {
		return ResultMalformed, fmt.Errorf("%w: %s without payload or key", domain.ErrMalformedEvent, env.Kind)
	}
	switch env.Payload.(type) {
	case event.AnswerCountUpdated, event.AnswerAccepted:
		return resultSkip + domdoc.ReasonNotIndexed, nil
	}

	if s.cfg.ApplyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ApplyTimeout)
		defer cancel()
	}

	// Lane, reclaimer and reindex may touch the same id concurrently.
	// Other replicas are fenced by Commit.
	mu := &s.locks[event.Partition(env.Key, len(s.locks))]
	mu.Lock()
	defer mu.Unlock()

	for attempt := 1; ; attempt++ {
		snap, err := s.index.Load(ctx, env.Key)
		if err != nil {
			return ResultError, fmt.Errorf("load %s: %w", env.Key, err)
		}

		d, err := domdoc.Project(snap.Current, snap.Tombstone, env)
		if err != nil {
			return ResultMalformed, err
		}
		if d.Action == domdoc.ActionSkip {
			return resultSkip + d.Reason, nil
		}

		err = s.index.Commit(ctx, snap, d, s.cfg.TombstoneTTL)
		switch {
		case err == nil:
			if d.Action == domdoc.ActionDelete {
				return ResultDeleted, nil
			}
			return ResultUpserted, nil
		case errors.Is(err, domain.ErrConflict) && attempt < maxCommitAttempts:
			s.logger.Debug("Concurrent index write, reloading",
				zap.String("key", env.Key),
				zap.Int64("revision", env.Revision),
				zap.Int("attempt", attempt),
			)
		default:
			return ResultError, fmt.Errorf("commit %s %s: %w", d.Action, env.Key, err)
		}
	}
}

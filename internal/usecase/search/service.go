// Package search translates free-text queries and runs them against the
// question index.
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/askdex/internal/domain"
	domdoc "github.com/kailas-cloud/askdex/internal/domain/document"
	"github.com/kailas-cloud/askdex/internal/domain/search/query"
	"github.com/kailas-cloud/askdex/internal/metrics"
)

// Service handles keyword and title-similarity search.
type Service struct {
	index        Index
	defaultLimit int
	maxLimit     int
	timeout      time.Duration
}

// New creates a search service.
func New(index Index) *Service {
	return &Service{
		index:        index,
		defaultLimit: query.DefaultLimit,
		maxLimit:     query.MaxLimit,
	}
}

// WithLimits configures result sizes.
func (s *Service) WithLimits(defaultLimit, maxLimit int) *Service {
	if defaultLimit > 0 {
		s.defaultLimit = defaultLimit
	}
	if maxLimit > 0 {
		s.maxLimit = maxLimit
	}
	return s
}

// WithTimeout bounds every index call.
func (s *Service) WithTimeout(d time.Duration) *Service {
	s.timeout = d
	return s
}

// Search parses raw ("term [tag]") and returns documents ranked by relevance
// over title and content. limit 0 selects the default.
func (s *Service) Search(ctx context.Context, raw string, limit int) ([]domdoc.Hit, error) {
	return s.run(ctx, raw, query.ModeFull, limit)
}

// SimilarTitles ranks documents by title match only; brackets are not parsed.
func (s *Service) SimilarTitles(ctx context.Context, raw string, limit int) ([]domdoc.Hit, error) {
	return s.run(ctx, raw, query.ModeTitles, limit)
}

func (s *Service) run(ctx context.Context, raw string, mode query.Mode, limit int) ([]domdoc.Hit, error) {
	q, err := query.New(raw, mode, limit, s.defaultLimit, s.maxLimit)
	if err != nil {
		return nil, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	hits, err := s.index.Search(ctx, q)
	metrics.SearchRequestsTotal.WithLabelValues(string(mode), metrics.StatusOf(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, err)
	}
	if hits == nil {
		hits = []domdoc.Hit{}
	}
	return hits, nil
}

// Package reindex rebuilds the search index from the system of record.
package reindex

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/askdex/internal/domain"
	"github.com/kailas-cloud/askdex/internal/domain/event"
)

const defaultPageSize = 500

// Stats summarizes a rebuild.
type Stats struct {
	Questions int
	Pages     int
	// Pruned counts indexed documents whose question no longer exists.
	Pruned int
}

// Service replays every question through the projector as a QuestionCreated
// at its current revision, so the usual revision guard and merge rules apply.
// Indexed documents left without a question are then deleted.
type Service struct {
	source   Source
	applier  Applier
	admin    IndexAdmin
	pageSize int
	logger   *zap.Logger
}

// New creates a reindex Service.
func New(source Source, applier Applier, admin IndexAdmin, pageSize int, logger *zap.Logger) *Service {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Service{source: source, applier: applier, admin: admin, pageSize: pageSize, logger: logger}
}

// Run rebuilds the index. With drop, the index and its documents are
// removed first.
func (s *Service) Run(ctx context.Context, drop bool) (Stats, error) {
	var stats Stats

	if drop {
		if err := s.admin.DropIndex(ctx); err != nil {
			return stats, fmt.Errorf("drop index: %w", err)
		}
		s.logger.Info("Index dropped")
	}
	if err := s.admin.EnsureIndex(ctx); err != nil {
		return stats, fmt.Errorf("ensure index: %w", err)
	}

	seen := make(map[string]struct{})
	after := ""
	for {
		page, err := s.source.Page(ctx, after, s.pageSize)
		if err != nil {
			return stats, fmt.Errorf("read page after %q: %w", after, err)
		}
		if len(page) == 0 {
			break
		}
		stats.Pages++

		for i := range page {
			if err := s.applier.Apply(ctx, page[i].CreatedEvent()); err != nil {
				return stats, fmt.Errorf("apply question %s: %w", page[i].ID, err)
			}
			seen[page[i].ID] = struct{}{}
			stats.Questions++
		}
		after = page[len(page)-1].ID

		s.logger.Info("Reindex progress", zap.Int("questions", stats.Questions), zap.Int("pages", stats.Pages))
		if len(page) < s.pageSize {
			break
		}
	}

	err := s.admin.IDs(ctx, func(ids []string) error {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			pruned, err := s.prune(ctx, id)
			if err != nil {
				return err
			}
			if pruned {
				seen[id] = struct{}{}
				stats.Pruned++
			}
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("prune orphans: %w", err)
	}

	s.logger.Info("Reindex finished", zap.Int("questions", stats.Questions), zap.Int("pruned", stats.Pruned))
	return stats, nil
}

// prune deletes the document of id when its question is gone. A question
// created after the scan passed its id is kept.
func (s *Service) prune(ctx context.Context, id string) (bool, error) {
	_, err := s.source.Get(ctx, id)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, domain.ErrNotFound):
		return false, fmt.Errorf("read question %s: %w", id, err)
	}

	if err := s.applier.Apply(ctx, event.New(event.QuestionDeleted{QuestionID: id}, 0)); err != nil {
		return false, fmt.Errorf("delete orphan %s: %w", id, err)
	}
	s.logger.Debug("Orphan document deleted", zap.String("question_id", id))
	return true, nil
}

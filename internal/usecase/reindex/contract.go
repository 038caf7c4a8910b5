package reindex

import (
	"context"

	"github.com/kailas-cloud/askdex/internal/domain/event"
	domq "github.com/kailas-cloud/askdex/internal/domain/question"
)

// Source pages through every question in id order.
type Source interface {
	Page(ctx context.Context, after string, limit int) ([]domq.Question, error)
	// Get returns domain.ErrNotFound for a deleted question.
	Get(ctx context.Context, id string) (*domq.Question, error)
}

// Applier projects one event onto the index.
type Applier interface {
	Apply(ctx context.Context, env event.Envelope) error
}

// IndexAdmin manages the index definition and lists indexed documents.
type IndexAdmin interface {
	EnsureIndex(ctx context.Context) error
	// DropIndex drops the index together with its documents.
	DropIndex(ctx context.Context) error
	IDs(ctx context.Context, fn func(ids []string) error) error
}

package question

import (
	"context"

	"github.com/kailas-cloud/askdex/internal/domain/event"
	domq "github.com/kailas-cloud/askdex/internal/domain/question"
)

// Repository is the system-of-record storage for questions and answers.
type Repository interface {
	Create(ctx context.Context, q *domq.Question) error
	Get(ctx context.Context, id string) (*domq.Question, error)
	IncrementViews(ctx context.Context, id string) (int, error)
	List(ctx context.Context, tag string) ([]domq.Question, error)
	// Update stores the searchable fields and sets q.Revision to the bumped revision.
	Update(ctx context.Context, q *domq.Question) error
	// Delete returns the revision the deletion is recorded at.
	Delete(ctx context.Context, id string) (int64, error)

	ListAnswers(ctx context.Context, questionID string) ([]domq.Answer, error)
	GetAnswer(ctx context.Context, questionID, answerID string) (*domq.Answer, error)
	// CreateAnswer and DeleteAnswer return the new answer count.
	CreateAnswer(ctx context.Context, a *domq.Answer) (int, error)
	UpdateAnswer(ctx context.Context, a *domq.Answer) error
	DeleteAnswer(ctx context.Context, questionID, answerID string) (int, error)
	AcceptAnswer(ctx context.Context, questionID, answerID string) error
}

// TagCatalog reports which tag slugs exist.
type TagCatalog interface {
	Existing(ctx context.Context, slugs []string) (map[string]bool, error)
}

// Transactor runs fn inside one system-of-record transaction.
type Transactor interface {
	ExecTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Outbox stores events in the mutation's transaction.
type Outbox interface {
	Add(ctx context.Context, env *event.Envelope) error
}

// Emitter publishes committed events. It never fails the caller.
type Emitter interface {
	Emit(ctx context.Context, envs ...event.Envelope)
}

// Package question implements question and answer mutations on the system
// of record and emits the domain events the search index is built from.
package question

import (
	"context"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/kailas-cloud/askdex/internal/domain"
	"github.com/kailas-cloud/askdex/internal/domain/event"
	domq "github.com/kailas-cloud/askdex/internal/domain/question"
)

// Input limits.
const (
	MinTitleLength = 5
	MaxTitleLength = 300
	MinTags        = 1
	MaxTags        = 5
)

// Service handles question and answer CRUD.
type Service struct {
	repo    Repository
	tags    TagCatalog
	tx      Transactor
	outbox  Outbox
	emitter Emitter
	now     func() time.Time
}

// New creates a question service with direct (post-commit) event delivery.
func New(repo Repository, tags TagCatalog, tx Transactor, emitter Emitter) *Service {
	return &Service{repo: repo, tags: tags, tx: tx, emitter: emitter, now: time.Now}
}

// WithOutbox additionally records every event in the mutation's transaction.
func (s *Service) WithOutbox(o Outbox) *Service {
	s.outbox = o
	return s
}

// Create stores a new question asked by the acting user.
func (s *Service) Create(ctx context.Context, draft domq.Draft) (*domq.Question, error) {
	who, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateDraft(&draft); err != nil {
		return nil, err
	}

	q := &domq.Question{
		ID:               uuid.NewString(),
		Title:            draft.Title,
		Content:          draft.Content,
		TagSlugs:         draft.Tags,
		AskerID:          who.ID,
		AskerDisplayName: who.DisplayName,
		CreatedAt:        s.now().UTC(),
	}

	err = s.commit(ctx, func(ctx context.Context) ([]event.Envelope, error) {
		if err := s.checkTags(ctx, q.TagSlugs); err != nil {
			return nil, err
		}
		if err := s.repo.Create(ctx, q); err != nil {
			return nil, fmt.Errorf("create question: %w", err)
		}
		return []event.Envelope{q.CreatedEvent()}, nil
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Get returns a question with its answers and counts the view.
func (s *Service) Get(ctx context.Context, id string) (*domq.Question, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	if _, err := s.repo.IncrementViews(ctx, id); err != nil {
		return nil, fmt.Errorf("count view: %w", err)
	}
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}

	answers, err := s.repo.ListAnswers(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	q.Answers = answers
	return q, nil
}

// List returns questions newest first, optionally only those tagged tag.
func (s *Service) List(ctx context.Context, tag string) ([]domq.Question, error) {
	qs, err := s.repo.List(ctx, tag)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if qs == nil {
		qs = []domq.Question{}
	}
	return qs, nil
}

// Update replaces title, content and tags. Only the asker may update.
func (s *Service) Update(ctx context.Context, id string, draft domq.Draft) error {
	who, err := actor(ctx)
	if err != nil {
		return err
	}
	if err := checkID(id); err != nil {
		return err
	}
	if err := validateDraft(&draft); err != nil {
		return err
	}

	return s.commit(ctx, func(ctx context.Context) ([]event.Envelope, error) {
		q, err := s.ownedQuestion(ctx, id, who)
		if err != nil {
			return nil, err
		}
		if err := s.checkTags(ctx, draft.Tags); err != nil {
			return nil, err
		}

		now := s.now().UTC()
		q.Title, q.Content, q.TagSlugs, q.UpdatedAt = draft.Title, draft.Content, draft.Tags, &now
		if err := s.repo.Update(ctx, q); err != nil {
			return nil, fmt.Errorf("update question: %w", err)
		}
		return []event.Envelope{q.UpdatedEvent()}, nil
	})
}

// Delete removes a question and its answers. Only the asker may delete.
func (s *Service) Delete(ctx context.Context, id string) error {
	who, err := actor(ctx)
	if err != nil {
		return err
	}
	if err := checkID(id); err != nil {
		return err
	}

	return s.commit(ctx, func(ctx context.Context) ([]event.Envelope, error) {
		if _, err := s.ownedQuestion(ctx, id, who); err != nil {
			return nil, err
		}
		rev, err := s.repo.Delete(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("delete question: %w", err)
		}
		return []event.Envelope{event.New(event.QuestionDeleted{QuestionID: id}, rev)}, nil
	})
}

// AddAnswer stores an answer by the acting user.
func (s *Service) AddAnswer(ctx context.Context, questionID, content string) (*domq.Answer, error) {
	who, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkID(questionID); err != nil {
		return nil, err
	}
	if err := validateAnswer(content); err != nil {
		return nil, err
	}

	a := &domq.Answer{
		ID:              uuid.NewString(),
		QuestionID:      questionID,
		Content:         content,
		UserID:          who.ID,
		UserDisplayName: who.DisplayName,
		CreatedAt:       s.now().UTC(),
	}
	err = s.commit(ctx, func(ctx context.Context) ([]event.Envelope, error) {
		count, err := s.repo.CreateAnswer(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("create answer: %w", err)
		}
		return []event.Envelope{answerCount(questionID, count)}, nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// UpdateAnswer replaces an answer's content. Only its author may update.
func (s *Service) UpdateAnswer(ctx context.Context, questionID, answerID, content string) error {
	who, err := actor(ctx)
	if err != nil {
		return err
	}
	if err := checkID(questionID, answerID); err != nil {
		return err
	}
	if err := validateAnswer(content); err != nil {
		return err
	}

	return s.commit(ctx, func(ctx context.Context) ([]event.Envelope, error) {
		a, err := s.ownedAnswer(ctx, questionID, answerID, who)
		if err != nil {
			return nil, err
		}
		now := s.now().UTC()
		a.Content, a.UpdatedAt = content, &now
		if err := s.repo.UpdateAnswer(ctx, a); err != nil {
			return nil, fmt.Errorf("update answer: %w", err)
		}
		return nil, nil
	})
}

// DeleteAnswer removes an answer. Only its author may delete, and an
// accepted answer cannot be deleted.
func (s *Service) DeleteAnswer(ctx context.Context, questionID, answerID string) error {
	who, err := actor(ctx)
	if err != nil {
		return err
	}
	if err := checkID(questionID, answerID); err != nil {
		return err
	}

	return s.commit(ctx, func(ctx context.Context) ([]event.Envelope, error) {
		a, err := s.ownedAnswer(ctx, questionID, answerID, who)
		if err != nil {
			return nil, err
		}
		if a.Accepted {
			return nil, fmt.Errorf("answer %s is accepted: %w", answerID, domain.ErrConflict)
		}
		count, err := s.repo.DeleteAnswer(ctx, questionID, answerID)
		if err != nil {
			return nil, fmt.Errorf("delete answer: %w", err)
		}
		return []event.Envelope{answerCount(questionID, count)}, nil
	})
}

// AcceptAnswer marks an answer accepted. Only the question's asker may
// accept, and only once per question.
func (s *Service) AcceptAnswer(ctx context.Context, questionID, answerID string) error {
	who, err := actor(ctx)
	if err != nil {
		return err
	}
	if err := checkID(questionID, answerID); err != nil {
		return err
	}

	return s.commit(ctx, func(ctx context.Context) ([]event.Envelope, error) {
		if _, err := s.ownedQuestion(ctx, questionID, who); err != nil {
			return nil, err
		}
		if _, err := s.repo.GetAnswer(ctx, questionID, answerID); err != nil {
			return nil, fmt.Errorf("get answer: %w", err)
		}
		if err := s.repo.AcceptAnswer(ctx, questionID, answerID); err != nil {
			return nil, fmt.Errorf("accept answer: %w", err)
		}
		return []event.Envelope{event.New(event.AnswerAccepted{QuestionID: questionID}, 0)}, nil
	})
}

// commit runs fn in a transaction, stores its events in the outbox when
// configured, and emits them once the transaction committed.
func (s *Service) commit(ctx context.Context, fn func(ctx context.Context) ([]event.Envelope, error)) error {
	var envs []event.Envelope
	err := s.tx.ExecTx(ctx, func(ctx context.Context) error {
		var err error
		envs, err = fn(ctx)
		if err != nil {
			return err
		}
		if s.outbox == nil {
			return nil
		}
		for i := range envs {
			if err := s.outbox.Add(ctx, &envs[i]); err != nil {
				return fmt.Errorf("store event in outbox: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(envs) > 0 {
		s.emitter.Emit(ctx, envs...)
	}
	return nil
}

func (s *Service) ownedQuestion(ctx context.Context, id string, who domain.Identity) (*domq.Question, error) {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	if !q.IsOwnedBy(who.ID) {
		return nil, fmt.Errorf("question %s is not owned by %s: %w", id, who.ID, domain.ErrForbidden)
	}
	return q, nil
}

func (s *Service) ownedAnswer(ctx context.Context, questionID, answerID string, who domain.Identity) (*domq.Answer, error) {
	a, err := s.repo.GetAnswer(ctx, questionID, answerID)
	if err != nil {
		return nil, fmt.Errorf("get answer: %w", err)
	}
	if !a.IsOwnedBy(who.ID) {
		return nil, fmt.Errorf("answer %s is not owned by %s: %w", answerID, who.ID, domain.ErrForbidden)
	}
	return a, nil
}

// checkTags rejects the whole mutation if any slug is missing from the catalog.
func (s *Service) checkTags(ctx context.Context, slugs []string) error {
	existing, err := s.tags.Existing(ctx, slugs)
	if err != nil {
		return fmt.Errorf("check tags: %w", err)
	}
	var invalid []string
	for _, slug := range slugs {
		if !existing[slug] {
			invalid = append(invalid, slug)
		}
	}
	if len(invalid) > 0 {
		return &domain.InvalidTagsError{Slugs: invalid}
	}
	return nil
}

func answerCount(questionID string, count int) event.Envelope {
	return event.New(event.AnswerCountUpdated{QuestionID: questionID, Count: count}, 0)
}

func actor(ctx context.Context) (domain.Identity, error) {
	who, ok := domain.IdentityFromContext(ctx)
	if !ok {
		return domain.Identity{}, domain.ErrUnauthorized
	}
	return who, nil
}

// checkID maps malformed identifiers to not found: no such row can exist.
func checkID(ids ...string) error {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return fmt.Errorf("id %q: %w", id, domain.ErrNotFound)
		}
	}
	return nil
}

func validateDraft(d *domq.Draft) error {
	d.Normalize()
	err := validation.ValidateStruct(d,
		validation.Field(&d.Title, validation.Required, validation.RuneLength(MinTitleLength, MaxTitleLength)),
		validation.Field(&d.Content, validation.Required),
		validation.Field(&d.Tags, validation.Required, validation.Length(MinTags, MaxTags)),
	)
	return toValidationError(err)
}

func validateAnswer(content string) error {
	if err := validation.Validate(content, validation.Required); err != nil {
		return domain.NewValidationError("content", err.Error())
	}
	return nil
}

func toValidationError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}
	fields := make(map[string]string, len(verrs))
	for name, ferr := range verrs {
		fields[name] = ferr.Error()
	}
	return &domain.ValidationError{Fields: fields}
}

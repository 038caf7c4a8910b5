package testutil

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/kailas-cloud/askdex/internal/domain"
	domq "github.com/kailas-cloud/askdex/internal/domain/question"
)

// Questions is an in-memory system of record with the same revision and
// counter semantics as the Postgres repository: every searchable change
// bumps the revision, counters are incremented in place.
type Questions struct {
	mu        sync.Mutex
	questions map[string]*domq.Question
	answers   map[string]*domq.Answer
	// order keeps insertion order for List and Page.
	order []string
}

// NewQuestions creates an empty Questions store.
func NewQuestions() *Questions {
	return &Questions{
		questions: make(map[string]*domq.Question),
		answers:   make(map[string]*domq.Answer),
	}
}

// Create stores q at revision 1.
func (s *Questions) Create(_ context.Context, q *domq.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.questions[q.ID]; ok {
		return domain.ErrConflict
	}
	q.Revision = 1
	cp := *q
	s.questions[q.ID] = &cp
	s.order = append(s.order, q.ID)
	return nil
}

// Get returns a copy of the question or domain.ErrNotFound.
func (s *Questions) Get(_ context.Context, id string) (*domq.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.questions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *q
	return &cp, nil
}

// IncrementViews bumps the view counter and returns the new value.
func (s *Questions) IncrementViews(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.questions[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	q.ViewCount++
	return q.ViewCount, nil
}

// List returns questions newest first, optionally only those tagged tag.
func (s *Questions) List(_ context.Context, tag string) ([]domq.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domq.Question{}
	for i := len(s.order) - 1; i >= 0; i-- {
		q, ok := s.questions[s.order[i]]
		if !ok {
			continue
		}
		if tag == "" || slices.Contains(q.TagSlugs, tag) {
			out = append(out, *q)
		}
	}
	return out, nil
}

// Page returns up to limit questions with id greater than after, in id order.
func (s *Questions) Page(_ context.Context, after string, limit int) ([]domq.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.questions))
	for id := range s.questions {
		if strings.Compare(id, after) > 0 {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]domq.Question, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.questions[id])
	}
	return out, nil
}

// Update stores the searchable fields and bumps the revision.
func (s *Questions) Update(_ context.Context, q *domq.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.questions[q.ID]
	if !ok {
		return domain.ErrNotFound
	}
	stored.Title, stored.Content, stored.TagSlugs = q.Title, q.Content, slices.Clone(q.TagSlugs)
	stored.UpdatedAt = q.UpdatedAt
	stored.Revision++
	q.Revision = stored.Revision
	return nil
}

// Delete removes the question and its answers, returning the delete revision.
func (s *Questions) Delete(_ context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.questions[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	delete(s.questions, id)
	for aid, a := range s.answers {
		if a.QuestionID == id {
			delete(s.answers, aid)
		}
	}
	return q.Revision + 1, nil
}

// ListAnswers returns the answers of a question.
func (s *Questions) ListAnswers(_ context.Context, questionID string) ([]domq.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domq.Answer{}
	for _, a := range s.answers {
		if a.QuestionID == questionID {
			out = append(out, *a)
		}
	}
	slices.SortFunc(out, func(a, b domq.Answer) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

// GetAnswer returns the answer if it belongs to questionID.
func (s *Questions) GetAnswer(_ context.Context, questionID, answerID string) (*domq.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.answers[answerID]
	if !ok || a.QuestionID != questionID {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// CreateAnswer stores a and returns the new answer count.
func (s *Questions) CreateAnswer(_ context.Context, a *domq.Answer) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.questions[a.QuestionID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	cp := *a
	s.answers[a.ID] = &cp
	q.AnswerCount++
	return q.AnswerCount, nil
}

// UpdateAnswer replaces the answer content.
func (s *Questions) UpdateAnswer(_ context.Context, a *domq.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.answers[a.ID]
	if !ok {
		return domain.ErrNotFound
	}
	stored.Content, stored.UpdatedAt = a.Content, a.UpdatedAt
	return nil
}

// DeleteAnswer removes the answer and returns the new answer count.
func (s *Questions) DeleteAnswer(_ context.Context, questionID, answerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.answers[answerID]
	if !ok || a.QuestionID != questionID {
		return 0, domain.ErrNotFound
	}
	delete(s.answers, answerID)
	q := s.questions[questionID]
	q.AnswerCount--
	return q.AnswerCount, nil
}

// AcceptAnswer marks the answer accepted; a second accept is domain.ErrConflict.
func (s *Questions) AcceptAnswer(_ context.Context, questionID, answerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.questions[questionID]
	a, aok := s.answers[answerID]
	if !ok || !aok || a.QuestionID != questionID {
		return domain.ErrNotFound
	}
	if q.HasAcceptedAnswer {
		return domain.ErrConflict
	}
	a.Accepted = true
	q.HasAcceptedAnswer = true
	return nil
}

// Tags is an in-memory tag catalog.
type Tags []string

// Existing reports which slugs are in the catalog.
func (t Tags) Existing(_ context.Context, slugs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(slugs))
	for _, s := range slugs {
		if slices.Contains(t, s) {
			out[s] = true
		}
	}
	return out, nil
}

// Tx runs fn directly; the in-memory stores have no rollback.
type Tx struct{}

// ExecTx calls fn with ctx.
func (Tx) ExecTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

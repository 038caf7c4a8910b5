// Package question persists questions and answers in Postgres.
package question

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kailas-cloud/askdex/internal/db/postgres"
	"github.com/kailas-cloud/askdex/internal/domain"
	domq "github.com/kailas-cloud/askdex/internal/domain/question"
)

const questionColumns = `id, title, content, tag_slugs, asker_id, asker_display_name,
	created_at, updated_at, view_count, answer_count, has_accepted_answer, revision`

const answerColumns = `id, question_id, content, user_id, user_display_name,
	created_at, updated_at, accepted`

// Repo implements the question and reindex repositories.
type Repo struct {
	db postgres.DBTX
}

// New creates a question repository over a pool; a transaction in the
// context takes precedence.
func New(db postgres.DBTX) *Repo {
	return &Repo{db: db}
}

func (r *Repo) exec(ctx context.Context) postgres.DBTX {
	return postgres.Executor(ctx, r.db)
}

// Create inserts q. Revision starts at 1.
func (r *Repo) Create(ctx context.Context, q *domq.Question) error {
	q.Revision = 1
	_, err := r.exec(ctx).Exec(ctx, `
		INSERT INTO questions (id, title, content, tag_slugs, asker_id, asker_display_name, created_at, revision)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		q.ID, q.Title, q.Content, q.TagSlugs, q.AskerID, q.AskerDisplayName, q.CreatedAt, q.Revision,
	)
	if err != nil {
		if postgres.IsDuplicate(err) {
			return fmt.Errorf("question %s: %w", q.ID, domain.ErrConflict)
		}
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

// Get returns a question without answers.
func (r *Repo) Get(ctx context.Context, id string) (*domq.Question, error) {
	row := r.exec(ctx).QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id)
	q, err := scanQuestion(row)
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, fmt.Errorf("question %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get question: %w", err)
	}
	return q, nil
}

// IncrementViews atomically bumps the view counter and returns the new value.
func (r *Repo) IncrementViews(ctx context.Context, id string) (int, error) {
	var n int
	err := r.exec(ctx).QueryRow(ctx,
		`UPDATE questions SET view_count = view_count + 1 WHERE id = $1 RETURNING view_count`, id,
	).Scan(&n)
	if err != nil {
		if postgres.IsNoRows(err) {
			return 0, fmt.Errorf("question %s: %w", id, domain.ErrNotFound)
		}
		return 0, fmt.Errorf("increment views: %w", err)
	}
	return n, nil
}

// List returns questions newest first, optionally restricted to a tag.
func (r *Repo) List(ctx context.Context, tag string) ([]domq.Question, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if tag == "" {
		rows, err = r.exec(ctx).Query(ctx,
			`SELECT `+questionColumns+` FROM questions ORDER BY created_at DESC`)
	} else {
		rows, err = r.exec(ctx).Query(ctx,
			`SELECT `+questionColumns+` FROM questions WHERE $1 = ANY(tag_slugs) ORDER BY created_at DESC`, tag)
	}
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return collectQuestions(rows)
}

// Page returns up to limit questions with id greater than after, in id order.
func (r *Repo) Page(ctx context.Context, after string, limit int) ([]domq.Question, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if after == "" {
		rows, err = r.exec(ctx).Query(ctx,
			`SELECT `+questionColumns+` FROM questions ORDER BY id LIMIT $1`, limit)
	} else {
		rows, err = r.exec(ctx).Query(ctx,
			`SELECT `+questionColumns+` FROM questions WHERE id > $1 ORDER BY id LIMIT $2`, after, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("page questions: %w", err)
	}
	return collectQuestions(rows)
}

// Update replaces the searchable fields and bumps the revision.
func (r *Repo) Update(ctx context.Context, q *domq.Question) error {
	err := r.exec(ctx).QueryRow(ctx, `
		UPDATE questions
		SET title = $2, content = $3, tag_slugs = $4, updated_at = $5, revision = revision + 1
		WHERE id = $1
		RETURNING revision`,
		q.ID, q.Title, q.Content, q.TagSlugs, q.UpdatedAt,
	).Scan(&q.Revision)
	if err != nil {
		if postgres.IsNoRows(err) {
			return fmt.Errorf("question %s: %w", q.ID, domain.ErrNotFound)
		}
		return fmt.Errorf("update question: %w", err)
	}
	return nil
}

// Delete removes the question and its answers. It returns the revision the
// deletion is recorded at (one past the last stored revision).
func (r *Repo) Delete(ctx context.Context, id string) (int64, error) {
	var rev int64
	err := r.exec(ctx).QueryRow(ctx,
		`DELETE FROM questions WHERE id = $1 RETURNING revision + 1`, id,
	).Scan(&rev)
	if err != nil {
		if postgres.IsNoRows(err) {
			return 0, fmt.Errorf("question %s: %w", id, domain.ErrNotFound)
		}
		return 0, fmt.Errorf("delete question: %w", err)
	}
	return rev, nil
}

// ListAnswers returns the answers of a question, oldest first.
func (r *Repo) ListAnswers(ctx context.Context, questionID string) ([]domq.Answer, error) {
	rows, err := r.exec(ctx).Query(ctx,
		`SELECT `+answerColumns+` FROM answers WHERE question_id = $1 ORDER BY created_at`, questionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	answers := []domq.Answer{}
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		answers = append(answers, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answers: %w", err)
	}
	return answers, nil
}

// GetAnswer returns an answer of the given question.
func (r *Repo) GetAnswer(ctx context.Context, questionID, answerID string) (*domq.Answer, error) {
	row := r.exec(ctx).QueryRow(ctx,
		`SELECT `+answerColumns+` FROM answers WHERE id = $1 AND question_id = $2`, answerID, questionID)
	a, err := scanAnswer(row)
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, fmt.Errorf("answer %s: %w", answerID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get answer: %w", err)
	}
	return a, nil
}

// CreateAnswer inserts a and returns the question's new answer count.
func (r *Repo) CreateAnswer(ctx context.Context, a *domq.Answer) (int, error) {
	_, err := r.exec(ctx).Exec(ctx, `
		INSERT INTO answers (id, question_id, content, user_id, user_display_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.QuestionID, a.Content, a.UserID, a.UserDisplayName, a.CreatedAt,
	)
	if err != nil {
		if postgres.IsForeignKey(err) {
			return 0, fmt.Errorf("question %s: %w", a.QuestionID, domain.ErrNotFound)
		}
		return 0, fmt.Errorf("insert answer: %w", err)
	}
	return r.addAnswerCount(ctx, a.QuestionID, 1)
}

// UpdateAnswer replaces the content of an answer.
func (r *Repo) UpdateAnswer(ctx context.Context, a *domq.Answer) error {
	tag, err := r.exec(ctx).Exec(ctx,
		`UPDATE answers SET content = $3, updated_at = $4 WHERE id = $1 AND question_id = $2`,
		a.ID, a.QuestionID, a.Content, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update answer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("answer %s: %w", a.ID, domain.ErrNotFound)
	}
	return nil
}

// DeleteAnswer removes a non-accepted answer and returns the new answer count.
func (r *Repo) DeleteAnswer(ctx context.Context, questionID, answerID string) (int, error) {
	tag, err := r.exec(ctx).Exec(ctx,
		`DELETE FROM answers WHERE id = $1 AND question_id = $2 AND NOT accepted`, answerID, questionID)
	if err != nil {
		return 0, fmt.Errorf("delete answer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, fmt.Errorf("answer %s is accepted or gone: %w", answerID, domain.ErrConflict)
	}
	return r.addAnswerCount(ctx, questionID, -1)
}

// AcceptAnswer marks the answer accepted unless the question already has one.
func (r *Repo) AcceptAnswer(ctx context.Context, questionID, answerID string) error {
	tag, err := r.exec(ctx).Exec(ctx, `
		UPDATE answers SET accepted = TRUE
		WHERE id = $1 AND question_id = $2
		  AND NOT EXISTS (SELECT 1 FROM answers WHERE question_id = $2 AND accepted)`,
		answerID, questionID,
	)
	if err != nil {
		if postgres.IsDuplicate(err) {
			return fmt.Errorf("question %s: %w", questionID, domain.ErrConflict)
		}
		return fmt.Errorf("accept answer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("question %s already has an accepted answer: %w", questionID, domain.ErrConflict)
	}

	if _, err := r.exec(ctx).Exec(ctx,
		`UPDATE questions SET has_accepted_answer = TRUE WHERE id = $1`, questionID,
	); err != nil {
		return fmt.Errorf("flag accepted answer: %w", err)
	}
	return nil
}

func (r *Repo) addAnswerCount(ctx context.Context, questionID string, delta int) (int, error) {
	var n int
	err := r.exec(ctx).QueryRow(ctx,
		`UPDATE questions SET answer_count = GREATEST(answer_count + $2, 0) WHERE id = $1 RETURNING answer_count`,
		questionID, delta,
	).Scan(&n)
	if err != nil {
		if postgres.IsNoRows(err) {
			return 0, fmt.Errorf("question %s: %w", questionID, domain.ErrNotFound)
		}
		return 0, fmt.Errorf("update answer count: %w", err)
	}
	return n, nil
}

func scanQuestion(row pgx.Row) (*domq.Question, error) {
	var (
		q         domq.Question
		updatedAt *time.Time
	)
	err := row.Scan(
		&q.ID, &q.Title, &q.Content, &q.TagSlugs, &q.AskerID, &q.AskerDisplayName,
		&q.CreatedAt, &updatedAt, &q.ViewCount, &q.AnswerCount, &q.HasAcceptedAnswer, &q.Revision,
	)
	if err != nil {
		return nil, err
	}
	q.UpdatedAt = updatedAt
	if q.TagSlugs == nil {
		q.TagSlugs = []string{}
	}
	return &q, nil
}

func scanAnswer(row pgx.Row) (*domq.Answer, error) {
	var a domq.Answer
	if err := row.Scan(
		&a.ID, &a.QuestionID, &a.Content, &a.UserID, &a.UserDisplayName,
		&a.CreatedAt, &a.UpdatedAt, &a.Accepted,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

func collectQuestions(rows pgx.Rows) ([]domq.Question, error) {
	defer rows.Close()

	questions := []domq.Question{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return questions, nil
}

// Package outbox stores events written in the same transaction as the
// mutation that produced them, until they are published.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kailas-cloud/askdex/internal/db/postgres"
	"github.com/kailas-cloud/askdex/internal/domain/event"
)

// Record is a pending outbox row.
type Record struct {
	Seq      int64
	EventID  string
	Key      string
	Kind     event.Kind
	Revision int64
	Fields   map[string]string
}

// Repo implements the outbox table.
type Repo struct {
	db postgres.DBTX
}

// New creates an outbox repository.
func New(db postgres.DBTX) *Repo {
	return &Repo{db: db}
}

// Add stores env. Call it inside the mutation's transaction.
func (r *Repo) Add(ctx context.Context, env *event.Envelope) error {
	fields, err := env.Encode()
	if err != nil {
		return err
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal outbox fields: %w", err)
	}
	_, err = postgres.Executor(ctx, r.db).Exec(ctx, `
		INSERT INTO outbox (event_id, aggregate_id, kind, revision, fields)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO NOTHING`,
		env.ID, env.Key, string(env.Kind), env.Revision, data,
	)
	if err != nil {
		return fmt.Errorf("insert outbox %s: %w", env.ID, err)
	}
	return nil
}

// Pending returns up to limit unpublished rows in creation order.
func (r *Repo) Pending(ctx context.Context, limit int) ([]Record, error) {
	rows, err := postgres.Executor(ctx, r.db).Query(ctx, `
		SELECT seq, event_id, aggregate_id, kind, revision, fields
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY seq
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			rec  Record
			kind string
			raw  []byte
		)
		if err := rows.Scan(&rec.Seq, &rec.EventID, &rec.Key, &kind, &rec.Revision, &raw); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		rec.Kind = event.Kind(kind)
		if err := json.Unmarshal(raw, &rec.Fields); err != nil {
			return nil, fmt.Errorf("decode outbox %s: %w", rec.EventID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return records, nil
}

// MarkPublished stamps the row for eventID.
func (r *Repo) MarkPublished(ctx context.Context, eventID string, at time.Time) error {
	if _, err := postgres.Executor(ctx, r.db).Exec(ctx,
		`UPDATE outbox SET published_at = $2 WHERE event_id = $1 AND published_at IS NULL`, eventID, at,
	); err != nil {
		return fmt.Errorf("mark outbox %s: %w", eventID, err)
	}
	return nil
}

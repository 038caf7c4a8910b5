// Package tag reads the tag catalog.
package tag

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/askdex/internal/db/postgres"
)

// Repo reads the tags table.
type Repo struct {
	db postgres.DBTX
}

// New creates a tag repository.
func New(db postgres.DBTX) *Repo {
	return &Repo{db: db}
}

// Existing returns the subset of slugs present in the catalog.
func (r *Repo) Existing(ctx context.Context, slugs []string) (map[string]bool, error) {
	found := make(map[string]bool, len(slugs))
	if len(slugs) == 0 {
		return found, nil
	}

	rows, err := postgres.Executor(ctx, r.db).Query(ctx,
		`SELECT slug FROM tags WHERE slug = ANY($1)`, slugs)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		found[slug] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return found, nil
}

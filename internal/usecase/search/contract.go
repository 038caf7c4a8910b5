package search

import (
	"context"

	domdoc "github.com/kailas-cloud/askdex/internal/domain/document"
	"github.com/kailas-cloud/askdex/internal/domain/search/query"
)

// Index runs translated queries against the search index.
type Index interface {
	Search(ctx context.Context, q query.Query) ([]domdoc.Hit, error)
}

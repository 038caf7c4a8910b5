package projector

import (
	"context"
	"time"

	domdoc "github.com/kailas-cloud/askdex/internal/domain/document"
)

// Index is the search-index storage the projector writes to.
type Index interface {
	Load(ctx context.Context, id string) (domdoc.Snapshot, error)
	// Commit writes d only if the stored state still matches snap and
	// returns domain.ErrConflict otherwise.
	Commit(ctx context.Context, snap domdoc.Snapshot, d domdoc.Decision, tombstoneTTL time.Duration) error
}

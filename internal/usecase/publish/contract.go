package publish

import (
	"context"
	"time"

	"github.com/kailas-cloud/askdex/internal/domain/event"
	"github.com/kailas-cloud/askdex/internal/repository/outbox"
)

// Publisher hands events to the message channel.
type Publisher interface {
	Publish(ctx context.Context, env *event.Envelope) (string, error)
	PublishFields(ctx context.Context, key string, fields map[string]string) (string, error)
}

// Marker marks outbox rows as published.
type Marker interface {
	MarkPublished(ctx context.Context, eventID string, at time.Time) error
}

// Outbox reads unpublished rows.
type Outbox interface {
	Marker
	Pending(ctx context.Context, limit int) ([]outbox.Record, error)
}

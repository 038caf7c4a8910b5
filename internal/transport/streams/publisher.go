// Package streams carries domain events over Redis Streams: one stream per
// partition, consumed through a consumer group with one lane per partition.
package streams

import (
	"context"
	"fmt"
	"strconv"

	"github.com/kailas-cloud/askdex/internal/domain/event"
)

// Stream naming defaults.
const (
	DefaultPrefix     = "askdex:events:questions:"
	DefaultDeadLetter = "askdex:events:dead"
)

// Appender appends entries to a stream.
type Appender interface {
	XAdd(ctx context.Context, stream string, fields map[string]string) (string, error)
}

// Topology names the partition streams.
type Topology struct {
	Prefix     string
	Partitions int
}

// StreamFor returns the partition stream a question id is routed to.
func (t Topology) StreamFor(key string) string {
	return t.Stream(event.Partition(key, t.Partitions))
}

// Stream returns the name of partition n.
func (t Topology) Stream(n int) string {
	return t.Prefix + strconv.Itoa(n)
}

// Streams lists every partition stream.
func (t Topology) Streams() []string {
	n := max(t.Partitions, 1)
	out := make([]string, n)
	for i := range n {
		out[i] = t.Stream(i)
	}
	return out
}

// Publisher appends encoded envelopes to the partition stream of their key.
type Publisher struct {
	store    Appender
	topology Topology
}

// NewPublisher creates a Publisher.
func NewPublisher(store Appender, topology Topology) *Publisher {
	return &Publisher{store: store, topology: topology}
}

// Publish encodes env and appends it. Returns the stream entry id.
func (p *Publisher) Publish(ctx context.Context, env *event.Envelope) (string, error) {
	fields, err := env.Encode()
	if err != nil {
		return "", fmt.Errorf("encode event %s: %w", env.ID, err)
	}
	return p.PublishFields(ctx, env.Key, fields)
}

// PublishFields appends already-encoded envelope fields (outbox relay path).
func (p *Publisher) PublishFields(ctx context.Context, key string, fields map[string]string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("publish: empty partition key")
	}
	stream := p.topology.StreamFor(key)
	id, err := p.store.XAdd(ctx, stream, fields)
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", stream, err)
	}
	return id, nil
}

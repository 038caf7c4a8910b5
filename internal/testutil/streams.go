// Package testutil provides in-memory stand-ins for the Redis channel and
// the search index, used by unit and end-to-end tests.
package testutil

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kailas-cloud/askdex/internal/db"
)

type streamEntry struct {
	seq    int64
	fields map[string]string
}

type pendingEntry struct {
	consumer    string
	deliveredAt time.Time
	deliveries  int
}

type consumerGroup struct {
	lastDelivered int64
	pending       map[int64]*pendingEntry
}

// Streams is an in-memory Redis Streams with consumer groups. Entry ids are
// "<seq>-0" with one sequence shared by all streams.
type Streams struct {
	mu      sync.Mutex
	seq     int64
	streams map[string][]streamEntry
	groups  map[string]map[string]*consumerGroup
	changed chan struct{}

	// XAddErr, when set, fails every XAdd.
	XAddErr error
}

// NewStreams creates an empty Streams.
func NewStreams() *Streams {
	return &Streams{
		streams: make(map[string][]streamEntry),
		groups:  make(map[string]map[string]*consumerGroup),
		changed: make(chan struct{}),
	}
}

// XAdd appends an entry.
func (s *Streams) XAdd(_ context.Context, stream string, fields map[string]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.XAddErr != nil {
		return "", s.XAddErr
	}
	if len(fields) == 0 {
		return "", fmt.Errorf("at least one field is required")
	}
	s.seq++
	s.streams[stream] = append(s.streams[stream], streamEntry{seq: s.seq, fields: maps.Clone(fields)})

	close(s.changed)
	s.changed = make(chan struct{})
	return formatID(s.seq), nil
}

// XGroupCreate creates a group reading from the beginning. Existing groups are kept.
func (s *Streams) XGroupCreate(_ context.Context, stream, group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.groups[stream] == nil {
		s.groups[stream] = make(map[string]*consumerGroup)
	}
	if _, ok := s.groups[stream][group]; !ok {
		s.groups[stream][group] = &consumerGroup{pending: make(map[int64]*pendingEntry)}
	}
	return nil
}

// XReadGroup delivers new entries (">") or re-reads the consumer's pending
// ones (any other id). Only ">" reads block.
func (s *Streams) XReadGroup(ctx context.Context, q *db.StreamReadQuery) ([]db.StreamMessage, error) {
	deadline := time.Now().Add(q.Block)
	for {
		s.mu.Lock()
		msgs, err := s.readLocked(q)
		wait := s.changed
		s.mu.Unlock()

		if err != nil || len(msgs) > 0 || q.ID != db.StreamNew || q.Block <= 0 {
			return msgs, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}

		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-wait:
			timer.Stop()
		case <-timer.C:
			return nil, nil
		}
	}
}

func (s *Streams) readLocked(q *db.StreamReadQuery) ([]db.StreamMessage, error) {
	g, err := s.groupLocked(q.Stream, q.Group)
	if err != nil {
		return nil, err
	}
	limit := q.Count
	if limit <= 0 {
		limit = int(^uint(0) >> 1)
	}

	var out []db.StreamMessage
	if q.ID == db.StreamNew || q.ID == "" {
		for _, e := range s.streams[q.Stream] {
			if e.seq <= g.lastDelivered || len(out) >= limit {
				continue
			}
			g.lastDelivered = e.seq
			g.pending[e.seq] = &pendingEntry{consumer: q.Consumer, deliveredAt: time.Now(), deliveries: 1}
			out = append(out, db.StreamMessage{ID: formatID(e.seq), Fields: maps.Clone(e.fields)})
		}
		return out, nil
	}

	after, err := parseID(q.ID)
	if err != nil {
		return nil, err
	}
	for _, e := range s.streams[q.Stream] {
		p, ok := g.pending[e.seq]
		if !ok || p.consumer != q.Consumer || e.seq <= after || len(out) >= limit {
			continue
		}
		p.deliveries++
		p.deliveredAt = time.Now()
		out = append(out, db.StreamMessage{ID: formatID(e.seq), Fields: maps.Clone(e.fields)})
	}
	return out, nil
}

// XAck removes entries from the group's pending list.
func (s *Streams) XAck(_ context.Context, stream, group string, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.groupLocked(stream, group)
	if err != nil {
		return err
	}
	for _, id := range ids {
		seq, err := parseID(id)
		if err != nil {
			return err
		}
		delete(g.pending, seq)
	}
	return nil
}

// XAutoClaim transfers pending entries idle for at least MinIdle to Consumer.
func (s *Streams) XAutoClaim(_ context.Context, q *db.StreamClaimQuery) (string, []db.StreamMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.groupLocked(q.Stream, q.Group)
	if err != nil {
		return "", nil, err
	}
	start, err := parseID(q.Start)
	if err != nil {
		return "", nil, err
	}
	limit := q.Count
	if limit <= 0 {
		limit = 100
	}

	now := time.Now()
	var out []db.StreamMessage
	for _, e := range s.streams[q.Stream] {
		p, ok := g.pending[e.seq]
		if !ok || e.seq < start || now.Sub(p.deliveredAt) < q.MinIdle {
			continue
		}
		if len(out) == limit {
			return formatID(e.seq), out, nil
		}
		p.consumer = q.Consumer
		p.deliveredAt = now
		p.deliveries++
		out = append(out, db.StreamMessage{ID: formatID(e.seq), Fields: maps.Clone(e.fields)})
	}
	return db.StreamStart, out, nil
}

// Entries returns every entry of stream in order.
func (s *Streams) Entries(stream string) []db.StreamMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]db.StreamMessage, 0, len(s.streams[stream]))
	for _, e := range s.streams[stream] {
		out = append(out, db.StreamMessage{ID: formatID(e.seq), Fields: maps.Clone(e.fields)})
	}
	return out
}

// StreamNames lists streams holding at least one entry.
func (s *Streams) StreamNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.streams))
}

// Pending returns the number of delivered but unacknowledged entries.
func (s *Streams) Pending(stream, group string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.groupLocked(stream, group)
	if err != nil {
		return 0
	}
	return len(g.pending)
}

// Deliver marks entries as delivered to consumer without returning them,
// as if that consumer read them and crashed.
func (s *Streams) Deliver(stream, group, consumer string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.readLocked(&db.StreamReadQuery{
		Stream: stream, Group: group, Consumer: consumer, ID: db.StreamNew, Count: count,
	})
	return err
}

func (s *Streams) groupLocked(stream, group string) (*consumerGroup, error) {
	g, ok := s.groups[stream][group]
	if !ok {
		return nil, fmt.Errorf("NOGROUP no such key %q or consumer group %q", stream, group)
	}
	return g, nil
}

func formatID(seq int64) string { return strconv.FormatInt(seq, 10) + "-0" }

func parseID(id string) (int64, error) {
	ms, _, _ := strings.Cut(id, "-")
	seq, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid stream id %q", id)
	}
	return seq, nil
}

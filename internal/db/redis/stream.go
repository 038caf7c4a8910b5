package redis

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/askdex/internal/db"
)

// XAdd appends an entry with an auto-generated id and returns that id.
func (s *Store) XAdd(ctx context.Context, stream string, fields map[string]string) (string, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("at least one field is required")
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	slices.Sort(names)

	args := make([]string, 0, 1+2*len(names))
	args = append(args, "*")
	for _, name := range names {
		args = append(args, name, fields[name])
	}

	cmd := s.b().Arbitrary("XADD").Keys(stream).Args(args...).Build()
	id, err := s.do(ctx, cmd).ToString()
	if err != nil {
		return "", &db.Error{Op: db.OpXAdd, Err: err}
	}
	return id, nil
}

// XGroupCreate creates the consumer group starting at the beginning of the stream.
func (s *Store) XGroupCreate(ctx context.Context, stream, group string) error {
	cmd := s.b().Arbitrary("XGROUP", "CREATE").Keys(stream).Args(group, db.StreamPending, "MKSTREAM").Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "BUSYGROUP") {
			return nil
		}
		return &db.Error{Op: db.OpXGroup, Err: err}
	}
	return nil
}

// XReadGroup reads entries for one consumer from one stream.
func (s *Store) XReadGroup(ctx context.Context, q *db.StreamReadQuery) ([]db.StreamMessage, error) {
	if q.Stream == "" || q.Group == "" || q.Consumer == "" {
		return nil, fmt.Errorf("stream, group and consumer are required")
	}
	id := q.ID
	if id == "" {
		id = db.StreamNew
	}

	args := []string{"GROUP", q.Group, q.Consumer}
	if q.Count > 0 {
		args = append(args, "COUNT", strconv.Itoa(q.Count))
	}
	if q.Block > 0 {
		args = append(args, "BLOCK", strconv.FormatInt(q.Block.Milliseconds(), 10))
	}
	args = append(args, "STREAMS")

	builder := s.b().Arbitrary("XREADGROUP").Args(args...).Keys(q.Stream).Args(id)
	var cmd rueidis.Completed
	if q.Block > 0 {
		cmd = builder.Blocking()
	} else {
		cmd = builder.Build()
	}

	streams, err := s.do(ctx, cmd).AsXRead()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}
		return nil, &db.Error{Op: db.OpXReadGroup, Err: err}
	}
	return toMessages(streams[q.Stream]), nil
}

// XAck acknowledges processed entries.
func (s *Store) XAck(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	args := append([]string{group}, ids...)
	cmd := s.b().Arbitrary("XACK").Keys(stream).Args(args...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpXAck, Err: err}
	}
	return nil
}

// XAutoClaim claims entries idle longer than MinIdle. Reply: [next, entries, deleted].
func (s *Store) XAutoClaim(ctx context.Context, q *db.StreamClaimQuery) (string, []db.StreamMessage, error) {
	start := q.Start
	if start == "" {
		start = db.StreamStart
	}
	args := []string{q.Group, q.Consumer, strconv.FormatInt(q.MinIdle.Milliseconds(), 10), start}
	if q.Count > 0 {
		args = append(args, "COUNT", strconv.Itoa(q.Count))
	}

	cmd := s.b().Arbitrary("XAUTOCLAIM").Keys(q.Stream).Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return "", nil, &db.Error{Op: db.OpXAutoClaim, Err: err}
	}
	if len(raw) < 2 {
		return "", nil, &db.Error{Op: db.OpXAutoClaim, Err: fmt.Errorf("unexpected reply length %d", len(raw))}
	}

	next, err := raw[0].ToString()
	if err != nil {
		return "", nil, &db.Error{Op: db.OpXAutoClaim, Err: err}
	}
	entries, err := raw[1].AsXRange()
	if err != nil {
		return "", nil, &db.Error{Op: db.OpXAutoClaim, Err: err}
	}
	return next, toMessages(entries), nil
}

func toMessages(entries []rueidis.XRangeEntry) []db.StreamMessage {
	if len(entries) == 0 {
		return nil
	}
	msgs := make([]db.StreamMessage, 0, len(entries))
	for _, e := range entries {
		// Trimmed entries still pending come back with nil fields; callers ack them.
		msgs = append(msgs, db.StreamMessage{ID: e.ID, Fields: e.FieldValues})
	}
	return msgs
}

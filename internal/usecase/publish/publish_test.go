package publish

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/askdex/internal/domain/event"
	"github.com/kailas-cloud/askdex/internal/repository/outbox"
)

// --- Mocks ---

type mockPublisher struct {
	mu        sync.Mutex
	published []string // event ids, in order
	failIDs   map[string]bool
	err       error
	sawCancel bool
}

func (m *mockPublisher) Publish(ctx context.Context, env *event.Envelope) (string, error) {
	fields, err := env.Encode()
	if err != nil {
		return "", err
	}
	return m.PublishFields(ctx, env.Key, fields)
}

func (m *mockPublisher) PublishFields(ctx context.Context, _ string, fields map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ctx.Err() != nil {
		m.sawCancel = true
		return "", ctx.Err()
	}
	id := fields[event.FieldID]
	if m.err != nil || m.failIDs[id] {
		return "", errors.New("channel unavailable")
	}
	m.published = append(m.published, id)
	return "1-0", nil
}

type mockOutbox struct {
	rows     []outbox.Record
	marked   map[string]time.Time
	markErr  error
	readErr  error
	readSize int
}

func (m *mockOutbox) Pending(_ context.Context, limit int) ([]outbox.Record, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	m.readSize = limit
	var out []outbox.Record
	for _, r := range m.rows {
		if _, done := m.marked[r.EventID]; done {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *mockOutbox) MarkPublished(_ context.Context, eventID string, at time.Time) error {
	if m.markErr != nil {
		return m.markErr
	}
	if m.marked == nil {
		m.marked = make(map[string]time.Time)
	}
	m.marked[eventID] = at
	return nil
}

func record(t *testing.T, env event.Envelope, seq int64) outbox.Record {
	t.Helper()
	fields, err := env.Encode()
	if err != nil {
		t.Fatal(err)
	}
	return outbox.Record{Seq: seq, EventID: env.ID, Key: env.Key, Kind: env.Kind, Revision: env.Revision, Fields: fields}
}

// --- Emitter ---

func TestEmit_PublishesInOrder(t *testing.T) {
	pub := &mockPublisher{}
	e := NewEmitter(pub, time.Second, zap.NewNop())

	a := event.New(event.QuestionCreated{QuestionID: "q-1"}, 1)
	b := event.New(event.AnswerCountUpdated{QuestionID: "q-1", Count: 1}, 0)
	e.Emit(context.Background(), a, b)

	if len(pub.published) != 2 || pub.published[0] != a.ID || pub.published[1] != b.ID {
		t.Errorf("published = %v", pub.published)
	}
}

func TestEmit_SurvivesCancelledRequest(t *testing.T) {
	pub := &mockPublisher{}
	e := NewEmitter(pub, time.Second, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.Emit(ctx, event.New(event.QuestionDeleted{QuestionID: "q-1"}, 2))

	if pub.sawCancel || len(pub.published) != 1 {
		t.Error("client disconnect aborted the publish")
	}
}

func TestEmit_FailureIsSwallowed(t *testing.T) {
	pub := &mockPublisher{err: errors.New("down")}
	ob := &mockOutbox{}
	e := NewEmitter(pub, time.Second, zap.NewNop()).WithOutbox(ob)

	e.Emit(context.Background(), event.New(event.QuestionDeleted{QuestionID: "q-1"}, 2))

	if len(ob.marked) != 0 {
		t.Error("failed publish marked the outbox row")
	}
}

func TestEmit_MarksOutbox(t *testing.T) {
	pub := &mockPublisher{}
	ob := &mockOutbox{}
	e := NewEmitter(pub, time.Second, zap.NewNop()).WithOutbox(ob)

	env := event.New(event.QuestionCreated{QuestionID: "q-1"}, 1)
	e.Emit(context.Background(), env)

	if _, ok := ob.marked[env.ID]; !ok {
		t.Error("published event not marked in the outbox")
	}
}

// --- Relay ---

func TestRelayOnce_PublishesAndMarks(t *testing.T) {
	a := event.New(event.QuestionCreated{QuestionID: "q-1"}, 1)
	b := event.New(event.QuestionUpdated{QuestionID: "q-1"}, 2)
	ob := &mockOutbox{rows: []outbox.Record{record(t, a, 1), record(t, b, 2)}}
	pub := &mockPublisher{}

	n, err := NewRelay(ob, pub, RelayConfig{BatchSize: 10}, zap.NewNop()).RelayOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || len(ob.marked) != 2 {
		t.Errorf("n = %d, marked = %d", n, len(ob.marked))
	}
	if pub.published[0] != a.ID || pub.published[1] != b.ID {
		t.Errorf("relay order = %v", pub.published)
	}
	if ob.readSize != 10 {
		t.Errorf("batch size = %d", ob.readSize)
	}
}

func TestRelayOnce_StopsAtFirstFailure(t *testing.T) {
	a := event.New(event.QuestionCreated{QuestionID: "q-1"}, 1)
	b := event.New(event.QuestionUpdated{QuestionID: "q-1"}, 2)
	c := event.New(event.QuestionDeleted{QuestionID: "q-1"}, 3)
	ob := &mockOutbox{rows: []outbox.Record{record(t, a, 1), record(t, b, 2), record(t, c, 3)}}
	pub := &mockPublisher{failIDs: map[string]bool{b.ID: true}}

	n, err := NewRelay(ob, pub, RelayConfig{}, zap.NewNop()).RelayOnce(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if n != 1 {
		t.Errorf("n = %d, want 1", n)
	}
	if _, ok := ob.marked[c.ID]; ok || len(pub.published) != 1 {
		t.Error("relay published past a failed row")
	}
}

func TestRelayOnce_ReadError(t *testing.T) {
	ob := &mockOutbox{readErr: errors.New("pg down")}
	if _, err := NewRelay(ob, &mockPublisher{}, RelayConfig{}, zap.NewNop()).RelayOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestRelayRun_DrainsFullBatches(t *testing.T) {
	var rows []outbox.Record
	for i := range 5 {
		rows = append(rows, record(t, event.New(event.QuestionCreated{QuestionID: "q"}, int64(i+1)), int64(i+1)))
	}
	ob := &mockOutbox{rows: rows}
	pub := &mockPublisher{}
	relay := NewRelay(ob, pub, RelayConfig{BatchSize: 2, Interval: time.Hour}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = relay.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		pub.mu.Lock()
		n := len(pub.published)
		pub.mu.Unlock()
		if n == 5 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("relayed %d of 5 rows", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
}

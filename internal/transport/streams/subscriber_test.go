package streams

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/askdex/internal/domain"
	"github.com/kailas-cloud/askdex/internal/domain/event"
	"github.com/kailas-cloud/askdex/internal/testutil"
)

const (
	testGroup  = "questions.search"
	testPrefix = "test:events:"
)

// --- Fakes ---

type recordingHandler struct {
	mu      sync.Mutex
	applied []event.Envelope
	calls   map[string]int
	// fail decides the error for the n-th call (1-based) of an event id.
	fail func(env event.Envelope, call int) error
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{calls: make(map[string]int)}
}

func (h *recordingHandler) Apply(_ context.Context, env event.Envelope) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.calls[env.ID]++
	if h.fail != nil {
		if err := h.fail(env, h.calls[env.ID]); err != nil {
			return err
		}
	}
	h.applied = append(h.applied, env)
	return nil
}

func (h *recordingHandler) Applied() []event.Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]event.Envelope, len(h.applied))
	copy(out, h.applied)
	return out
}

func (h *recordingHandler) Calls(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[id]
}

// --- Helpers ---

func testConfig(consumer string) SubscriberConfig {
	return SubscriberConfig{
		Topology:     Topology{Prefix: testPrefix, Partitions: 2},
		Group:        testGroup,
		Consumer:     consumer,
		DeadLetter:   "test:dead",
		BatchSize:    10,
		Block:        20 * time.Millisecond,
		RetryInitial: time.Millisecond,
		RetryMax:     4 * time.Millisecond,
	}
}

func startSubscriber(t *testing.T, sub *Subscriber) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	return func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run() returned %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("subscriber did not stop")
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func publish(t *testing.T, pub *Publisher, envs ...event.Envelope) {
	t.Helper()
	for i := range envs {
		if _, err := pub.Publish(context.Background(), &envs[i]); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
}

func ensureGroups(t *testing.T, mem *testutil.Streams, topo Topology) {
	t.Helper()
	for _, s := range topo.Streams() {
		if err := mem.XGroupCreate(context.Background(), s, testGroup); err != nil {
			t.Fatal(err)
		}
	}
}

// --- Tests ---

func TestSubscriber_AppliesInOrderAndAcks(t *testing.T) {
	mem := testutil.NewStreams()
	cfg := testConfig("c1")
	h := newRecordingHandler()
	sub := NewSubscriber(mem, h, cfg, zap.NewNop())
	pub := NewPublisher(mem, cfg.Topology)

	stop := startSubscriber(t, sub)
	defer stop()

	publish(t, pub,
		event.New(event.QuestionCreated{QuestionID: "q-1", Title: "a"}, 1),
		event.New(event.QuestionUpdated{QuestionID: "q-1", Title: "b"}, 2),
		event.New(event.QuestionDeleted{QuestionID: "q-1"}, 3),
	)

	waitFor(t, "three applied events", func() bool { return len(h.Applied()) == 3 })

	applied := h.Applied()
	for i, want := range []event.Kind{event.KindQuestionCreated, event.KindQuestionUpdated, event.KindQuestionDeleted} {
		if applied[i].Kind != want {
			t.Errorf("applied[%d] = %s, want %s", i, applied[i].Kind, want)
		}
	}
	stream := cfg.StreamFor("q-1")
	waitFor(t, "acks", func() bool { return mem.Pending(stream, testGroup) == 0 })
}

func TestSubscriber_RetriesInPlace(t *testing.T) {
	mem := testutil.NewStreams()
	cfg := testConfig("c1")
	cfg.Partitions = 1

	first := event.New(event.QuestionCreated{QuestionID: "q-1"}, 1)
	second := event.New(event.QuestionUpdated{QuestionID: "q-1"}, 2)

	h := newRecordingHandler()
	h.fail = func(env event.Envelope, call int) error {
		if env.ID == first.ID && call <= 2 {
			return errors.New("index unavailable")
		}
		return nil
	}
	sub := NewSubscriber(mem, h, cfg, zap.NewNop())
	publish(t, NewPublisher(mem, cfg.Topology), first, second)

	stop := startSubscriber(t, sub)
	defer stop()

	waitFor(t, "both events", func() bool { return len(h.Applied()) == 2 })
	if got := h.Calls(first.ID); got != 3 {
		t.Errorf("first event attempts = %d, want 3", got)
	}
	if applied := h.Applied(); applied[0].ID != first.ID || applied[1].ID != second.ID {
		t.Error("lane moved past a failing event")
	}
}

func TestSubscriber_DeadLettersUndecodable(t *testing.T) {
	mem := testutil.NewStreams()
	cfg := testConfig("c1")
	cfg.Partitions = 1
	ensureGroups(t, mem, cfg.Topology)

	stream := cfg.Stream(0)
	id, err := mem.XAdd(context.Background(), stream, map[string]string{
		event.FieldType:    "QuestionRenamed",
		event.FieldPayload: "{}",
	})
	if err != nil {
		t.Fatal(err)
	}

	h := newRecordingHandler()
	sub := NewSubscriber(mem, h, cfg, zap.NewNop())
	stop := startSubscriber(t, sub)
	defer stop()

	waitFor(t, "dead letter", func() bool { return len(mem.Entries("test:dead")) == 1 })
	waitFor(t, "ack", func() bool { return mem.Pending(stream, testGroup) == 0 })

	dead := mem.Entries("test:dead")[0]
	if dead.Fields[FieldSourceID] != id || dead.Fields[FieldSourceStream] != stream {
		t.Errorf("dead letter source = %q/%q", dead.Fields[FieldSourceStream], dead.Fields[FieldSourceID])
	}
	if dead.Fields[FieldError] == "" || dead.Fields[event.FieldType] != "QuestionRenamed" {
		t.Errorf("dead letter fields = %v", dead.Fields)
	}
	if len(h.Applied()) != 0 {
		t.Error("undecodable message reached the handler")
	}
}

func TestSubscriber_HandlerMalformedIsPermanent(t *testing.T) {
	mem := testutil.NewStreams()
	cfg := testConfig("c1")
	cfg.Partitions = 1

	env := event.New(event.QuestionDeleted{QuestionID: "q-1"}, 1)
	h := newRecordingHandler()
	h.fail = func(event.Envelope, int) error {
		return fmt.Errorf("%w: cannot project", domain.ErrMalformedEvent)
	}
	publish(t, NewPublisher(mem, cfg.Topology), env)

	stop := startSubscriber(t, NewSubscriber(mem, h, cfg, zap.NewNop()))
	defer stop()

	waitFor(t, "dead letter", func() bool { return len(mem.Entries("test:dead")) == 1 })
	if got := h.Calls(env.ID); got != 1 {
		t.Errorf("permanent failure was retried: %d calls", got)
	}
}

func TestSubscriber_DrainsOwnPendingFirst(t *testing.T) {
	mem := testutil.NewStreams()
	cfg := testConfig("c1")
	cfg.Partitions = 1
	ensureGroups(t, mem, cfg.Topology)

	pending := event.New(event.QuestionCreated{QuestionID: "q-1"}, 1)
	publish(t, NewPublisher(mem, cfg.Topology), pending)
	// Previous run of c1 read the entry and died before acking.
	if err := mem.Deliver(cfg.Stream(0), testGroup, "c1", 10); err != nil {
		t.Fatal(err)
	}

	h := newRecordingHandler()
	stop := startSubscriber(t, NewSubscriber(mem, h, cfg, zap.NewNop()))
	defer stop()

	waitFor(t, "pending entry", func() bool { return len(h.Applied()) == 1 })
	if h.Applied()[0].ID != pending.ID {
		t.Errorf("applied %s, want %s", h.Applied()[0].ID, pending.ID)
	}
	waitFor(t, "ack", func() bool { return mem.Pending(cfg.Stream(0), testGroup) == 0 })
}

func TestSubscriber_ReclaimsFromCrashedConsumer(t *testing.T) {
	mem := testutil.NewStreams()
	cfg := testConfig("survivor")
	cfg.Partitions = 1
	cfg.ClaimInterval = 10 * time.Millisecond
	cfg.ClaimIdle = time.Millisecond
	ensureGroups(t, mem, cfg.Topology)

	orphan := event.New(event.QuestionUpdated{QuestionID: "q-9"}, 4)
	publish(t, NewPublisher(mem, cfg.Topology), orphan)
	if err := mem.Deliver(cfg.Stream(0), testGroup, "crashed", 10); err != nil {
		t.Fatal(err)
	}

	h := newRecordingHandler()
	stop := startSubscriber(t, NewSubscriber(mem, h, cfg, zap.NewNop()))
	defer stop()

	waitFor(t, "reclaimed entry", func() bool { return len(h.Applied()) == 1 })
	waitFor(t, "ack", func() bool { return mem.Pending(cfg.Stream(0), testGroup) == 0 })
}

func TestSubscriber_ShutdownLeavesFailingEntryPending(t *testing.T) {
	mem := testutil.NewStreams()
	cfg := testConfig("c1")
	cfg.Partitions = 1

	env := event.New(event.QuestionCreated{QuestionID: "q-1"}, 1)
	h := newRecordingHandler()
	h.fail = func(event.Envelope, int) error { return errors.New("still down") }
	publish(t, NewPublisher(mem, cfg.Topology), env)

	stop := startSubscriber(t, NewSubscriber(mem, h, cfg, zap.NewNop()))
	waitFor(t, "retries", func() bool { return h.Calls(env.ID) >= 3 })
	stop()

	if got := mem.Pending(cfg.Stream(0), testGroup); got != 1 {
		t.Errorf("pending = %d, want 1", got)
	}
}

func TestSubscriber_RequiresGroupAndConsumer(t *testing.T) {
	sub := NewSubscriber(testutil.NewStreams(), newRecordingHandler(), SubscriberConfig{}, zap.NewNop())
	if err := sub.Run(context.Background()); err == nil {
		t.Fatal("expected error without group and consumer")
	}
}

func TestSubscriberConfig_Defaults(t *testing.T) {
	cfg := SubscriberConfig{}
	cfg.applyDefaults()
	if cfg.Prefix != DefaultPrefix || cfg.DeadLetter != DefaultDeadLetter || cfg.Partitions != 1 {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.RetryInitial != 100*time.Millisecond || cfg.RetryMax != 5*time.Second {
		t.Errorf("retry defaults = %v/%v", cfg.RetryInitial, cfg.RetryMax)
	}
}

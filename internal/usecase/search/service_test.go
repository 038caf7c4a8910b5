package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/askdex/internal/domain"
	domdoc "github.com/kailas-cloud/askdex/internal/domain/document"
	"github.com/kailas-cloud/askdex/internal/domain/search/query"
)

// --- Mocks ---

type mockIndex struct {
	hits        []domdoc.Hit
	err         error
	got         query.Query
	hadDeadline bool
}

func (m *mockIndex) Search(ctx context.Context, q query.Query) ([]domdoc.Hit, error) {
	m.got = q
	_, m.hadDeadline = ctx.Deadline()
	return m.hits, m.err
}

// --- Tests ---

func TestSearch_TranslatesBracketTag(t *testing.T) {
	idx := &mockIndex{}
	if _, err := New(idx).Search(context.Background(), "binary search [algorithms]", 0); err != nil {
		t.Fatal(err)
	}
	if idx.got.Term() != "binary search" || idx.got.Tag() != "algorithms" {
		t.Errorf("query = %q [%q]", idx.got.Term(), idx.got.Tag())
	}
	if idx.got.Mode() != query.ModeFull || idx.got.Limit() != query.DefaultLimit {
		t.Errorf("mode/limit = %s/%d", idx.got.Mode(), idx.got.Limit())
	}
}

func TestSearch_NoBrackets(t *testing.T) {
	idx := &mockIndex{}
	_, _ = New(idx).Search(context.Background(), "  binary search ", 5)
	if idx.got.Term() != "binary search" || idx.got.HasTag() {
		t.Errorf("query = %q tag=%v", idx.got.Term(), idx.got.HasTag())
	}
	if idx.got.Limit() != 5 {
		t.Errorf("limit = %d", idx.got.Limit())
	}
}

func TestSearch_BlankQueryIsValidationError(t *testing.T) {
	idx := &mockIndex{}
	_, err := New(idx).Search(context.Background(), "   ", 0)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestSearch_LimitsClamp(t *testing.T) {
	idx := &mockIndex{}
	_, _ = New(idx).WithLimits(10, 50).Search(context.Background(), "x", 500)
	if idx.got.Limit() != 50 {
		t.Errorf("limit = %d, want 50", idx.got.Limit())
	}
}

func TestSearch_IndexFailure(t *testing.T) {
	idx := &mockIndex{err: errors.New("ERR no such index")}
	hits, err := New(idx).Search(context.Background(), "sort", 0)
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Fatalf("err = %v, want ErrIndexUnavailable", err)
	}
	if hits != nil {
		t.Error("failure must not return partial results")
	}
	if got := err.Error(); got == "" || !errors.Is(err, idx.err) {
		t.Errorf("underlying error lost: %v", err)
	}
}

func TestSearch_EmptyResultIsEmptySlice(t *testing.T) {
	hits, err := New(&mockIndex{}).Search(context.Background(), "nothing", 0)
	if err != nil {
		t.Fatal(err)
	}
	if hits == nil || len(hits) != 0 {
		t.Errorf("hits = %#v", hits)
	}
}

func TestSearch_Timeout(t *testing.T) {
	idx := &mockIndex{}
	_, _ = New(idx).WithTimeout(time.Second).Search(context.Background(), "x", 0)
	if !idx.hadDeadline {
		t.Error("index call ran without a deadline")
	}
}

func TestSimilarTitles_IgnoresBrackets(t *testing.T) {
	idx := &mockIndex{hits: []domdoc.Hit{{Document: domdoc.Reconstruct("q-1", "How to sort", "", nil, 1, 1, false), Score: 2}}}
	hits, err := New(idx).SimilarTitles(context.Background(), "sort [go]", 0)
	if err != nil {
		t.Fatal(err)
	}
	if idx.got.Mode() != query.ModeTitles || idx.got.HasTag() || idx.got.Term() != "sort [go]" {
		t.Errorf("query = %+v", idx.got)
	}
	if len(hits) != 1 || hits[0].ID() != "q-1" {
		t.Errorf("hits = %+v", hits)
	}
}

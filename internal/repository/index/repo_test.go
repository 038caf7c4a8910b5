package index

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/kailas-cloud/askdex/internal/db"
	"github.com/kailas-cloud/askdex/internal/domain"
	domdoc "github.com/kailas-cloud/askdex/internal/domain/document"
	"github.com/kailas-cloud/askdex/internal/domain/event"
	"github.com/kailas-cloud/askdex/internal/domain/search/query"
)

// --- EnsureIndex / DropIndex ---

func TestEnsureIndex_Creates(t *testing.T) {
	repo, ms := newTestRepo()

	var created *db.IndexDefinition
	ms.createIndexFn = func(_ context.Context, def *db.IndexDefinition) error {
		created = def
		return nil
	}

	if err := repo.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created == nil {
		t.Fatal("index was not created")
	}
	if created.Name != "askdex:idx:questions" || created.Prefix != "askdex:question:" {
		t.Errorf("definition = %+v", created)
	}
	if err := created.Validate(); err != nil {
		t.Errorf("definition invalid: %v", err)
	}
	if len(created.Schema) != 4 || created.Schema[0].Alias != FieldTitle {
		t.Errorf("schema = %+v", created.Schema)
	}
}

func TestEnsureIndex_Exists(t *testing.T) {
	repo, ms := newTestRepo()
	ms.indexExistsFn = func(context.Context, string) (bool, error) { return true, nil }
	ms.createIndexFn = func(context.Context, *db.IndexDefinition) error {
		t.Error("CreateIndex must not be called")
		return nil
	}
	if err := repo.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnsureIndex_RaceIsNotAnError(t *testing.T) {
	repo, ms := newTestRepo()
	ms.createIndexFn = func(context.Context, *db.IndexDefinition) error { return db.ErrIndexExists }
	if err := repo.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDropIndex_DeletesDocuments(t *testing.T) {
	repo, ms := newTestRepo()
	ms.dropIndexFn = func(_ context.Context, name string, deleteDocs bool) error {
		if name != "askdex:idx:questions" || !deleteDocs {
			t.Errorf("DropIndex(%q, %v)", name, deleteDocs)
		}
		return db.ErrIndexNotFound
	}
	if err := repo.DropIndex(context.Background()); err != nil {
		t.Fatalf("missing index must not be an error: %v", err)
	}
}

// --- Load / Commit ---

func TestLoad_Absent(t *testing.T) {
	repo, _ := newTestRepo()
	snap, err := repo.Load(context.Background(), "q1")
	if err != nil {
		t.Fatal(err)
	}
	if snap.ID != "q1" || snap.Current != nil || snap.Tombstone != 0 || snap.Version != (domdoc.Version{}) {
		t.Errorf("snap = %+v", snap)
	}
}

func TestLoad_DocumentAndTombstone(t *testing.T) {
	repo, ms := newTestRepo()
	const raw = `[{"id":"q1","title":"How to sort","content":"c","tags":["algorithms"],"createdAt":10,"revision":3}]`
	ms.jsonGetFn = func(_ context.Context, key string) (string, error) {
		if key != "askdex:question:{q1}" {
			t.Errorf("JSONGet(%q)", key)
		}
		return raw, nil
	}
	ms.getFn = func(_ context.Context, key string) (string, error) {
		if key != "askdex:tomb:{q1}" {
			t.Errorf("Get(%q)", key)
		}
		return "2", nil
	}

	snap, err := repo.Load(context.Background(), "q1")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Current == nil || snap.Current.Title() != "How to sort" || snap.Current.Revision() != 3 {
		t.Errorf("current = %+v", snap.Current)
	}
	if !slices.Equal(snap.Current.Tags(), []string{"algorithms"}) {
		t.Errorf("tags = %v", snap.Current.Tags())
	}
	if snap.Tombstone != 2 || snap.Version != (domdoc.Version{Doc: raw, Tombstone: "2"}) {
		t.Errorf("snap = %+v", snap)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(ms *mockStore)
	}{
		{"json.get fails", func(ms *mockStore) {
			ms.jsonGetFn = func(context.Context, string) (string, error) {
				return "", &db.Error{Op: db.OpJSONGet, Err: errors.New("LOADING")}
			}
		}},
		{"corrupt document", func(ms *mockStore) {
			ms.jsonGetFn = func(context.Context, string) (string, error) { return "[{", nil }
		}},
		{"get fails", func(ms *mockStore) {
			ms.getFn = func(context.Context, string) (string, error) {
				return "", &db.Error{Op: db.OpGet, Err: errors.New("timeout")}
			}
		}},
		{"corrupt tombstone", func(ms *mockStore) {
			ms.getFn = func(context.Context, string) (string, error) { return "x", nil }
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, ms := newTestRepo()
			tt.setup(ms)
			if _, err := repo.Load(context.Background(), "q1"); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestCommit_Upsert(t *testing.T) {
	repo, ms := newTestRepo()

	var got *db.GuardedWrite
	ms.guardedFn = func(_ context.Context, w *db.GuardedWrite) (bool, error) {
		got = w
		return true, nil
	}

	snap := domdoc.Snapshot{ID: "q1", Version: domdoc.Version{Doc: `[{"revision":1}]`}}
	doc := domdoc.Reconstruct("q1", "How to sort", "body", nil, 1700000000, 3, false)
	d := domdoc.Decision{Action: domdoc.ActionUpsert, Doc: doc}
	if err := repo.Commit(context.Background(), snap, d, time.Hour); err != nil {
		t.Fatal(err)
	}

	if got.DocKey != "askdex:question:{q1}" || got.GuardKey != "askdex:tomb:{q1}" {
		t.Errorf("keys = %q, %q", got.DocKey, got.GuardKey)
	}
	if got.ExpectDoc != `[{"revision":1}]` || got.ExpectGuard != "" || got.Guard != "" {
		t.Errorf("write = %+v", got)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(got.Doc), &m); err != nil {
		t.Fatalf("stored JSON: %v", err)
	}
	if m["createdAt"] != float64(1700000000) || m["revision"] != float64(3) {
		t.Errorf("stored = %v", m)
	}
	if _, ok := m["tags"].([]any); !ok {
		t.Errorf("tags = %#v, want array", m["tags"])
	}
}

func TestCommit_DeleteWritesTombstone(t *testing.T) {
	repo, ms := newTestRepo()

	var got *db.GuardedWrite
	ms.guardedFn = func(_ context.Context, w *db.GuardedWrite) (bool, error) {
		got = w
		return true, nil
	}

	d, _ := domdoc.Project(nil, 0, event.New(event.QuestionDeleted{QuestionID: "q1"}, 4))
	if err := repo.Commit(context.Background(), domdoc.Snapshot{ID: "q1"}, d, time.Hour); err != nil {
		t.Fatal(err)
	}
	if got.Doc != "" || got.Guard != "4" || got.GuardTTL != time.Hour {
		t.Errorf("write = %+v", got)
	}
}

func TestCommit_UnversionedDeleteLeavesNoTombstone(t *testing.T) {
	repo, ms := newTestRepo()

	var got *db.GuardedWrite
	ms.guardedFn = func(_ context.Context, w *db.GuardedWrite) (bool, error) {
		got = w
		return true, nil
	}

	d, _ := domdoc.Project(nil, 0, event.New(event.QuestionDeleted{QuestionID: "q1"}, 0))
	if err := repo.Commit(context.Background(), domdoc.Snapshot{ID: "q1"}, d, time.Hour); err != nil {
		t.Fatal(err)
	}
	if got.Guard != "" {
		t.Errorf("guard = %q, want none", got.Guard)
	}
}

func TestCommit_SkipWritesNothing(t *testing.T) {
	repo, ms := newTestRepo()
	ms.guardedFn = func(context.Context, *db.GuardedWrite) (bool, error) {
		t.Error("GuardedWrite must not be called")
		return true, nil
	}
	if err := repo.Commit(context.Background(), domdoc.Snapshot{ID: "q1"}, domdoc.Decision{}, time.Hour); err != nil {
		t.Fatal(err)
	}
}

func TestCommit_Conflict(t *testing.T) {
	repo, ms := newTestRepo()
	ms.guardedFn = func(context.Context, *db.GuardedWrite) (bool, error) { return false, nil }

	doc := domdoc.Reconstruct("q1", "t", "c", nil, 0, 1, false)
	err := repo.Commit(context.Background(), domdoc.Snapshot{ID: "q1"}, domdoc.Decision{Action: domdoc.ActionUpsert, Doc: doc}, time.Hour)
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
}

func TestCommit_StoreError(t *testing.T) {
	repo, ms := newTestRepo()
	ms.guardedFn = func(context.Context, *db.GuardedWrite) (bool, error) {
		return false, &db.Error{Op: db.OpGuarded, Err: errors.New("connection reset")}
	}

	doc := domdoc.Reconstruct("q1", "t", "c", nil, 0, 1, false)
	err := repo.Commit(context.Background(), domdoc.Snapshot{ID: "q1"}, domdoc.Decision{Action: domdoc.ActionUpsert, Doc: doc}, time.Hour)
	if err == nil || errors.Is(err, domain.ErrConflict) {
		t.Errorf("err = %v, want store error", err)
	}
}

// --- IDs ---

func TestIDs_FollowsCursor(t *testing.T) {
	repo, ms := newTestRepo()

	pages := map[uint64]struct {
		next uint64
		keys []string
	}{
		0: {7, []string{"askdex:question:{q1}", "askdex:question:{q2}"}},
		7: {9, nil},
		9: {0, []string{"askdex:question:{q3}"}},
	}
	ms.scanFn = func(_ context.Context, cursor uint64, pattern string, _ int64) (uint64, []string, error) {
		if pattern != "askdex:question:*" {
			t.Errorf("pattern = %q", pattern)
		}
		p := pages[cursor]
		return p.next, p.keys, nil
	}

	var got []string
	err := repo.IDs(context.Background(), func(ids []string) error {
		got = append(got, ids...)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, []string{"q1", "q2", "q3"}) {
		t.Errorf("ids = %v", got)
	}
}

func TestIDs_StopsOnCallbackError(t *testing.T) {
	repo, ms := newTestRepo()
	calls := 0
	ms.scanFn = func(context.Context, uint64, string, int64) (uint64, []string, error) {
		calls++
		return 5, []string{"askdex:question:{q1}"}, nil
	}
	stop := errors.New("stop")
	if err := repo.IDs(context.Background(), func([]string) error { return stop }); !errors.Is(err, stop) {
		t.Errorf("err = %v", err)
	}
	if calls != 1 {
		t.Errorf("scan calls = %d, want 1", calls)
	}
}

// --- Search ---

func TestSearch_FullWithTag(t *testing.T) {
	repo, ms := newTestRepo()

	ms.searchTextFn = func(_ context.Context, q *db.TextQuery) (*db.SearchResult, error) {
		if q.IndexName != "askdex:idx:questions" || q.Query != "binary search" || q.Limit != 20 {
			t.Errorf("query = %+v", q)
		}
		if !slices.Equal(q.Fields, []string{FieldTitle, FieldContent}) {
			t.Errorf("fields = %v", q.Fields)
		}
		if len(q.Filters) != 1 || q.Filters[0] != (db.TagFilter{Field: FieldTags, Value: "algorithms"}) {
			t.Errorf("filters = %v", q.Filters)
		}
		return &db.SearchResult{Total: 2, Entries: []db.SearchEntry{
			{Key: "askdex:question:{q1}", Score: 2.5, Fields: map[string]string{
				"$": `{"id":"q1","title":"Binary search","content":"c","tags":["algorithms"],"createdAt":10}`,
			}},
			{Key: "askdex:question:{q2}", Score: 1, Fields: map[string]string{}},
		}}, nil
	}

	q, _ := query.New("binary search [algorithms]", query.ModeFull, 0, 20, 100)
	hits, err := repo.Search(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %d, want 1 (entry without body skipped)", len(hits))
	}
	if hits[0].ID() != "q1" || hits[0].Score != 2.5 || hits[0].CreatedAt() != 10 {
		t.Errorf("hit = %+v", hits[0])
	}
}

func TestSearch_TitlesIgnoresTag(t *testing.T) {
	repo, ms := newTestRepo()
	ms.searchTextFn = func(_ context.Context, q *db.TextQuery) (*db.SearchResult, error) {
		if !slices.Equal(q.Fields, []string{FieldTitle}) || len(q.Filters) != 0 {
			t.Errorf("query = %+v", q)
		}
		return nil, nil
	}
	q, _ := query.New("sort [algorithms]", query.ModeTitles, 0, 20, 100)
	hits, err := repo.Search(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	if hits == nil || len(hits) != 0 {
		t.Errorf("hits = %#v, want empty non-nil", hits)
	}
}

func TestSearch_Error(t *testing.T) {
	repo, ms := newTestRepo()
	ms.searchTextFn = func(context.Context, *db.TextQuery) (*db.SearchResult, error) {
		return nil, &db.Error{Op: db.OpSearch, Err: errors.New("connection refused")}
	}
	q, _ := query.New("x", query.ModeFull, 0, 20, 100)
	if _, err := repo.Search(context.Background(), q); err == nil {
		t.Fatal("expected error")
	}
}

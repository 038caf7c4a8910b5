package index

import (
	"context"

	"github.com/kailas-cloud/askdex/internal/db"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	jsonGetFn     func(ctx context.Context, key string) (string, error)
	getFn         func(ctx context.Context, key string) (string, error)
	guardedFn     func(ctx context.Context, w *db.GuardedWrite) (bool, error)
	scanFn        func(ctx context.Context, cursor uint64, pattern string, count int64) (uint64, []string, error)
	createIndexFn func(ctx context.Context, def *db.IndexDefinition) error
	dropIndexFn   func(ctx context.Context, name string, deleteDocs bool) error
	indexExistsFn func(ctx context.Context, name string) (bool, error)
	searchTextFn  func(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
}

func (m *mockStore) JSONGet(ctx context.Context, key string) (string, error) {
	if m.jsonGetFn != nil {
		return m.jsonGetFn(ctx, key)
	}
	return "", db.ErrKeyNotFound
}

func (m *mockStore) Get(ctx context.Context, key string) (string, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return "", db.ErrKeyNotFound
}

func (m *mockStore) GuardedWrite(ctx context.Context, w *db.GuardedWrite) (bool, error) {
	if m.guardedFn != nil {
		return m.guardedFn(ctx, w)
	}
	return true, nil
}

func (m *mockStore) Scan(ctx context.Context, cursor uint64, pattern string, count int64) (uint64, []string, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, cursor, pattern, count)
	}
	return 0, nil, nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) DropIndex(ctx context.Context, name string, deleteDocs bool) error {
	if m.dropIndexFn != nil {
		return m.dropIndexFn(ctx, name, deleteDocs)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func (m *mockStore) SearchText(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error) {
	if m.searchTextFn != nil {
		return m.searchTextFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func newTestRepo() (*Repo, *mockStore) {
	ms := &mockStore{}
	return New(ms, "askdex:"), ms
}

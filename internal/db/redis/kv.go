package redis

import (
	"context"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/askdex/internal/db"
)

// Get returns the string value at key, or db.ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, err := s.do(ctx, s.b().Get().Key(key).Build()).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return "", db.ErrKeyNotFound
		}
		return "", &db.Error{Op: db.OpGet, Err: err}
	}
	return v, nil
}

// Scan runs one SCAN step over keys matching pattern. A returned cursor of
// 0 ends the iteration.
func (s *Store) Scan(ctx context.Context, cursor uint64, pattern string, count int64) (uint64, []string, error) {
	entry, err := s.do(ctx, s.b().Scan().Cursor(cursor).Match(pattern).Count(count).Build()).AsScanEntry()
	if err != nil {
		return 0, nil, &db.Error{Op: db.OpScan, Err: err}
	}
	return entry.Cursor, entry.Elements, nil
}

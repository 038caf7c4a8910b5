package redis

import (
	"context"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/askdex/internal/db"
)

// JSONGet returns the raw JSON.GET reply for key at path $. The reply is
// returned verbatim so that GuardedWrite can compare it later.
func (s *Store) JSONGet(ctx context.Context, key string) (string, error) {
	raw, err := s.do(ctx, s.b().Arbitrary("JSON.GET").Keys(key).Args("$").Build()).ToString()
	switch {
	case rueidis.IsRedisNil(err):
		return "", db.ErrKeyNotFound
	case err != nil:
		return "", &db.Error{Op: db.OpJSONGet, Err: err}
	case raw == "":
		return "", db.ErrKeyNotFound
	}
	return raw, nil
}

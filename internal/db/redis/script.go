package redis

import (
	"context"
	"errors"
	"math"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/askdex/internal/db"
)

// guardedWrite compares the document and guard with the values the caller
// read, then replaces or deletes the document and optionally sets the guard.
// KEYS: doc, guard. ARGV: expect doc, expect guard, new doc, new guard, ttl.
var guardedWrite = rueidis.NewLuaScript(`
local doc = redis.call('JSON.GET', KEYS[1], '$') or ''
local guard = redis.call('GET', KEYS[2]) or ''
if doc ~= ARGV[1] or guard ~= ARGV[2] then
  return 0
end
if ARGV[3] == '' then
  redis.call('DEL', KEYS[1])
else
  redis.call('JSON.SET', KEYS[1], '$', ARGV[3])
end
if ARGV[4] ~= '' then
  redis.call('SET', KEYS[2], ARGV[4], 'EX', ARGV[5])
end
return 1
`)

// GuardedWrite applies w atomically. It reports false, and writes nothing,
// when either key changed since the caller read it. In cluster mode both
// keys must hash to one slot.
func (s *Store) GuardedWrite(ctx context.Context, w *db.GuardedWrite) (bool, error) {
	if w.DocKey == "" || w.GuardKey == "" {
		return false, errors.New("doc and guard keys are required")
	}
	ttl := "0"
	if w.Guard != "" {
		secs := int64(math.Ceil(w.GuardTTL.Seconds()))
		if secs <= 0 {
			return false, errors.New("guard ttl must be positive")
		}
		ttl = strconv.FormatInt(secs, 10)
	}

	n, err := guardedWrite.Exec(ctx, s.client,
		[]string{w.DocKey, w.GuardKey},
		[]string{w.ExpectDoc, w.ExpectGuard, w.Doc, w.Guard, ttl},
	).AsInt64()
	if err != nil {
		return false, &db.Error{Op: db.OpGuarded, Err: err}
	}
	return n == 1, nil
}

package redis

import (
	"context"
	"strconv"

	"github.com/kailas-cloud/askdex/internal/db"
)

// CreateIndex runs FT.CREATE for a JSON index. db.ErrIndexExists means
// another process created it first.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	cmd := s.b().Arbitrary("FT.CREATE").Args(buildCreateArgs(def)...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return db.ErrIndexExists
		}
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	return nil
}

// DropIndex runs FT.DROPINDEX. With deleteDocs the indexed keys go too (DD).
func (s *Store) DropIndex(ctx context.Context, name string, deleteDocs bool) error {
	args := []string{name}
	if deleteDocs {
		args = append(args, "DD")
	}
	if err := s.do(ctx, s.b().Arbitrary("FT.DROPINDEX").Args(args...).Build()).Error(); err != nil {
		if isUnknownIndex(err) {
			return db.ErrIndexNotFound
		}
		return &db.Error{Op: db.OpDropIndex, Err: err}
	}
	return nil
}

// IndexExists asks FT.INFO; an unknown index is reported as absent.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	if err := s.do(ctx, s.b().Arbitrary("FT.INFO").Args(name).Build()).Error(); err != nil {
		if isUnknownIndex(err) {
			return false, nil
		}
		return false, &db.Error{Op: db.OpIndexInfo, Err: err}
	}
	return true, nil
}

// buildCreateArgs renders `name ON JSON PREFIX 1 prefix SCHEMA path AS alias type...`.
func buildCreateArgs(def *db.IndexDefinition) []string {
	args := []string{def.Name, "ON", "JSON", "PREFIX", strconv.Itoa(1), def.Prefix, "SCHEMA"}
	for _, a := range def.Schema {
		args = append(args, a.Path, "AS", a.Alias)
		args = append(args, a.Type...)
	}
	return args
}

func isUnknownIndex(err error) bool {
	return isRedisErr(err, "unknown index name") || isRedisErr(err, "no such index")
}

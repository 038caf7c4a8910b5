// Package index stores question search documents and tombstones in Redis
// and queries them through a RediSearch index.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/askdex/internal/db"
	"github.com/kailas-cloud/askdex/internal/domain"
	domdoc "github.com/kailas-cloud/askdex/internal/domain/document"
	"github.com/kailas-cloud/askdex/internal/domain/search/query"
)

// Index attribute names.
const (
	FieldTitle     = "title"
	FieldContent   = "content"
	FieldTags      = "tags"
	FieldCreatedAt = "created_at"
)

const scanBatch = 500

// store is the consumer interface for the search index (ISP).
type store interface {
	JSONGet(ctx context.Context, key string) (string, error)
	Get(ctx context.Context, key string) (string, error)
	GuardedWrite(ctx context.Context, w *db.GuardedWrite) (bool, error)
	Scan(ctx context.Context, cursor uint64, pattern string, count int64) (uint64, []string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string, deleteDocs bool) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchText(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
}

// Repo implements the projector and search repositories on Redis.
//
// A question's document and tombstone share the hash tag {id}, so a guarded
// write touching both stays within one cluster slot.
type Repo struct {
	store  store
	prefix string
}

// New creates an index repository. prefix namespaces every key (e.g. "askdex:").
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

// EnsureIndex creates the FT index unless it already exists.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.indexName())
	if err != nil {
		return fmt.Errorf("check index %s: %w", r.indexName(), err)
	}
	if exists {
		return nil
	}
	if err := r.store.CreateIndex(ctx, r.definition()); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", r.indexName(), err)
	}
	return nil
}

// DropIndex removes the FT index together with every indexed document.
func (r *Repo) DropIndex(ctx context.Context) error {
	if err := r.store.DropIndex(ctx, r.indexName(), true); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop index %s: %w", r.indexName(), err)
	}
	return nil
}

// Load reads the document and tombstone of id.
func (r *Repo) Load(ctx context.Context, id string) (domdoc.Snapshot, error) {
	snap := domdoc.Snapshot{ID: id}

	docKey := r.docKey(id)
	raw, err := r.store.JSONGet(ctx, docKey)
	switch {
	case err == nil:
		d, ok, perr := parseJSONDoc(raw)
		if perr != nil {
			return snap, fmt.Errorf("parse %s: %w", docKey, perr)
		}
		if ok {
			doc := d.toDomain(id)
			snap.Current = &doc
		}
		snap.Version.Doc = raw
	case !errors.Is(err, db.ErrKeyNotFound):
		return snap, fmt.Errorf("json.get %s: %w", docKey, err)
	}

	tombKey := r.tombKey(id)
	tomb, err := r.store.Get(ctx, tombKey)
	switch {
	case err == nil:
		rev, perr := strconv.ParseInt(tomb, 10, 64)
		if perr != nil {
			return snap, fmt.Errorf("parse tombstone %s: %w", tombKey, perr)
		}
		snap.Tombstone = rev
		snap.Version.Tombstone = tomb
	case !errors.Is(err, db.ErrKeyNotFound):
		return snap, fmt.Errorf("get %s: %w", tombKey, err)
	}
	return snap, nil
}

// Commit applies d to the question snap was loaded for. It returns
// domain.ErrConflict, without writing, when another writer changed the
// document or tombstone since Load.
func (r *Repo) Commit(ctx context.Context, snap domdoc.Snapshot, d domdoc.Decision, tombstoneTTL time.Duration) error {
	id := snap.ID
	w := &db.GuardedWrite{
		DocKey:      r.docKey(id),
		GuardKey:    r.tombKey(id),
		ExpectDoc:   snap.Version.Doc,
		ExpectGuard: snap.Version.Tombstone,
	}

	switch d.Action {
	case domdoc.ActionUpsert:
		data, err := json.Marshal(buildJSONDoc(&d.Doc))
		if err != nil {
			return fmt.Errorf("marshal document: %w", err)
		}
		w.Doc = string(data)
	case domdoc.ActionDelete:
		if rev := d.Doc.Revision(); rev > 0 {
			w.Guard = strconv.FormatInt(rev, 10)
			w.GuardTTL = tombstoneTTL
		}
	default:
		return nil
	}

	ok, err := r.store.GuardedWrite(ctx, w)
	if err != nil {
		return fmt.Errorf("%s %s: %w", d.Action, w.DocKey, err)
	}
	if !ok {
		return fmt.Errorf("%s %s: %w", d.Action, w.DocKey, domain.ErrConflict)
	}
	return nil
}

// IDs calls fn with batches of the question ids that have a stored
// document. A key may be reported more than once.
func (r *Repo) IDs(ctx context.Context, fn func(ids []string) error) error {
	var cursor uint64
	for {
		next, keys, err := r.store.Scan(ctx, cursor, r.docPrefix()+"*", scanBatch)
		if err != nil {
			return fmt.Errorf("scan %s: %w", r.docPrefix(), err)
		}
		if len(keys) > 0 {
			ids := make([]string, 0, len(keys))
			for _, k := range keys {
				ids = append(ids, r.idFromKey(k))
			}
			if err := fn(ids); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Search runs q against the index, best match first.
func (r *Repo) Search(ctx context.Context, q query.Query) ([]domdoc.Hit, error) {
	tq := &db.TextQuery{
		IndexName: r.indexName(),
		Query:     q.Term(),
		Limit:     q.Limit(),
	}
	switch q.Mode() {
	case query.ModeTitles:
		tq.Fields = []string{FieldTitle}
	default:
		tq.Fields = []string{FieldTitle, FieldContent}
		if q.HasTag() {
			tq.Filters = []db.TagFilter{{Field: FieldTags, Value: q.Tag()}}
		}
	}

	sr, err := r.store.SearchText(ctx, tq)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", r.indexName(), err)
	}
	return r.parseHits(sr), nil
}

func (r *Repo) parseHits(sr *db.SearchResult) []domdoc.Hit {
	if sr == nil || len(sr.Entries) == 0 {
		return []domdoc.Hit{}
	}
	hits := make([]domdoc.Hit, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		id := r.idFromKey(entry.Key)
		d, ok, err := parseJSONDoc(entry.Fields["$"])
		if err != nil || !ok {
			// Deleted between match and load.
			continue
		}
		hits = append(hits, domdoc.Hit{Document: d.toDomain(id), Score: entry.Score})
	}
	return hits
}

func (r *Repo) definition() *db.IndexDefinition {
	return &db.IndexDefinition{
		Name:   r.indexName(),
		Prefix: r.docPrefix(),
		Schema: []db.Attribute{
			{Path: "$.title", Alias: FieldTitle, Type: []string{"TEXT", "WEIGHT", "2"}},
			{Path: "$.content", Alias: FieldContent, Type: []string{"TEXT"}},
			{Path: "$.tags[*]", Alias: FieldTags, Type: []string{"TAG", "CASESENSITIVE"}},
			{Path: "$.createdAt", Alias: FieldCreatedAt, Type: []string{"NUMERIC", "SORTABLE"}},
		},
	}
}

func (r *Repo) indexName() string { return r.prefix + "idx:questions" }

func (r *Repo) docPrefix() string { return r.prefix + "question:" }

func (r *Repo) docKey(id string) string { return r.docPrefix() + "{" + id + "}" }

func (r *Repo) tombKey(id string) string { return r.prefix + "tomb:{" + id + "}" }

func (r *Repo) idFromKey(key string) string {
	return strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(key, r.docPrefix()), "{"), "}")
}

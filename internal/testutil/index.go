package testutil

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/kailas-cloud/askdex/internal/domain"
	domdoc "github.com/kailas-cloud/askdex/internal/domain/document"
	"github.com/kailas-cloud/askdex/internal/domain/search/query"
)

// Index is an in-memory search index with the same contract as the
// RediSearch-backed repository. Matching is by whole lowercase words, every
// term word must match; title hits weigh twice content hits.
type Index struct {
	mu    sync.Mutex
	docs  map[string]domdoc.Document
	tombs map[string]int64
	// gens counts writes per id; it stands in for the stored bytes.
	gens map[string]int

	// CommitErr and SearchErr inject failures.
	CommitErr error
	SearchErr error

	upserts int
}

// NewIndex creates an empty Index.
func NewIndex() *Index {
	return &Index{
		docs:  make(map[string]domdoc.Document),
		tombs: make(map[string]int64),
		gens:  make(map[string]int),
	}
}

// Get returns the stored document or domain.ErrNotFound.
func (x *Index) Get(_ context.Context, id string) (domdoc.Document, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	d, ok := x.docs[id]
	if !ok {
		return domdoc.Document{}, domain.ErrNotFound
	}
	return d, nil
}

// Tombstone returns the recorded delete revision, or 0.
func (x *Index) Tombstone(_ context.Context, id string) (int64, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.tombs[id], nil
}

// Load returns the stored state of id.
func (x *Index) Load(_ context.Context, id string) (domdoc.Snapshot, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	snap := domdoc.Snapshot{ID: id, Tombstone: x.tombs[id], Version: x.version(id)}
	if d, ok := x.docs[id]; ok {
		snap.Current = &d
	}
	return snap, nil
}

// Commit applies d if id is unchanged since snap was loaded. The TTL is
// ignored.
func (x *Index) Commit(_ context.Context, snap domdoc.Snapshot, d domdoc.Decision, _ time.Duration) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if d.Action == domdoc.ActionSkip {
		return nil
	}
	if x.CommitErr != nil {
		return x.CommitErr
	}
	id := snap.ID
	if x.version(id) != snap.Version {
		return fmt.Errorf("commit %s: %w", id, domain.ErrConflict)
	}

	switch d.Action {
	case domdoc.ActionUpsert:
		x.docs[id] = d.Doc
		x.upserts++
	case domdoc.ActionDelete:
		delete(x.docs, id)
		if rev := d.Doc.Revision(); rev > 0 {
			x.tombs[id] = rev
		}
	}
	x.gens[id]++
	return nil
}

// IDs calls fn once with every stored document id.
func (x *Index) IDs(_ context.Context, fn func(ids []string) error) error {
	x.mu.Lock()
	ids := make([]string, 0, len(x.docs))
	for id := range x.docs {
		ids = append(ids, id)
	}
	x.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}
	slices.Sort(ids)
	return fn(ids)
}

func (x *Index) version(id string) domdoc.Version {
	var v domdoc.Version
	if _, ok := x.docs[id]; ok {
		v.Doc = strconv.Itoa(x.gens[id])
	}
	if t, ok := x.tombs[id]; ok {
		v.Tombstone = strconv.FormatInt(t, 10)
	}
	return v
}

// Len returns the number of stored documents.
func (x *Index) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.docs)
}

// Upserts returns the number of successful writes.
func (x *Index) Upserts() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.upserts
}

// Search ranks documents for q, best first.
func (x *Index) Search(_ context.Context, q query.Query) ([]domdoc.Hit, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.SearchErr != nil {
		return nil, x.SearchErr
	}

	terms := words(q.Term())
	hits := []domdoc.Hit{}
	for _, d := range x.docs {
		if q.Mode() == query.ModeFull && q.HasTag() && !slices.Contains(d.Tags(), q.Tag()) {
			continue
		}
		score, ok := scoreDoc(d, terms, q.Mode() == query.ModeTitles)
		if !ok {
			continue
		}
		hits = append(hits, domdoc.Hit{Document: d, Score: score})
	}

	slices.SortFunc(hits, func(a, b domdoc.Hit) int {
		if a.Score != b.Score {
			if a.Score > b.Score {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ID(), b.ID())
	})
	if len(hits) > q.Limit() {
		hits = hits[:q.Limit()]
	}
	return hits, nil
}

func scoreDoc(d domdoc.Document, terms []string, titleOnly bool) (float64, bool) {
	if len(terms) == 0 {
		return 1, true
	}
	title := words(d.Title())
	var content []string
	if !titleOnly {
		content = words(d.Content())
	}

	var score float64
	for _, t := range terms {
		inTitle := count(title, t)
		inContent := count(content, t)
		if inTitle+inContent == 0 {
			return 0, false
		}
		score += float64(2*inTitle + inContent)
	}
	return score, true
}

func count(ws []string, w string) int {
	n := 0
	for _, x := range ws {
		if x == w {
			n++
		}
	}
	return n
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Package query turns a free-text search string into a full-text term and an
// optional exact tag filter.
package query

import (
	"regexp"
	"strings"

	"github.com/kailas-cloud/askdex/internal/domain"
)

// Limits for the number of results.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

var tagRegex = regexp.MustCompile(`\[(.*?)\]`)

// Mode selects which fields the term is matched against.
type Mode string

const (
	// ModeFull matches title and content and honors the tag filter.
	ModeFull Mode = "full"
	// ModeTitles matches titles only and ignores tags.
	ModeTitles Mode = "titles"
)

// Parse extracts the first bracketed segment as a tag and returns the
// remaining trimmed text as the term. Every copy of that exact segment is
// removed from the term; other bracketed segments stay in it.
func Parse(raw string) (term, tag string) {
	loc := tagRegex.FindStringSubmatchIndex(raw)
	if loc == nil {
		return strings.TrimSpace(raw), ""
	}
	tag = strings.TrimSpace(raw[loc[2]:loc[3]])
	term = strings.TrimSpace(strings.ReplaceAll(raw, raw[loc[0]:loc[1]], ""))
	return term, tag
}

// Query is a validated search request (immutable value object).
type Query struct {
	term  string
	tag   string
	mode  Mode
	limit int
}

// New parses and validates raw. limit <= 0 selects the configured default;
// larger values are capped at maxLimit.
func New(raw string, mode Mode, limit, defaultLimit, maxLimit int) (Query, error) {
	if strings.TrimSpace(raw) == "" {
		return Query{}, domain.NewValidationError("query", "is required")
	}
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if maxLimit <= 0 {
		maxLimit = MaxLimit
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	q := Query{mode: mode, limit: limit}
	switch mode {
	case ModeFull:
		q.term, q.tag = Parse(raw)
	case ModeTitles:
		q.term = strings.TrimSpace(raw)
	default:
		return Query{}, domain.NewValidationError("mode", "must be full or titles")
	}
	return q, nil
}

// Term returns the full-text term (may be empty for a tag-only query).
func (q Query) Term() string { return q.term }

// Tag returns the exact tag filter, or "".
func (q Query) Tag() string { return q.tag }

// HasTag reports whether a tag filter applies.
func (q Query) HasTag() bool { return q.tag != "" }

// Mode returns the search mode.
func (q Query) Mode() Mode { return q.mode }

// Limit returns the maximum number of results.
func (q Query) Limit() int { return q.limit }

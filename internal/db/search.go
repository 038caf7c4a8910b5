package db

// TagFilter restricts results to documents whose tag field contains Value exactly.
type TagFilter struct {
	Field string
	Value string
}

// TextQuery is the input for a full-text search.
type TextQuery struct {
	IndexName string
	// Query is the raw user term; it is escaped by the store. Empty matches all documents.
	Query string
	// Fields scopes the term to these TEXT fields. Empty means all TEXT fields.
	Fields  []string
	Filters []TagFilter
	Limit   int
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}

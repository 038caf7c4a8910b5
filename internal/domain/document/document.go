// Package document is the search-side projection of a question.
package document

import (
	"regexp"
	"slices"

	"github.com/kailas-cloud/askdex/internal/domain/event"
)

var markupRegex = regexp.MustCompile(`<.*?>`)

// StripMarkup removes every `<...>` span (shortest match). Best effort only:
// entities and unbalanced brackets pass through untouched.
func StripMarkup(s string) string {
	return markupRegex.ReplaceAllString(s, "")
}

// Document is the indexed projection of a question (immutable value object).
type Document struct {
	id        string
	title     string
	content   string
	tags      []string
	createdAt int64
	revision  int64
	partial   bool
}

// FromCreated projects a QuestionCreated payload.
func FromCreated(e event.QuestionCreated, revision int64) Document {
	return Document{
		id:        e.QuestionID,
		title:     e.Title,
		content:   StripMarkup(e.Content),
		tags:      cloneTags(e.Tags),
		createdAt: e.Created.Unix(),
		revision:  revision,
	}
}

// Reconstruct creates a Document from stored fields (storage hydration).
func Reconstruct(id, title, content string, tags []string, createdAt, revision int64, partial bool) Document {
	return Document{
		id: id, title: title, content: content, tags: tags,
		createdAt: createdAt, revision: revision, partial: partial,
	}
}

// ID returns the question id.
func (d *Document) ID() string { return d.id }

// Title returns the question title.
func (d *Document) Title() string { return d.title }

// Content returns the sanitized content.
func (d *Document) Content() string { return d.content }

// Tags returns the tag slugs.
func (d *Document) Tags() []string { return d.tags }

// CreatedAt returns the creation time in epoch seconds (0 while partial).
func (d *Document) CreatedAt() int64 { return d.createdAt }

// Revision returns the question revision the document reflects.
func (d *Document) Revision() int64 { return d.revision }

// Partial reports whether the document still waits for its QuestionCreated.
func (d *Document) Partial() bool { return d.partial }

// withUpdate returns a copy carrying the updated searchable fields.
func (d Document) withUpdate(e event.QuestionUpdated, revision int64) Document {
	d.title = e.Title
	d.content = StripMarkup(e.Content)
	d.tags = cloneTags(e.Tags)
	if revision > 0 || d.revision == 0 {
		d.revision = revision
	}
	return d
}

func cloneTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return slices.Clone(tags)
}

// Hit is a ranked search result.
type Hit struct {
	Document
	Score float64
}

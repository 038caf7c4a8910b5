// Package question holds the system-of-record aggregates: questions and their answers.
package question

import (
	"strings"
	"time"

	"github.com/kailas-cloud/askdex/internal/domain/event"
)

// Question is a user question as stored in the system of record.
type Question struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	Content           string     `json:"content"`
	TagSlugs          []string   `json:"tagSlugs"`
	AskerID           string     `json:"askerId"`
	AskerDisplayName  string     `json:"askerDisplayName"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         *time.Time `json:"updatedAt,omitempty"`
	ViewCount         int        `json:"viewCount"`
	AnswerCount       int        `json:"answerCount"`
	HasAcceptedAnswer bool       `json:"hasAcceptedAnswer"`
	Revision          int64      `json:"-"`
	Answers           []Answer   `json:"answers,omitempty"`
}

// Answer belongs to exactly one question.
type Answer struct {
	ID              string     `json:"id"`
	QuestionID      string     `json:"questionId"`
	Content         string     `json:"content"`
	UserID          string     `json:"userId"`
	UserDisplayName string     `json:"userDisplayName"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       *time.Time `json:"updatedAt,omitempty"`
	Accepted        bool       `json:"accepted"`
}

// Draft is the validated user input for creating or updating a question.
type Draft struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// Normalize trims the title and drops blank and repeated tags, keeping order.
func (d *Draft) Normalize() {
	d.Title = strings.TrimSpace(d.Title)
	seen := make(map[string]bool, len(d.Tags))
	tags := make([]string, 0, len(d.Tags))
	for _, t := range d.Tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	d.Tags = tags
}

// CreatedEvent builds the QuestionCreated envelope for q.
func (q *Question) CreatedEvent() event.Envelope {
	return event.New(event.QuestionCreated{
		QuestionID: q.ID,
		Title:      q.Title,
		Content:    q.Content,
		Created:    q.CreatedAt,
		Tags:       q.TagSlugs,
	}, q.Revision)
}

// UpdatedEvent builds the QuestionUpdated envelope for q.
func (q *Question) UpdatedEvent() event.Envelope {
	return event.New(event.QuestionUpdated{
		QuestionID: q.ID,
		Title:      q.Title,
		Content:    q.Content,
		Tags:       q.TagSlugs,
	}, q.Revision)
}

// IsOwnedBy reports whether userID asked the question.
func (q *Question) IsOwnedBy(userID string) bool {
	return userID != "" && q.AskerID == userID
}

// IsOwnedBy reports whether userID wrote the answer.
func (a *Answer) IsOwnedBy(userID string) bool {
	return userID != "" && a.UserID == userID
}

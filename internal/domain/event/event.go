// Package event defines the domain events emitted after question and answer
// mutations commit, and the envelope they travel in.
package event

import "time"

// Kind names an event case. The string value is the wire type name.
type Kind string

const (
	KindQuestionCreated    Kind = "QuestionCreated"
	KindQuestionUpdated    Kind = "QuestionUpdated"
	KindQuestionDeleted    Kind = "QuestionDeleted"
	KindAnswerCountUpdated Kind = "AnswerCountUpdated"
	KindAnswerAccepted     Kind = "AnswerAccepted"
)

// IsValid reports whether k is a known event kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindQuestionCreated, KindQuestionUpdated, KindQuestionDeleted,
		KindAnswerCountUpdated, KindAnswerAccepted:
		return true
	}
	return false
}

// Payload is implemented by every event case.
type Payload interface {
	Kind() Kind
	// PartitionKey is the question id the event belongs to.
	PartitionKey() string
}

// QuestionCreated is emitted after a question insert commits.
type QuestionCreated struct {
	QuestionID string    `json:"questionId"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Created    time.Time `json:"created"`
	Tags       []string  `json:"tags"`
}

// QuestionUpdated is emitted after a question's title, content or tags change.
type QuestionUpdated struct {
	QuestionID string   `json:"questionId"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Tags       []string `json:"tags"`
}

// QuestionDeleted is emitted after a question is removed.
type QuestionDeleted struct {
	QuestionID string `json:"questionId"`
}

// AnswerCountUpdated carries the new answer count of a question.
type AnswerCountUpdated struct {
	QuestionID string `json:"questionId"`
	Count      int    `json:"count"`
}

// AnswerAccepted is emitted when a question gets its accepted answer.
type AnswerAccepted struct {
	QuestionID string `json:"questionId"`
}

func (QuestionCreated) Kind() Kind    { return KindQuestionCreated }
func (QuestionUpdated) Kind() Kind    { return KindQuestionUpdated }
func (QuestionDeleted) Kind() Kind    { return KindQuestionDeleted }
func (AnswerCountUpdated) Kind() Kind { return KindAnswerCountUpdated }
func (AnswerAccepted) Kind() Kind     { return KindAnswerAccepted }

func (e QuestionCreated) PartitionKey() string    { return e.QuestionID }
func (e QuestionUpdated) PartitionKey() string    { return e.QuestionID }
func (e QuestionDeleted) PartitionKey() string    { return e.QuestionID }
func (e AnswerCountUpdated) PartitionKey() string { return e.QuestionID }
func (e AnswerAccepted) PartitionKey() string     { return e.QuestionID }

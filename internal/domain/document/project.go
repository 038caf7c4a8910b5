package document

import (
	"fmt"

	"github.com/kailas-cloud/askdex/internal/domain"
	"github.com/kailas-cloud/askdex/internal/domain/event"
)

// Action is what the projector must do to the index for one event.
type Action int

const (
	// ActionSkip leaves the index untouched.
	ActionSkip Action = iota
	// ActionUpsert writes Decision.Doc.
	ActionUpsert
	// ActionDelete removes the document and records a tombstone.
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionUpsert:
		return "upsert"
	case ActionDelete:
		return "delete"
	default:
		return "skip"
	}
}

// Skip reasons.
const (
	ReasonNotIndexed = "not_indexed"
	ReasonStale      = "stale"
	ReasonTombstoned = "tombstoned"
)

// Decision is the outcome of projecting an event onto the current index state.
type Decision struct {
	Action Action
	Doc    Document
	Reason string
}

// Project decides how env changes the document. current is the stored
// document (nil if absent); tombstone is the revision of a recorded delete
// (0 if none).
//
// Events with revision > 0 older than the stored document or tombstone are
// stale. Equal revisions re-apply. Revision 0 always applies.
func Project(current *Document, tombstone int64, env event.Envelope) (Decision, error) {
	switch p := env.Payload.(type) {
	case event.QuestionCreated:
		if isBuried(tombstone, env.Revision) {
			return skip(ReasonTombstoned), nil
		}
		if current != nil && isOlder(current.revision, env.Revision) {
			if !current.partial {
				return skip(ReasonStale), nil
			}
			// A newer update overtook this create: keep its fields, fill the rest.
			doc := *current
			doc.createdAt = p.Created.Unix()
			doc.partial = false
			return Decision{Action: ActionUpsert, Doc: doc}, nil
		}
		return Decision{Action: ActionUpsert, Doc: FromCreated(p, env.Revision)}, nil

	case event.QuestionUpdated:
		if isBuried(tombstone, env.Revision) {
			return skip(ReasonTombstoned), nil
		}
		if current == nil {
			doc := Document{id: p.QuestionID, partial: true}
			return Decision{Action: ActionUpsert, Doc: doc.withUpdate(p, env.Revision)}, nil
		}
		if isOlder(current.revision, env.Revision) {
			return skip(ReasonStale), nil
		}
		return Decision{Action: ActionUpsert, Doc: current.withUpdate(p, env.Revision)}, nil

	case event.QuestionDeleted:
		if env.Revision > 0 && tombstone >= env.Revision {
			return skip(ReasonTombstoned), nil
		}
		if current != nil && isOlder(current.revision, env.Revision) {
			return skip(ReasonStale), nil
		}
		return Decision{Action: ActionDelete, Doc: Document{id: p.QuestionID, revision: env.Revision}}, nil

	case event.AnswerCountUpdated, event.AnswerAccepted:
		return skip(ReasonNotIndexed), nil

	default:
		return Decision{}, fmt.Errorf("%w: no projection for %T", domain.ErrMalformedEvent, env.Payload)
	}
}

func skip(reason string) Decision { return Decision{Action: ActionSkip, Reason: reason} }

// isOlder reports whether an event at revision is behind stored.
func isOlder(stored, revision int64) bool {
	return revision > 0 && stored > revision
}

// isBuried reports whether a delete at tombstone supersedes an event at revision.
func isBuried(tombstone, revision int64) bool {
	return revision > 0 && tombstone > 0 && tombstone >= revision
}

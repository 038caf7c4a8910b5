package event

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/askdex/internal/domain"
)

// Stream entry field names.
const (
	FieldID         = "id"
	FieldType       = "type"
	FieldKey        = "key"
	FieldRevision   = "revision"
	FieldOccurredAt = "occurred_at"
	FieldPayload    = "payload"
)

// Envelope wraps a payload with delivery metadata.
type Envelope struct {
	ID         string
	Kind       Kind
	Key        string
	Revision   int64 // question revision the event reflects; 0 = unversioned
	OccurredAt time.Time
	Payload    Payload
}

// New wraps p in an envelope with a fresh id.
func New(p Payload, revision int64) Envelope {
	return Envelope{
		ID:         uuid.NewString(),
		Kind:       p.Kind(),
		Key:        p.PartitionKey(),
		Revision:   revision,
		OccurredAt: time.Now().UTC(),
		Payload:    p,
	}
}

// Encode flattens the envelope into stream entry fields.
func (e *Envelope) Encode() (map[string]string, error) {
	if e.Payload == nil {
		return nil, fmt.Errorf("encode %s: nil payload", e.Kind)
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", e.Kind, err)
	}
	return map[string]string{
		FieldID:         e.ID,
		FieldType:       string(e.Kind),
		FieldKey:        e.Key,
		FieldRevision:   strconv.FormatInt(e.Revision, 10),
		FieldOccurredAt: e.OccurredAt.Format(time.RFC3339Nano),
		FieldPayload:    string(data),
	}, nil
}

// Decode rebuilds an envelope from stream entry fields.
// Every failure wraps domain.ErrMalformedEvent: such messages can never be applied.
func Decode(fields map[string]string) (Envelope, error) {
	kind := Kind(fields[FieldType])
	if !kind.IsValid() {
		return Envelope{}, fmt.Errorf("%w: unknown type %q", domain.ErrMalformedEvent, fields[FieldType])
	}

	payload, err := decodePayload(kind, []byte(fields[FieldPayload]))
	if err != nil {
		return Envelope{}, err
	}

	key := fields[FieldKey]
	if key == "" {
		key = payload.PartitionKey()
	}
	if key == "" {
		return Envelope{}, fmt.Errorf("%w: %s without question id", domain.ErrMalformedEvent, kind)
	}
	if pk := payload.PartitionKey(); pk != key {
		return Envelope{}, fmt.Errorf("%w: key %q does not match questionId %q", domain.ErrMalformedEvent, key, pk)
	}

	var revision int64
	if raw := fields[FieldRevision]; raw != "" {
		revision, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || revision < 0 {
			return Envelope{}, fmt.Errorf("%w: bad revision %q", domain.ErrMalformedEvent, raw)
		}
	}

	var occurredAt time.Time
	if raw := fields[FieldOccurredAt]; raw != "" {
		occurredAt, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return Envelope{}, fmt.Errorf("%w: bad occurred_at %q", domain.ErrMalformedEvent, raw)
		}
	}

	return Envelope{
		ID:         fields[FieldID],
		Kind:       kind,
		Key:        key,
		Revision:   revision,
		OccurredAt: occurredAt,
		Payload:    payload,
	}, nil
}

func decodePayload(kind Kind, data []byte) (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch kind {
	case KindQuestionCreated:
		var v QuestionCreated
		err = json.Unmarshal(data, &v)
		p = v
	case KindQuestionUpdated:
		var v QuestionUpdated
		err = json.Unmarshal(data, &v)
		p = v
	case KindQuestionDeleted:
		var v QuestionDeleted
		err = json.Unmarshal(data, &v)
		p = v
	case KindAnswerCountUpdated:
		var v AnswerCountUpdated
		err = json.Unmarshal(data, &v)
		p = v
	case KindAnswerAccepted:
		var v AnswerAccepted
		err = json.Unmarshal(data, &v)
		p = v
	default:
		return nil, fmt.Errorf("%w: unknown type %q", domain.ErrMalformedEvent, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s payload: %w", domain.ErrMalformedEvent, kind, err)
	}
	return p, nil
}

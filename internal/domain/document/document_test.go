package document

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/kailas-cloud/askdex/internal/domain"
	"github.com/kailas-cloud/askdex/internal/domain/event"
)

var created = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func createdEnv(rev int64) event.Envelope {
	return event.New(event.QuestionCreated{
		QuestionID: "q-1",
		Title:      "How to sort",
		Content:    "<p>Use <b>quicksort</b></p>",
		Created:    created,
		Tags:       []string{"algorithms"},
	}, rev)
}

func updatedEnv(rev int64, title string) event.Envelope {
	return event.New(event.QuestionUpdated{
		QuestionID: "q-1",
		Title:      title,
		Content:    "<i>merge</i> sort",
		Tags:       []string{"algorithms", "go"},
	}, rev)
}

func TestStripMarkup(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"<b>Hello</b> <i>World</i>", "Hello World"},
		{"plain text", "plain text"},
		{"a < b and c > d", "a  d"},
		{"<a href=\"x\">link</a>", "link"},
		{"unterminated <b", "unterminated <b"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := StripMarkup(tt.in); got != tt.want {
			t.Errorf("StripMarkup(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFromCreated(t *testing.T) {
	env := createdEnv(1)
	doc := FromCreated(env.Payload.(event.QuestionCreated), env.Revision)

	if doc.ID() != "q-1" || doc.Title() != "How to sort" {
		t.Errorf("id/title = %q/%q", doc.ID(), doc.Title())
	}
	if doc.Content() != "Use quicksort" {
		t.Errorf("Content() = %q", doc.Content())
	}
	if doc.CreatedAt() != created.Unix() {
		t.Errorf("CreatedAt() = %d, want %d", doc.CreatedAt(), created.Unix())
	}
	if doc.Partial() {
		t.Error("created document must not be partial")
	}
	if doc.Revision() != 1 {
		t.Errorf("Revision() = %d", doc.Revision())
	}
}

func TestFromCreated_NilTags(t *testing.T) {
	doc := FromCreated(event.QuestionCreated{QuestionID: "q"}, 0)
	if doc.Tags() == nil || len(doc.Tags()) != 0 {
		t.Errorf("Tags() = %#v, want empty slice", doc.Tags())
	}
}

func TestProject_CreateIsIdempotent(t *testing.T) {
	env := createdEnv(1)
	first, err := Project(nil, 0, env)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Project(&first.Doc, 0, env)
	if err != nil {
		t.Fatal(err)
	}
	if first.Action != ActionUpsert || second.Action != ActionUpsert {
		t.Fatalf("actions = %v, %v", first.Action, second.Action)
	}
	if first.Doc.Title() != second.Doc.Title() || first.Doc.Content() != second.Doc.Content() ||
		first.Doc.CreatedAt() != second.Doc.CreatedAt() || !slices.Equal(first.Doc.Tags(), second.Doc.Tags()) {
		t.Errorf("redelivered create changed the document: %+v vs %+v", first.Doc, second.Doc)
	}
}

func TestProject_CreateThenUpdate(t *testing.T) {
	c, _ := Project(nil, 0, createdEnv(1))
	u, err := Project(&c.Doc, 0, updatedEnv(2, "How to sort fast"))
	if err != nil {
		t.Fatal(err)
	}
	if u.Action != ActionUpsert {
		t.Fatalf("Action = %v", u.Action)
	}
	if u.Doc.Title() != "How to sort fast" || u.Doc.Content() != "merge sort" {
		t.Errorf("doc = %+v", u.Doc)
	}
	if u.Doc.CreatedAt() != created.Unix() {
		t.Errorf("update lost createdAt: %d", u.Doc.CreatedAt())
	}
	if u.Doc.Revision() != 2 {
		t.Errorf("Revision() = %d", u.Doc.Revision())
	}
}

func TestProject_StaleUpdateIgnored(t *testing.T) {
	cur := Reconstruct("q-1", "newest", "c", []string{"go"}, created.Unix(), 3, false)
	d, err := Project(&cur, 0, updatedEnv(2, "older"))
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != ActionSkip || d.Reason != ReasonStale {
		t.Errorf("decision = %v/%s, want skip/stale", d.Action, d.Reason)
	}
}

func TestProject_EqualRevisionReapplies(t *testing.T) {
	cur := Reconstruct("q-1", "t", "c", nil, created.Unix(), 2, false)
	d, _ := Project(&cur, 0, updatedEnv(2, "again"))
	if d.Action != ActionUpsert || d.Doc.Title() != "again" {
		t.Errorf("decision = %v %q", d.Action, d.Doc.Title())
	}
}

func TestProject_UnversionedAlwaysApplies(t *testing.T) {
	cur := Reconstruct("q-1", "t", "c", nil, created.Unix(), 9, false)
	d, _ := Project(&cur, 9, updatedEnv(0, "legacy"))
	if d.Action != ActionUpsert || d.Doc.Title() != "legacy" {
		t.Fatalf("decision = %v %q", d.Action, d.Doc.Title())
	}
	if d.Doc.Revision() != 9 {
		t.Errorf("unversioned update must keep stored revision, got %d", d.Doc.Revision())
	}
}

func TestProject_UpdateBeforeCreate(t *testing.T) {
	u, err := Project(nil, 0, updatedEnv(2, "How to sort fast"))
	if err != nil {
		t.Fatal(err)
	}
	if u.Action != ActionUpsert || !u.Doc.Partial() || u.Doc.CreatedAt() != 0 {
		t.Fatalf("update-first doc = %+v", u.Doc)
	}

	c, err := Project(&u.Doc, 0, createdEnv(1))
	if err != nil {
		t.Fatal(err)
	}
	if c.Action != ActionUpsert {
		t.Fatalf("Action = %v", c.Action)
	}
	if c.Doc.Partial() {
		t.Error("late create must clear partial")
	}
	if c.Doc.CreatedAt() != created.Unix() {
		t.Errorf("CreatedAt() = %d", c.Doc.CreatedAt())
	}
	if c.Doc.Title() != "How to sort fast" || c.Doc.Revision() != 2 {
		t.Errorf("late create overwrote newer fields: %+v", c.Doc)
	}
}

func TestProject_LateCreateOnCompleteDocIsStale(t *testing.T) {
	cur := Reconstruct("q-1", "newer", "c", nil, created.Unix(), 2, false)
	d, _ := Project(&cur, 0, createdEnv(1))
	if d.Action != ActionSkip || d.Reason != ReasonStale {
		t.Errorf("decision = %v/%s", d.Action, d.Reason)
	}
}

func TestProject_Delete(t *testing.T) {
	del := event.New(event.QuestionDeleted{QuestionID: "q-1"}, 3)

	d, err := Project(nil, 0, del)
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != ActionDelete || d.Doc.ID() != "q-1" || d.Doc.Revision() != 3 {
		t.Errorf("absent delete = %+v", d)
	}

	again, _ := Project(nil, 3, del)
	if again.Action != ActionSkip || again.Reason != ReasonTombstoned {
		t.Errorf("redelivered delete = %v/%s", again.Action, again.Reason)
	}
}

func TestProject_TombstoneSuppressesLateEvents(t *testing.T) {
	for _, env := range []event.Envelope{createdEnv(1), updatedEnv(2, "x")} {
		d, err := Project(nil, 3, env)
		if err != nil {
			t.Fatal(err)
		}
		if d.Action != ActionSkip || d.Reason != ReasonTombstoned {
			t.Errorf("%s after delete = %v/%s", env.Kind, d.Action, d.Reason)
		}
	}
}

func TestProject_AnswerEventsNotIndexed(t *testing.T) {
	for _, p := range []event.Payload{
		event.AnswerCountUpdated{QuestionID: "q-1", Count: 2},
		event.AnswerAccepted{QuestionID: "q-1"},
	} {
		d, err := Project(nil, 0, event.New(p, 0))
		if err != nil {
			t.Fatal(err)
		}
		if d.Action != ActionSkip || d.Reason != ReasonNotIndexed {
			t.Errorf("%T = %v/%s", p, d.Action, d.Reason)
		}
	}
}

func TestProject_NilPayload(t *testing.T) {
	_, err := Project(nil, 0, event.Envelope{Kind: event.KindQuestionCreated})
	if !errors.Is(err, domain.ErrMalformedEvent) {
		t.Errorf("err = %v, want ErrMalformedEvent", err)
	}
}

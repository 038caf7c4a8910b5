package db

import "time"

// GuardedWrite changes a JSON document and its guard key in one step,
// provided both still hold the values the caller read before deciding.
type GuardedWrite struct {
	DocKey   string
	GuardKey string

	// ExpectDoc and ExpectGuard are the raw values read earlier; "" means absent.
	ExpectDoc   string
	ExpectGuard string

	// Doc replaces the document at path $; "" deletes it.
	Doc string
	// Guard, when set, is stored at GuardKey for GuardTTL.
	Guard    string
	GuardTTL time.Duration
}

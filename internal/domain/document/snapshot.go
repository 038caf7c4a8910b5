package document

// Snapshot is the index state of one question as a writer read it.
type Snapshot struct {
	ID string
	// Current is nil when no document is stored.
	Current *Document
	// Tombstone is the revision of a recorded delete, 0 if none.
	Tombstone int64
	// Version identifies the stored state; the index compares it on commit.
	Version Version
}

// Version is the stored form of a Snapshot. Empty fields mean absent keys.
type Version struct {
	Doc       string
	Tombstone string
}

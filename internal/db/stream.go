package db

import "time"

// Special stream ids.
const (
	// StreamNew reads entries never delivered to the group.
	StreamNew = ">"
	// StreamPending reads the consumer's own delivered but unacknowledged entries.
	StreamPending = "0"
	// StreamStart is the lowest possible id.
	StreamStart = "0-0"
)

// StreamMessage is a single stream entry.
type StreamMessage struct {
	ID     string
	Fields map[string]string
}

// StreamReadQuery is the input for XREADGROUP on one stream.
type StreamReadQuery struct {
	Stream   string
	Group    string
	Consumer string
	ID       string // StreamNew or StreamPending
	Count    int
	Block    time.Duration // 0 means do not block
}

// StreamClaimQuery is the input for XAUTOCLAIM.
type StreamClaimQuery struct {
	Stream   string
	Group    string
	Consumer string
	MinIdle  time.Duration
	Start    string
	Count    int
}

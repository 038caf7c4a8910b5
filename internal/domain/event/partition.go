package event

import "hash/fnv"

// Partition maps a question id to one of n partitions.
// The same key always lands on the same partition for a fixed n.
func Partition(key string, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n)) //nolint:gosec // n > 1 checked above
}

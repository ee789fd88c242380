// Package util provides shared utility functions.
package util

import "hash/fnv"

// HashID computes a stable 4-byte hash of a participant identifier. The hash
// is used solely for display (tile colours) and does not need to be reversible.
func HashID(id string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(id))
	return h.Sum32()
}

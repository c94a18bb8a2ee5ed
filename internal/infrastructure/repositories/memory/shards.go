package memory

import (
	"github.com/cespare/xxhash/v2"

	"huddle/internal/core/domain"
)

const defaultShards = 32

// shardIndex maps a user id onto one of n shards; n must be a power of two.
func shardIndex(id domain.UserID, n int) int {
	return int(xxhash.Sum64String(string(id)) & uint64(n-1))
}

func normalizeShards(n int) int {
	if n <= 0 {
		return defaultShards
	}
	// round up to a power of two
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

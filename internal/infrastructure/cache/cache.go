// Package cache provides the multi-tier cache layer shared by every
// pipeline stage: a fast in-process tier, a shared Redis tier, and a
// persistent Badger tier for content-addressed artifacts.
package cache

import (
	"context"
	"time"
)

// Cache is the key/value get-or-compute surface stages depend on.
// Values are opaque byte payloads; keys are content hashes or
// fingerprints, so concurrent writers of the same key race safely to
// an equivalent value.
type Cache interface {
	// Get returns the cached value and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with the given TTL (0 = tier default).
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Stats holds hit/miss counters per tier
type Stats struct {
	L1Hits   int64 `json:"l1_hits"`
	L1Misses int64 `json:"l1_misses"`
	L2Hits   int64 `json:"l2_hits"`
	L2Misses int64 `json:"l2_misses"`
	L3Hits   int64 `json:"l3_hits"`
	L3Misses int64 `json:"l3_misses"`
}

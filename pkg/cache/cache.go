// Package cache defines the ephemeral key/value store the trading core
// relies on for TTL'd state: ticker snapshots, in-flight order records and
// strategy scratch state. Two implementations satisfy Cache: an in-memory
// sharded map (local runs, tests) and a Redis-backed one (production).
package cache

import (
	"context"
	"time"
)

// Default TTLs named by spec §6.
const (
	TTLOrder    = 24 * time.Hour
	TTLStrategy = 24 * time.Hour
	TTLTicker   = 5 * time.Minute
)

// Cache is the ephemeral store contract consumed by the order manager,
// strategy scheduler, and market aggregator.
type Cache interface {
	// Get reads the raw bytes stored for key. ok is false on miss or expiry.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value under key with the given TTL. A zero TTL means "no
	// expiry" for the in-memory implementation and "server default" for Redis.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Del removes a key; deleting a missing key is not an error.
	Del(ctx context.Context, key string) error
}

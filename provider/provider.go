// Package provider defines the byte store behind gist attributes.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key (no prepended/appended
// metadata, no re-encoding, no mutation). If a store performs internal transforms
// (e.g., compression), they MUST be fully reversed.
//
// The keyspace "attr:" is owned by gist. Foreign values under it are read as
// corrupt entries and overwritten on the next computation.
package provider

import (
	"context"
)

// Provider is a minimal byte store. Must be safe for concurrent use.
// Values live until overwritten or deleted; a store with eviction (bigcache,
// ristretto) turns evicted entries into plain cache misses.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set replaces the value stored under key.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte) (ok bool, err error)

	// Del removes a key (best-effort).
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}

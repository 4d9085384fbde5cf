// Package genstore holds generation counters. gist keeps the global reindex
// generation in one; bumping it invalidates every stored gist at once.
package genstore

import (
	"context"
)

// GenStore abstracts where generations live.
// Use LocalGenStore (default) for in-process gens, FileGenStore to persist
// them on disk, or RedisGenStore to share them between processes.
type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, key string) (uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, key string) (uint64, error)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}

package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by a backend when no entry exists for the key.
var ErrNotFound = errors.New("cache entry not found")

// ErrUnavailable wraps infrastructure failures of a backend. Readers
// treat it exactly like a miss: the cache fails soft, never closed.
var ErrUnavailable = errors.New("cache unavailable")

// Backend is the storage contract behind [Snapshots]. Implementations
// store entries verbatim and enforce only the hard TTL; the refresh-ahead
// policy lives entirely in the wrapper.
type Backend interface {
	// Get returns the entry for the principal or [ErrNotFound].
	Get(ctx context.Context, principalID string) (*Snapshot, error)

	// Set overwrites the entry unconditionally. ttl is the hard expiry
	// from now; implementations may evict earlier but never later.
	Set(ctx context.Context, principalID string, snap *Snapshot, ttl time.Duration) error

	// Delete evicts the entry. Deleting a missing entry is a no-op.
	Delete(ctx context.Context, principalID string) error
}

package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no record exists for the given hash.
var ErrNotFound = errors.New("session record not found")

// ErrStoreUnavailable wraps infrastructure failures of a backing store.
// Callers treat it as a hard denial: session validation fails closed.
var ErrStoreUnavailable = errors.New("session store unavailable")

// Store is the persistence contract for session records. Every mutating
// operation is a single atomic filtered write; no implementation needs
// multi-record transactions.
type Store interface {
	// Create persists a new record. The record's RefreshHash must be unique.
	Create(ctx context.Context, rec *Record) error

	// FindByHash returns the record keyed by the credential hash, or
	// [ErrNotFound]. Revoked and expired records are still returned; the
	// caller decides usability.
	FindByHash(ctx context.Context, hash [32]byte) (*Record, error)

	// TouchLastUsed advances LastUsed on an active record. Best effort:
	// a missing or inactive record is a no-op, not an error.
	TouchLastUsed(ctx context.Context, hash [32]byte, at time.Time) error

	// Revoke deactivates the record and stamps RevokedAt. Idempotent:
	// revoking an already-revoked or nonexistent record is a no-op.
	Revoke(ctx context.Context, hash [32]byte, at time.Time) error

	// RevokeAllForPrincipal deactivates every currently usable record for
	// the principal and returns the exact count affected. Records created
	// after the call are unaffected.
	RevokeAllForPrincipal(ctx context.Context, principalID string, at time.Time) (int, error)

	// ActiveForPrincipal lists records still usable at now, for device
	// listings and incident response.
	ActiveForPrincipal(ctx context.Context, principalID string, now time.Time) ([]*Record, error)

	// PurgeExpired deletes records past hard expiry, and revoked records
	// whose RevokedAt is older than the grace window. Idempotent and safe
	// to run concurrently with live traffic.
	PurgeExpired(ctx context.Context, now time.Time, revokedGrace time.Duration) (int, error)

	// Ping reports point-in-time store availability.
	Ping(ctx context.Context) error
}

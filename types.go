package authcore

import (
	"context"
	"time"

	"github.com/stayloop/authcore/cache"
)

// DeviceMeta describes the client device at issuance time. All fields
// are optional and recorded verbatim on the session record.
type DeviceMeta struct {
	Device    string
	IP        string
	UserAgent string
}

// TokenPair defines a public type used by authcore APIs.
//
// TokenPair instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenPair struct {
	Access           string
	Refresh          string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// PrincipalRecord is the ground-truth view of a principal consumed
// during snapshot rebuilds.
type PrincipalRecord struct {
	ID       string
	Role     string
	Name     string
	Email    string
	Active   bool
	Verified bool
}

// PrincipalRepository is the read-only collaborator that resolves
// principals. Implementations are expected to be safe for concurrent
// use.
type PrincipalRepository interface {
	GetByID(ctx context.Context, id string) (*PrincipalRecord, error)
}

// BookingSummaryProvider supplies the recent-activity lines embedded in
// a snapshot, newest first.
type BookingSummaryProvider interface {
	RecentFor(ctx context.Context, principalID string, limit int) ([]cache.Booking, error)
}

// SessionInfo is the engine's public view of one active session, used
// for device listings.
type SessionInfo struct {
	ID        string
	Device    string
	IP        string
	UserAgent string
	CreatedAt time.Time
	LastUsed  time.Time
	ExpiresAt time.Time
}

// Snapshot defines a public type used by authcore APIs.
//
// Snapshot instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Snapshot = cache.Snapshot

// Booking defines a public type used by authcore APIs.
//
// Booking instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Booking = cache.Booking

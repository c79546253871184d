package session

import (
	"crypto/sha256"
	"time"
)

// Record is the server-side ground truth for one issued refresh credential.
// Exactly one Record exists per credential; the raw credential is never
// stored, only its SHA-256 hash, which is also the unique lookup key.
type Record struct {
	ID          string
	PrincipalID string
	RefreshHash [32]byte

	Device    string
	IP        string
	UserAgent string

	CreatedAt int64
	LastUsed  int64
	ExpiresAt int64
	RevokedAt int64

	Active bool
}

// Usable reports whether the record still authorizes its refresh
// credential: active and not past its hard expiry. Revoked and expired
// records behave identically here; they are distinguished only for audit
// and cleanup timing.
func (r *Record) Usable(now time.Time) bool {
	return r != nil && r.Active && r.ExpiresAt > now.Unix()
}

// HashCredential derives the deterministic one-way hash under which a raw
// refresh credential is persisted and looked up.
func HashCredential(raw string) [32]byte {
	return sha256.Sum256([]byte(raw))
}

package cache

import "time"

// Booking is one line of the recent-activity summary embedded in a
// snapshot. It is a denormalized read model, not the booking record.
type Booking struct {
	ID        string    `json:"id"`
	ListingID string    `json:"listing_id"`
	Status    string    `json:"status"`
	CheckIn   time.Time `json:"check_in"`
	CheckOut  time.Time `json:"check_out"`
}

// Snapshot is the precomputed authorization view served on the session
// fast path. Everything a request handler needs to authorize and render
// the current principal is assembled once at rebuild time.
//
// RefreshAt < ExpiresAt always holds. Between the two the entry is stale
// but still servable; past ExpiresAt it must not be served.
type Snapshot struct {
	PrincipalID string   `json:"principal_id"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`

	Name     string `json:"name"`
	Email    string `json:"email"`
	Verified bool   `json:"verified"`

	RecentBookings []Booking `json:"recent_bookings"`

	CachedAt  time.Time `json:"cached_at"`
	ExpiresAt time.Time `json:"expires_at"`
	RefreshAt time.Time `json:"refresh_at"`
}

// Fresh reports whether the entry is inside its fast-path window.
func (s *Snapshot) Fresh(now time.Time) bool {
	return s != nil && now.Before(s.RefreshAt)
}

// Servable reports whether the entry may still be returned to a caller,
// fresh or stale.
func (s *Snapshot) Servable(now time.Time) bool {
	return s != nil && now.Before(s.ExpiresAt)
}

// Clone returns a deep copy so cached entries are never aliased by
// callers.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	if s.Permissions != nil {
		out.Permissions = append([]string(nil), s.Permissions...)
	}
	if s.RecentBookings != nil {
		out.RecentBookings = append([]Booking(nil), s.RecentBookings...)
	}
	return &out
}

package authcore

import "errors"

var (
	// ErrUnauthorized is the single failure surfaced for every credential
	// problem at the API boundary. Malformed, forged, expired, mistyped and
	// revoked credentials are indistinguishable to callers so the error is
	// never an oracle; the detailed reason is metered and audited internally.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrSessionNotFound means a cryptographically valid refresh credential
	// has no matching active session record. Covers revoked and replayed
	// credentials. Collapsed to [ErrUnauthorized] at the boundary.
	ErrSessionNotFound = errors.New("session not found")
	// ErrPrincipalNotFound is an exported constant or variable used by the session engine.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrPrincipalDisabled is an exported constant or variable used by the session engine.
	ErrPrincipalDisabled = errors.New("principal disabled")
	// ErrRefreshRateLimited is an exported constant or variable used by the session engine.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrStoreUnavailable signals session store infrastructure failure.
	// Validation paths fail closed on it: authentication is denied, never
	// granted on an unreachable store.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrCacheUnavailable signals snapshot cache infrastructure failure. It
	// is never surfaced from read paths; reads degrade to a direct rebuild.
	ErrCacheUnavailable = errors.New("snapshot cache unavailable")
	// ErrSessionCreationFailed is an exported constant or variable used by the session engine.
	ErrSessionCreationFailed = errors.New("session creation failed")
	// ErrEngineNotReady is an exported constant or variable used by the session engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

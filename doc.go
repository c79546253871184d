// Package authcore implements the authentication session lifecycle for a
// booking platform: paired short-lived/long-lived signed credentials,
// persistent server-side session tracking with explicit revocation, and
// a refresh-ahead cache of per-principal authorization snapshots.
//
// # Components
//
//   - token.Manager — mints and verifies self-contained signed credentials; pure computation, no I/O.
//   - session.Store — ground truth for issued refresh credentials, keyed by one-way hash; Redis and PostgreSQL backends.
//   - cache.Snapshots — read-through snapshot cache with TTL + refresh-ahead and single-flight rebuilds.
//   - Engine — the exposed surface: IssueTokenPair, VerifyAccess, RefreshAccess, RevokeSession, RevokeAllSessions, SessionSnapshot, ActiveSessions.
//
// # Failure posture
//
// Store trouble fails closed: validation against an unreachable store
// denies. Cache trouble fails soft: reads degrade to a direct rebuild
// and the caller never sees the cache at all. Every credential problem
// surfaces as the single ErrUnauthorized so error shape is never an
// oracle; detailed reasons go to metrics and audit only.
//
// # Construction
//
//	engine, err := authcore.New().
//	    WithConfig(cfg).
//	    WithRedis(redisClient).
//	    WithPrincipals(principalRepo).
//	    WithBookings(bookingProvider).
//	    Build()
//
// Engines are immutable after Build and safe for concurrent use. Close
// tears down the cleanup scheduler, cache janitor and audit dispatcher.
package authcore

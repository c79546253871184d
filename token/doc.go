// Package token mints and verifies the paired short-lived access and
// long-lived refresh credentials as self-contained signed tokens.
//
// # Architecture boundaries
//
// This package owns credential format, signing, and stateless validation.
// It never touches a store: whether a refresh credential still maps to a
// live session record is decided by the session package, and the engine
// combines both answers.
//
// # Failure classification
//
// Verification failures are distinct internally — malformed input,
// signature/expiry failure, and kind mismatch — so callers can meter and
// audit them separately. The engine collapses all of them to a single
// generic unauthorized result at its boundary.
package token

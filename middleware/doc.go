// Package middleware exposes HTTP adapters over authcore.Engine.
//
// # Guards
//
//   - [RequireAccess] — stateless access credential verification; no store call.
//
// The guard reads the Authorization header, calls Engine.VerifyAccess, and
// injects the principal id plus client IP / User-Agent into the request
// context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself.
//
// # What this package must NOT do
//
//   - Parse or create signed credentials directly (delegates to Engine).
//   - Access the session store (Engine handles I/O).
//   - Make authorization decisions beyond pass/reject from VerifyAccess.
package middleware

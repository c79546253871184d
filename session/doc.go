// Package session persists refresh-credential session records.
//
// A Record is the server-side half of an issued refresh credential: the
// credential itself never touches the store, only its SHA-256 hash, which
// doubles as the unique lookup key. Two Store backends ship with the
// package: RedisStore for deployments that want native TTL expiry and
// script-atomic mutation, and PGStore for deployments that already run
// PostgreSQL and want plain relational rows.
//
// Architecture boundaries: this package knows nothing about tokens,
// caching, or policy. It stores, finds, revokes and purges records; the
// engine decides what those records mean.
package session

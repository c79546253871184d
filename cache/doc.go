// Package cache serves precomputed authorization snapshots under a
// bounded-staleness, refresh-ahead policy.
//
// The Snapshots wrapper owns the policy; Backend implementations own the
// bytes. A fresh entry is returned with no I/O, a stale entry triggers a
// blocking rebuild so hard expiry is never served past, and a miss
// rebuilds from ground truth. Backend failure is indistinguishable from
// a miss to callers: the cache can only ever add latency, never deny.
package cache

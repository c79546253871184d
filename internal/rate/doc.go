// Package rate throttles refresh attempts with fixed-window Redis
// counters. Per-principal only; the engine decides whether a limited
// attempt is denied or merely logged.
package rate

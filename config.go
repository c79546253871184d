package authcore

import (
	"errors"
	"time"
)

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Token    TokenConfig
	Session  SessionConfig
	Cache    CacheConfig
	Cleanup  CleanupConfig
	Throttle ThrottleConfig
	Audit    AuditConfig
	Metrics  MetricsConfig

	// ProductionMode suppresses coarse diagnostic reasons on the session
	// read path.
	ProductionMode bool
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig defines a public type used by authcore APIs.
//
// TokenConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by authcore APIs.
//
// SessionConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionConfig struct {
	RedisPrefix string
	// Retention is how long a record outlives its hard expiry in the
	// store, for audit.
	Retention time.Duration
}

/*
====================================
CACHE CONFIG
====================================
*/

// CacheConfig defines a public type used by authcore APIs.
//
// CacheConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CacheConfig struct {
	TTL time.Duration
	// RefreshLead is how long before hard expiry an entry turns stale.
	// Must stay below TTL.
	RefreshLead    time.Duration
	RebuildTimeout time.Duration
	// RecentBookings is how many activity lines a rebuild requests.
	RecentBookings int
	// JanitorInterval drives the memory backend's expiry sweep. Ignored
	// by the Redis backend, which expires natively.
	JanitorInterval time.Duration
}

/*
====================================
CLEANUP CONFIG
====================================
*/

// CleanupConfig defines a public type used by authcore APIs.
//
// CleanupConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CleanupConfig struct {
	Enabled  bool
	Interval time.Duration
	// RevokedGrace is how long revoked records survive before the sweep
	// deletes them, preserving them briefly for audit.
	RevokedGrace time.Duration
}

/*
====================================
THROTTLE CONFIG
====================================
*/

// ThrottleConfig defines a public type used by authcore APIs.
//
// ThrottleConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ThrottleConfig struct {
	EnableRefreshThrottle bool
	MaxRefreshAttempts    int
	RefreshWindow         time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig defines a public type used by authcore APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by authcore APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
			Leeway:        0,
		},
		Session: SessionConfig{
			RedisPrefix: "ac",
			Retention:   30 * 24 * time.Hour,
		},
		Cache: CacheConfig{
			TTL:             15 * time.Minute,
			RefreshLead:     3 * time.Minute,
			RebuildTimeout:  3 * time.Second,
			RecentBookings:  5,
			JanitorInterval: 5 * time.Minute,
		},
		Cleanup: CleanupConfig{
			Enabled:      true,
			Interval:     24 * time.Hour,
			RevokedGrace: 30 * 24 * time.Hour,
		},
		Throttle: ThrottleConfig{
			EnableRefreshThrottle: true,
			MaxRefreshAttempts:    20,
			RefreshWindow:         time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// Token
	if c.Token.AccessTTL <= 0 {
		return errors.New("Token AccessTTL must be > 0")
	}
	if c.Token.RefreshTTL <= 0 {
		return errors.New("Token RefreshTTL must be > 0")
	}
	if c.Token.AccessTTL >= c.Token.RefreshTTL {
		return errors.New("Token AccessTTL must be below RefreshTTL")
	}

	if c.Token.SigningMethod != "ed25519" && c.Token.SigningMethod != "hs256" {
		return errors.New("unsupported Token signing method")
	}

	if c.Token.SigningMethod == "ed25519" && len(c.Token.PrivateKey) == 0 {
		return errors.New("ed25519 requires PrivateKey")
	}
	if c.Token.SigningMethod == "ed25519" && len(c.Token.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}
	if c.Token.SigningMethod == "hs256" && len(c.Token.PrivateKey) == 0 {
		return errors.New("hs256 requires PrivateKey")
	}

	// Session
	if c.Session.Retention < 0 {
		return errors.New("Session Retention must be >= 0")
	}

	// Cache
	if c.Cache.TTL <= 0 {
		return errors.New("Cache TTL must be > 0")
	}
	if c.Cache.RefreshLead <= 0 {
		return errors.New("Cache RefreshLead must be > 0")
	}
	if c.Cache.RefreshLead >= c.Cache.TTL {
		return errors.New("Cache RefreshLead must be below TTL")
	}
	if c.Cache.RebuildTimeout <= 0 {
		return errors.New("Cache RebuildTimeout must be > 0")
	}
	if c.Cache.RecentBookings < 0 {
		return errors.New("Cache RecentBookings must be >= 0")
	}
	if c.Cache.JanitorInterval < 0 {
		return errors.New("Cache JanitorInterval must be >= 0")
	}

	// Cleanup
	if c.Cleanup.Enabled {
		if c.Cleanup.Interval <= 0 {
			return errors.New("Cleanup Interval must be > 0")
		}
		if c.Cleanup.RevokedGrace < 0 {
			return errors.New("Cleanup RevokedGrace must be >= 0")
		}
	}

	// Throttle
	if c.Throttle.EnableRefreshThrottle {
		if c.Throttle.MaxRefreshAttempts <= 0 {
			return errors.New("Throttle MaxRefreshAttempts must be > 0")
		}
		if c.Throttle.RefreshWindow <= 0 {
			return errors.New("Throttle RefreshWindow must be > 0")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}

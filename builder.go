package authcore

import (
	"database/sql"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stayloop/authcore/cache"
	"github.com/stayloop/authcore/internal/audit"
	"github.com/stayloop/authcore/internal/rate"
	"github.com/stayloop/authcore/permission"
	"github.com/stayloop/authcore/session"
	"github.com/stayloop/authcore/token"
)

// Builder defines a public type used by authcore APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config

	redis    *redis.Client
	postgres *sql.DB
	store    session.Store
	backend  cache.Backend

	roles map[string][]string

	principals PrincipalRepository
	bookings   BookingSummaryProvider
	auditSink  AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis selects Redis for session records and the snapshot cache.
//
// WithRedis may return an error when input validation, dependency calls, or security checks fail.
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithPostgres selects PostgreSQL for session records. Redis, when also
// configured, still backs the snapshot cache and refresh throttle.
//
// WithPostgres may return an error when input validation, dependency calls, or security checks fail.
// WithPostgres does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithPostgres(db *sql.DB) *Builder {
	b.postgres = db
	return b
}

// WithSessionStore injects a custom [session.Store], overriding the
// Redis and PostgreSQL selections.
//
// WithSessionStore may return an error when input validation, dependency calls, or security checks fail.
// WithSessionStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.store = store
	return b
}

// WithCacheBackend injects a custom snapshot cache backend, overriding
// the default Redis/memory selection.
//
// WithCacheBackend may return an error when input validation, dependency calls, or security checks fail.
// WithCacheBackend does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithCacheBackend(backend cache.Backend) *Builder {
	b.backend = backend
	return b
}

// WithRoles describes the withroles operation and its observable behavior.
//
// WithRoles may return an error when input validation, dependency calls, or security checks fail.
// WithRoles does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRoles(r map[string][]string) *Builder {
	b.roles = r
	return b
}

// WithPrincipals describes the withprincipals operation and its observable behavior.
//
// WithPrincipals may return an error when input validation, dependency calls, or security checks fail.
// WithPrincipals does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithPrincipals(repo PrincipalRepository) *Builder {
	b.principals = repo
	return b
}

// WithBookings describes the withbookings operation and its observable behavior.
//
// WithBookings may return an error when input validation, dependency calls, or security checks fail.
// WithBookings does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithBookings(provider BookingSummaryProvider) *Builder {
	b.bookings = provider
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink may return an error when input validation, dependency calls, or security checks fail.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms may return an error when input validation, dependency calls, or security checks fail.
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.principals == nil {
		return nil, errors.New("principal repository required")
	}

	// -------- SESSION STORE --------
	store := b.store
	switch {
	case store != nil:
	case b.redis != nil:
		store = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix, cfg.Session.Retention)
	case b.postgres != nil:
		store = session.NewPGStore(b.postgres)
	default:
		return nil, errors.New("session store required: provide redis, postgres, or a custom store")
	}

	// -------- PERMISSION POLICY --------
	roles := b.roles
	if len(roles) == 0 {
		roles = permission.DefaultRoles()
	}
	policy, err := permission.NewPolicy(roles)
	if err != nil {
		return nil, err
	}

	// -------- TOKEN MANAGER --------
	tm, err := token.NewManager(token.Config{
		AccessTTL:     cfg.Token.AccessTTL,
		RefreshTTL:    cfg.Token.RefreshTTL,
		SigningMethod: token.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Token.PrivateKey),
		PublicKey:     cloneBytes(cfg.Token.PublicKey),
		Issuer:        cfg.Token.Issuer,
		Audience:      cfg.Token.Audience,
		Leeway:        cfg.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:     cfg,
		tokens:     tm,
		store:      store,
		policy:     policy,
		principals: b.principals,
		bookings:   b.bookings,
		metrics:    NewMetrics(cfg.Metrics),
		now:        time.Now,
	}

	// -------- SNAPSHOT CACHE --------
	backend := b.backend
	if backend == nil {
		if b.redis != nil {
			backend = cache.NewRedisBackend(b.redis, cfg.Session.RedisPrefix)
		} else {
			mem := cache.NewMemoryBackend(cfg.Cache.JanitorInterval)
			engine.memBackend = mem
			backend = mem
		}
	}

	snapshots, err := cache.NewSnapshots(backend, engine.rebuildSnapshot, cache.Config{
		TTL:            cfg.Cache.TTL,
		RefreshLead:    cfg.Cache.RefreshLead,
		RebuildTimeout: cfg.Cache.RebuildTimeout,
	})
	if err != nil {
		if engine.memBackend != nil {
			engine.memBackend.Stop()
		}
		return nil, err
	}
	engine.snapshots = snapshots

	// -------- THROTTLE / AUDIT / BACKGROUND --------
	if cfg.Throttle.EnableRefreshThrottle && b.redis != nil {
		engine.limiter = rate.New(b.redis, cfg.Session.RedisPrefix, rate.Config{
			Enabled:     true,
			MaxAttempts: cfg.Throttle.MaxRefreshAttempts,
			Window:      cfg.Throttle.RefreshWindow,
		})
	}

	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	engine.revoker = newRevocationCoordinator(engine)
	engine.cleanup = newCleanupScheduler(engine, cfg.Cleanup)

	b.built = true

	return engine, nil
}

package authcore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stayloop/authcore/cache"
	"github.com/stayloop/authcore/internal/audit"
	"github.com/stayloop/authcore/internal/rate"
	"github.com/stayloop/authcore/permission"
	"github.com/stayloop/authcore/session"
	"github.com/stayloop/authcore/token"
)

// Engine defines a public type used by authcore APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config     Config
	tokens     *token.Manager
	store      session.Store
	snapshots  *cache.Snapshots
	policy     *permission.Policy
	principals PrincipalRepository
	bookings   BookingSummaryProvider
	limiter    *rate.Limiter
	revoker    *revocationCoordinator
	cleanup    *cleanupScheduler
	audit      *audit.Dispatcher
	metrics    *Metrics

	memBackend *cache.MemoryBackend

	now func() time.Time
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.cleanup != nil {
		e.cleanup.Stop()
	}
	if e.memBackend != nil {
		e.memBackend.Stop()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	if e == nil || e.audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	if event.UserAgent == "" {
		event.UserAgent = userAgentFromContext(ctx)
	}
	e.audit.Emit(ctx, event)
}

// IssueTokenPair describes the issuetokenpair operation and its observable behavior.
//
// IssueTokenPair may return an error when input validation, dependency calls, or security checks fail.
// IssueTokenPair does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The short-lived credential is self-contained; the long-lived one is
// additionally anchored by a session record keyed on its one-way hash.
// Exactly one record exists per issued refresh credential; the raw value
// is never persisted.
func (e *Engine) IssueTokenPair(ctx context.Context, principalID string, meta DeviceMeta) (*TokenPair, error) {
	if e == nil || e.tokens == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if principalID == "" {
		e.metricInc(MetricIssueFailure)
		return nil, ErrUnauthorized
	}

	now := e.now()

	access, err := e.tokens.IssueAccess(principalID, nil)
	if err != nil {
		e.metricInc(MetricIssueFailure)
		return nil, err
	}
	refresh, err := e.tokens.IssueRefresh(principalID)
	if err != nil {
		e.metricInc(MetricIssueFailure)
		return nil, err
	}

	if meta.IP == "" {
		meta.IP = clientIPFromContext(ctx)
	}
	if meta.UserAgent == "" {
		meta.UserAgent = userAgentFromContext(ctx)
	}

	rec := &session.Record{
		ID:          uuid.NewString(),
		PrincipalID: principalID,
		RefreshHash: session.HashCredential(refresh),
		Device:      meta.Device,
		IP:          meta.IP,
		UserAgent:   meta.UserAgent,
		CreatedAt:   now.Unix(),
		LastUsed:    now.Unix(),
		ExpiresAt:   now.Add(e.tokens.RefreshTTL()).Unix(),
		Active:      true,
	}

	if err := e.store.Create(ctx, rec); err != nil {
		e.metricInc(MetricIssueFailure)
		if errors.Is(err, session.ErrStoreUnavailable) {
			e.metricInc(MetricStoreUnavailable)
			e.emitAudit(ctx, AuditEvent{
				EventType:   AuditEventIssue,
				PrincipalID: principalID,
				Success:     false,
				Error:       err.Error(),
			})
			return nil, ErrStoreUnavailable
		}
		return nil, ErrSessionCreationFailed
	}

	e.metricInc(MetricIssueSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, AuditEvent{
		EventType:   AuditEventIssue,
		PrincipalID: principalID,
		SessionID:   rec.ID,
		Success:     true,
	})

	return &TokenPair{
		Access:           access,
		Refresh:          refresh,
		AccessExpiresAt:  now.Add(e.tokens.AccessTTL()),
		RefreshExpiresAt: now.Add(e.tokens.RefreshTTL()),
	}, nil
}

// VerifyAccess describes the verifyaccess operation and its observable behavior.
//
// VerifyAccess may return an error when input validation, dependency calls, or security checks fail.
// VerifyAccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Verification is pure computation with no I/O and deliberately does not
// consult session revocation: a revoked principal keeps a valid access
// credential until its short expiry elapses. That staleness window is
// bounded by the access TTL and is the accepted cost of the stateless
// fast path.
func (e *Engine) VerifyAccess(raw string) (string, error) {
	if e == nil || e.tokens == nil {
		return "", ErrEngineNotReady
	}

	start := time.Now()
	claims, err := e.tokens.VerifyAccess(raw)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricVerifyLatency, time.Since(start))
	}
	if err != nil {
		e.metricInc(MetricVerifyFailure)
		return "", ErrUnauthorized
	}

	e.metricInc(MetricVerifySuccess)
	return claims.PrincipalID, nil
}

// RefreshAccess describes the refreshaccess operation and its observable behavior.
//
// RefreshAccess may return an error when input validation, dependency calls, or security checks fail.
// RefreshAccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The stateless checks run first so forged and expired credentials never
// cost a store read. Only a cryptographically valid credential is looked
// up by hash, and it must still have an active unexpired record. The
// record is left in place: a refresh mints a new access credential but
// never rotates the refresh credential or its session.
func (e *Engine) RefreshAccess(ctx context.Context, rawRefresh string) (string, error) {
	if e == nil || e.tokens == nil || e.store == nil {
		return "", ErrEngineNotReady
	}

	claims, err := e.tokens.VerifyRefresh(rawRefresh)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return "", ErrUnauthorized
	}
	principalID := claims.PrincipalID

	if e.limiter != nil {
		if err := e.limiter.AllowRefresh(ctx, principalID); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.metricInc(MetricRefreshRateLimited)
				e.emitAudit(ctx, AuditEvent{
					EventType:   AuditEventRefresh,
					PrincipalID: principalID,
					Success:     false,
					Error:       "rate limited",
				})
				return "", ErrRefreshRateLimited
			}
			// Throttle backend trouble never blocks a legitimate refresh.
		}
	}

	now := e.now()
	hash := session.HashCredential(rawRefresh)

	rec, err := e.store.FindByHash(ctx, hash)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		if errors.Is(err, session.ErrStoreUnavailable) {
			// Fail closed: an unreachable store denies, never grants.
			e.metricInc(MetricStoreUnavailable)
			return "", ErrStoreUnavailable
		}
		e.emitAudit(ctx, AuditEvent{
			EventType:   AuditEventRefresh,
			PrincipalID: principalID,
			Success:     false,
			Error:       ErrSessionNotFound.Error(),
		})
		return "", ErrUnauthorized
	}

	if rec.PrincipalID != principalID || !rec.Usable(now) {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, AuditEvent{
			EventType:   AuditEventRefresh,
			PrincipalID: principalID,
			SessionID:   rec.ID,
			Success:     false,
			Error:       ErrSessionNotFound.Error(),
		})
		return "", ErrUnauthorized
	}

	// Best effort. A failed touch never fails the refresh.
	_ = e.store.TouchLastUsed(ctx, hash, now)

	access, err := e.tokens.IssueAccess(principalID, nil)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return "", err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, AuditEvent{
		EventType:   AuditEventRefresh,
		PrincipalID: principalID,
		SessionID:   rec.ID,
		Success:     true,
	})
	return access, nil
}

// RevokeSession describes the revokesession operation and its observable behavior.
//
// RevokeSession may return an error when input validation, dependency calls, or security checks fail.
// RevokeSession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Idempotent: revoking an already-revoked, expired or unknown credential
// is a no-op, not an error, so logout handlers can fire and forget. A
// structurally invalid credential is likewise a no-op because it can
// never match a record.
func (e *Engine) RevokeSession(ctx context.Context, rawRefresh string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if rawRefresh == "" {
		return nil
	}

	var principalID string
	if claims, err := e.tokens.VerifyRefresh(rawRefresh); err == nil {
		principalID = claims.PrincipalID
	}

	return e.revoker.RevokeOne(ctx, session.HashCredential(rawRefresh), principalID)
}

// RevokeAllSessions describes the revokeallsessions operation and its observable behavior.
//
// RevokeAllSessions may return an error when input validation, dependency calls, or security checks fail.
// RevokeAllSessions does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Returns the exact number of sessions that were usable at call time.
// Sessions created after the call are unaffected.
func (e *Engine) RevokeAllSessions(ctx context.Context, principalID string) (int, error) {
	if e == nil || e.store == nil {
		return 0, ErrEngineNotReady
	}
	if principalID == "" {
		return 0, ErrUnauthorized
	}
	return e.revoker.RevokeAll(ctx, principalID)
}

// SessionSnapshot describes the sessionsnapshot operation and its observable behavior.
//
// SessionSnapshot may return an error when input validation, dependency calls, or security checks fail.
// SessionSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Backs the aggregated "current session" read. Fresh entries return with
// no I/O; stale entries absorb one rebuild; cache trouble degrades to a
// direct rebuild and is never surfaced.
func (e *Engine) SessionSnapshot(ctx context.Context, principalID string) (*Snapshot, error) {
	if e == nil || e.snapshots == nil {
		return nil, ErrEngineNotReady
	}
	if principalID == "" {
		return nil, ErrUnauthorized
	}

	start := time.Now()
	snap, res, err := e.snapshots.Get(ctx, principalID)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricSnapshotLatency, time.Since(start))
	}

	switch res.Outcome {
	case cache.OutcomeHit:
		e.metricInc(MetricCacheHit)
	case cache.OutcomeStale:
		e.metricInc(MetricCacheStale)
	case cache.OutcomeMiss:
		e.metricInc(MetricCacheMiss)
	}
	if res.BackendFailed {
		e.metricInc(MetricCacheUnavailable)
	}
	if res.Rebuilt && !res.Deduplicated {
		e.metricInc(MetricCacheRebuild)
		if res.RebuildFailed {
			e.metricInc(MetricCacheRebuildFailure)
		}
	}

	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) || errors.Is(err, ErrPrincipalDisabled) {
			if e.config.ProductionMode {
				return nil, ErrUnauthorized
			}
			return nil, err
		}
		return nil, err
	}
	return snap, nil
}

// ActiveSessions describes the activesessions operation and its observable behavior.
//
// ActiveSessions may return an error when input validation, dependency calls, or security checks fail.
// ActiveSessions does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ActiveSessions(ctx context.Context, principalID string) ([]SessionInfo, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if principalID == "" {
		return nil, ErrUnauthorized
	}

	records, err := e.store.ActiveForPrincipal(ctx, principalID, e.now())
	if err != nil {
		if errors.Is(err, session.ErrStoreUnavailable) {
			e.metricInc(MetricStoreUnavailable)
			return nil, ErrStoreUnavailable
		}
		return nil, err
	}

	infos := make([]SessionInfo, 0, len(records))
	for _, rec := range records {
		infos = append(infos, SessionInfo{
			ID:        rec.ID,
			Device:    rec.Device,
			IP:        rec.IP,
			UserAgent: rec.UserAgent,
			CreatedAt: time.Unix(rec.CreatedAt, 0),
			LastUsed:  time.Unix(rec.LastUsed, 0),
			ExpiresAt: time.Unix(rec.ExpiresAt, 0),
		})
	}
	return infos, nil
}

// rebuildSnapshot is the cache loader: principal record and recent
// activity are read in parallel, the permission set is derived from the
// static role table, and the assembled snapshot is handed back for the
// cache to stamp and store.
func (e *Engine) rebuildSnapshot(ctx context.Context, principalID string) (*cache.Snapshot, error) {
	var (
		wg       sync.WaitGroup
		prin     *PrincipalRecord
		prinErr  error
		bookings []cache.Booking
		bookErr  error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		prin, prinErr = e.principals.GetByID(ctx, principalID)
	}()

	if e.bookings != nil && e.config.Cache.RecentBookings > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bookings, bookErr = e.bookings.RecentFor(ctx, principalID, e.config.Cache.RecentBookings)
		}()
	}
	wg.Wait()

	if prinErr != nil {
		return nil, prinErr
	}
	if prin == nil {
		return nil, ErrPrincipalNotFound
	}
	if !prin.Active {
		return nil, ErrPrincipalDisabled
	}
	if bookErr != nil {
		// Activity is decoration, not authorization. Serve without it.
		bookings = nil
	}

	return &cache.Snapshot{
		PrincipalID:    principalID,
		Role:           prin.Role,
		Permissions:    e.policy.ForRole(prin.Role),
		Name:           prin.Name,
		Email:          prin.Email,
		Verified:       prin.Verified,
		RecentBookings: bookings,
	}, nil
}

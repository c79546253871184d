package authcore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/stayloop/authcore/cache"
	"github.com/stayloop/authcore/internal/rate"
	"github.com/stayloop/authcore/session"
)

// revocationCoordinator pairs store revocation with cache eviction.
// The pairing is the whole point: TTL elapse alone would leave a revoked
// principal authorized until the snapshot expired.
type revocationCoordinator struct {
	store     session.Store
	snapshots *cache.Snapshots
	limiter   *rate.Limiter

	engine *Engine
	now    func() time.Time
}

func newRevocationCoordinator(e *Engine) *revocationCoordinator {
	return &revocationCoordinator{
		store:     e.store,
		snapshots: e.snapshots,
		limiter:   e.limiter,
		engine:    e,
		now:       e.now,
	}
}

// RevokeOne deactivates the record for the hash and evicts the
// principal's snapshot. principalID may be empty when the credential did
// not verify; the store revoke is still attempted (a no-op for unknown
// hashes) but no eviction can be targeted.
func (r *revocationCoordinator) RevokeOne(ctx context.Context, hash [32]byte, principalID string) error {
	at := r.now()

	if err := r.store.Revoke(ctx, hash, at); err != nil {
		if errors.Is(err, session.ErrStoreUnavailable) {
			r.engine.metricInc(MetricStoreUnavailable)
			r.engine.emitAudit(ctx, AuditEvent{
				EventType:   AuditEventRevoke,
				PrincipalID: principalID,
				Success:     false,
				Error:       err.Error(),
			})
			return ErrStoreUnavailable
		}
		return err
	}

	r.evict(ctx, principalID)

	r.engine.metricInc(MetricSessionRevoked)
	r.engine.emitAudit(ctx, AuditEvent{
		EventType:   AuditEventRevoke,
		PrincipalID: principalID,
		Success:     true,
	})
	return nil
}

// RevokeAll deactivates every usable record for the principal, evicts
// the snapshot and clears the refresh throttle so the follow-up re-login
// is not penalized.
func (r *revocationCoordinator) RevokeAll(ctx context.Context, principalID string) (int, error) {
	at := r.now()

	count, err := r.store.RevokeAllForPrincipal(ctx, principalID, at)
	if err != nil {
		if errors.Is(err, session.ErrStoreUnavailable) {
			r.engine.metricInc(MetricStoreUnavailable)
			r.engine.emitAudit(ctx, AuditEvent{
				EventType:   AuditEventRevokeAll,
				PrincipalID: principalID,
				Success:     false,
				Error:       err.Error(),
			})
			return 0, ErrStoreUnavailable
		}
		return 0, err
	}

	r.evict(ctx, principalID)
	if r.limiter != nil {
		_ = r.limiter.Reset(ctx, principalID)
	}

	r.engine.metricInc(MetricRevokeAllRuns)
	r.engine.metrics.Add(MetricSessionRevoked, uint64(count))
	r.engine.emitAudit(ctx, AuditEvent{
		EventType:   AuditEventRevokeAll,
		PrincipalID: principalID,
		Success:     true,
		Metadata:    map[string]string{"revoked": strconv.Itoa(count)},
	})
	return count, nil
}

// evict is best effort: a failed eviction is metered but the revocation
// already committed, and the snapshot TTL still bounds the exposure.
func (r *revocationCoordinator) evict(ctx context.Context, principalID string) {
	if r.snapshots == nil || principalID == "" {
		return
	}
	if err := r.snapshots.Delete(ctx, principalID); err != nil {
		r.engine.metricInc(MetricCacheUnavailable)
	}
}

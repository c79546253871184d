package authcore

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/stayloop/authcore/session"
)

// cleanupScheduler runs the periodic sweep that physically deletes
// records past hard expiry and revoked records past the grace window.
// It takes no locks that touch request paths; the sweep is a filtered
// bulk delete, idempotent and safe alongside live traffic.
type cleanupScheduler struct {
	store    session.Store
	interval time.Duration
	grace    time.Duration
	engine   *Engine
	now      func() time.Time

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

func newCleanupScheduler(e *Engine, cfg CleanupConfig) *cleanupScheduler {
	if !cfg.Enabled {
		return nil
	}
	s := &cleanupScheduler{
		store:    e.store,
		interval: cfg.Interval,
		grace:    cfg.RevokedGrace,
		engine:   e,
		now:      e.now,
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *cleanupScheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			_, _ = s.RunOnce(context.Background())
		}
	}
}

// RunOnce performs a single sweep and returns the number of records
// deleted. Exposed so operators can trigger a sweep out of cadence.
func (s *cleanupScheduler) RunOnce(ctx context.Context) (int, error) {
	deleted, err := s.store.PurgeExpired(ctx, s.now(), s.grace)

	s.engine.metricInc(MetricCleanupRuns)
	if err != nil {
		s.engine.metricInc(MetricStoreUnavailable)
		s.engine.emitAudit(ctx, AuditEvent{
			EventType: AuditEventCleanup,
			Success:   false,
			Error:     err.Error(),
		})
		return deleted, err
	}

	s.engine.metrics.Add(MetricCleanupDeleted, uint64(deleted))
	s.engine.emitAudit(ctx, AuditEvent{
		EventType: AuditEventCleanup,
		Success:   true,
		Metadata:  map[string]string{"deleted": strconv.Itoa(deleted)},
	})
	return deleted, nil
}

// RunCleanup describes the runcleanup operation and its observable behavior.
//
// RunCleanup may return an error when input validation, dependency calls, or security checks fail.
// RunCleanup does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RunCleanup(ctx context.Context) (int, error) {
	if e == nil || e.store == nil {
		return 0, ErrEngineNotReady
	}
	if e.cleanup != nil {
		return e.cleanup.RunOnce(ctx)
	}

	deleted, err := e.store.PurgeExpired(ctx, e.now(), e.config.Cleanup.RevokedGrace)
	if err != nil {
		e.metricInc(MetricStoreUnavailable)
		return deleted, err
	}
	e.metrics.Add(MetricCleanupDeleted, uint64(deleted))
	return deleted, nil
}

// Stop clears the timer and waits for an in-flight sweep to finish.
// Safe to call multiple times.
func (s *cleanupScheduler) Stop() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}

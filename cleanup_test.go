package authcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stayloop/authcore/session"
)

func seedRecord(t *testing.T, env *engineTestEnv, raw string, rec session.Record) [32]byte {
	t.Helper()
	hash := session.HashCredential(raw)
	rec.RefreshHash = hash
	if err := env.engine.store.Create(context.Background(), &rec); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	return hash
}

func TestRunCleanupDeletesExpiredAndRevokedPastGrace(t *testing.T) {
	env := newEngineTest(t, func(cfg *Config) {
		cfg.Cleanup.RevokedGrace = time.Hour
	})
	ctx := context.Background()
	now := time.Now()

	expiredHash := seedRecord(t, env, "expired", session.Record{
		ID:          "s-expired",
		PrincipalID: "p-1",
		CreatedAt:   now.Add(-2 * time.Hour).Unix(),
		LastUsed:    now.Add(-2 * time.Hour).Unix(),
		ExpiresAt:   now.Add(-time.Minute).Unix(),
		Active:      true,
	})

	revokedHash := seedRecord(t, env, "revoked-long-ago", session.Record{
		ID:          "s-revoked",
		PrincipalID: "p-1",
		CreatedAt:   now.Add(-3 * time.Hour).Unix(),
		LastUsed:    now.Add(-3 * time.Hour).Unix(),
		ExpiresAt:   now.Add(time.Hour).Unix(),
		Active:      true,
	})
	if err := env.engine.store.Revoke(ctx, revokedHash, now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("revoke seed: %v", err)
	}

	// Revoked inside the grace window: kept for audit.
	recentHash := seedRecord(t, env, "revoked-recently", session.Record{
		ID:          "s-recent",
		PrincipalID: "p-1",
		CreatedAt:   now.Unix(),
		LastUsed:    now.Unix(),
		ExpiresAt:   now.Add(time.Hour).Unix(),
		Active:      true,
	})
	if err := env.engine.store.Revoke(ctx, recentHash, now.Add(-time.Minute)); err != nil {
		t.Fatalf("revoke seed: %v", err)
	}

	live, err := env.engine.IssueTokenPair(ctx, "p-1", DeviceMeta{})
	if err != nil {
		t.Fatalf("issue live: %v", err)
	}

	deleted, err := env.engine.RunCleanup(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("deleted = %d, want 2", deleted)
	}

	if _, err := env.engine.store.FindByHash(ctx, expiredHash); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expired record after sweep: %v, want ErrNotFound", err)
	}
	if _, err := env.engine.store.FindByHash(ctx, revokedHash); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("revoked record after sweep: %v, want ErrNotFound", err)
	}
	if _, err := env.engine.store.FindByHash(ctx, recentHash); err != nil {
		t.Fatalf("in-grace record must survive: %v", err)
	}
	if _, err := env.engine.RefreshAccess(ctx, live.Refresh); err != nil {
		t.Fatalf("live session after sweep: %v", err)
	}
}

func TestRunCleanupIdempotent(t *testing.T) {
	env := newEngineTest(t, nil)
	ctx := context.Background()
	now := time.Now()

	seedRecord(t, env, "expired-once", session.Record{
		ID:          "s-1",
		PrincipalID: "p-1",
		CreatedAt:   now.Add(-time.Hour).Unix(),
		LastUsed:    now.Add(-time.Hour).Unix(),
		ExpiresAt:   now.Add(-time.Minute).Unix(),
		Active:      true,
	})

	if deleted, err := env.engine.RunCleanup(ctx); err != nil || deleted != 1 {
		t.Fatalf("first sweep = %d, %v; want 1, nil", deleted, err)
	}
	if deleted, err := env.engine.RunCleanup(ctx); err != nil || deleted != 0 {
		t.Fatalf("second sweep = %d, %v; want 0, nil", deleted, err)
	}
}

func TestScheduledCleanupRunOnceAndStop(t *testing.T) {
	env := newEngineTest(t, func(cfg *Config) {
		cfg.Cleanup.Enabled = true
		cfg.Cleanup.Interval = time.Hour
		cfg.Cleanup.RevokedGrace = time.Hour
	})
	ctx := context.Background()
	now := time.Now()

	seedRecord(t, env, "expired-scheduled", session.Record{
		ID:          "s-1",
		PrincipalID: "p-1",
		CreatedAt:   now.Add(-time.Hour).Unix(),
		LastUsed:    now.Add(-time.Hour).Unix(),
		ExpiresAt:   now.Add(-time.Minute).Unix(),
		Active:      true,
	})

	deleted, err := env.engine.RunCleanup(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}

	m := env.engine.MetricsSnapshot()
	if m.Counters[MetricCleanupRuns] != 1 {
		t.Fatalf("cleanup runs = %d, want 1", m.Counters[MetricCleanupRuns])
	}
	if m.Counters[MetricCleanupDeleted] != 1 {
		t.Fatalf("cleanup deleted = %d, want 1", m.Counters[MetricCleanupDeleted])
	}

	// Stop is idempotent; Close also stops the scheduler.
	env.engine.cleanup.Stop()
	env.engine.cleanup.Stop()
	env.engine.Close()
}

func TestRunCleanupFailsOnStoreOutage(t *testing.T) {
	env := newEngineTest(t, nil)

	env.mini.Close()

	if _, err := env.engine.RunCleanup(context.Background()); err == nil {
		t.Fatal("expected error with store down")
	}
}

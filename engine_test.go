package authcore

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/stayloop/authcore/cache"
)

type fakePrincipals struct {
	records map[string]*PrincipalRecord
	err     error
	calls   int
}

func (f *fakePrincipals) GetByID(_ context.Context, id string) (*PrincipalRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	rec, ok := f.records[id]
	if !ok {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

type fakeBookings struct {
	bookings []cache.Booking
	err      error
}

func (f *fakeBookings) RecentFor(_ context.Context, _ string, limit int) ([]cache.Booking, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := f.bookings
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

type engineTestEnv struct {
	engine     *Engine
	mini       *miniredis.Miniredis
	principals *fakePrincipals
	bookings   *fakeBookings
}

func testConfig(t *testing.T) Config {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	cfg := defaultConfig()
	cfg.Token.PrivateKey = priv
	cfg.Token.PublicKey = pub
	cfg.Session.Retention = time.Hour
	cfg.Cleanup.Enabled = false
	cfg.Throttle.EnableRefreshThrottle = false
	cfg.Metrics.Enabled = true
	return cfg
}

func newEngineTest(t *testing.T, mutate func(*Config)) *engineTestEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig(t)
	if mutate != nil {
		mutate(&cfg)
	}

	principals := &fakePrincipals{
		records: map[string]*PrincipalRecord{
			"p-1": {ID: "p-1", Role: "host", Name: "Alice", Email: "alice@example.com", Active: true, Verified: true},
			"p-2": {ID: "p-2", Role: "guest", Name: "Bob", Active: true},
			"p-off": {ID: "p-off", Role: "guest", Active: false},
		},
	}
	bookings := &fakeBookings{
		bookings: []cache.Booking{
			{ID: "b-1", ListingID: "l-1", Status: "confirmed"},
			{ID: "b-2", ListingID: "l-2", Status: "pending"},
		},
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithPrincipals(principals).
		WithBookings(bookings).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return &engineTestEnv{engine: engine, mini: mr, principals: principals, bookings: bookings}
}

func TestIssueVerifyRefreshRoundTrip(t *testing.T) {
	env := newEngineTest(t, nil)
	ctx := context.Background()

	pair, err := env.engine.IssueTokenPair(ctx, "p-1", DeviceMeta{Device: "ios"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if pair.Access == "" || pair.Refresh == "" {
		t.Fatal("expected both credentials")
	}
	if pair.Access == pair.Refresh {
		t.Fatal("access and refresh must differ")
	}
	if !pair.AccessExpiresAt.Before(pair.RefreshExpiresAt) {
		t.Fatal("access must expire before refresh")
	}

	pid, err := env.engine.VerifyAccess(pair.Access)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if pid != "p-1" {
		t.Fatalf("principal = %q, want p-1", pid)
	}

	access2, err := env.engine.RefreshAccess(ctx, pair.Refresh)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if pid2, err := env.engine.VerifyAccess(access2); err != nil || pid2 != "p-1" {
		t.Fatalf("refreshed credential verify = %q, %v", pid2, err)
	}

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricIssueSuccess] != 1 {
		t.Fatalf("issue success = %d, want 1", snap.Counters[MetricIssueSuccess])
	}
	if snap.Counters[MetricRefreshSuccess] != 1 {
		t.Fatalf("refresh success = %d, want 1", snap.Counters[MetricRefreshSuccess])
	}
}

func TestVerifyAccessRejectsRefreshAndGarbage(t *testing.T) {
	env := newEngineTest(t, nil)
	ctx := context.Background()

	pair, err := env.engine.IssueTokenPair(ctx, "p-1", DeviceMeta{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := env.engine.VerifyAccess(pair.Refresh); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("refresh credential on access path: %v, want ErrUnauthorized", err)
	}
	if _, err := env.engine.VerifyAccess("not.a.token"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("garbage: %v, want ErrUnauthorized", err)
	}
	if _, err := env.engine.VerifyAccess(""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("empty: %v, want ErrUnauthorized", err)
	}
}

func TestRefreshRejectsAccessCredential(t *testing.T) {
	env := newEngineTest(t, nil)
	ctx := context.Background()

	pair, err := env.engine.IssueTokenPair(ctx, "p-1", DeviceMeta{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := env.engine.RefreshAccess(ctx, pair.Access); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("access credential on refresh path: %v, want ErrUnauthorized", err)
	}
}

func TestRefreshAfterRevokeDenied(t *testing.T) {
	env := newEngineTest(t, nil)
	ctx := context.Background()

	pair, err := env.engine.IssueTokenPair(ctx, "p-1", DeviceMeta{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if err := env.engine.RevokeSession(ctx, pair.Refresh); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := env.engine.RefreshAccess(ctx, pair.Refresh); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("refresh after revoke: %v, want ErrUnauthorized", err)
	}

	// The still-valid access credential keeps working until its short
	// expiry; revocation is only consulted on the stateful path.
	if _, err := env.engine.VerifyAccess(pair.Access); err != nil {
		t.Fatalf("access after revoke: %v", err)
	}
}

func TestRevokeSessionIdempotent(t *testing.T) {
	env := newEngineTest(t, nil)
	ctx := context.Background()

	pair, err := env.engine.IssueTokenPair(ctx, "p-1", DeviceMeta{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := env.engine.RevokeSession(ctx, pair.Refresh); err != nil {
			t.Fatalf("revoke #%d: %v", i+1, err)
		}
	}
	if err := env.engine.RevokeSession(ctx, "never-issued"); err != nil {
		t.Fatalf("revoke unknown: %v", err)
	}
	if err := env.engine.RevokeSession(ctx, ""); err != nil {
		t.Fatalf("revoke empty: %v", err)
	}
}

func TestRevokeAllCountsOnlyUsableSessions(t *testing.T) {
	env := newEngineTest(t, nil)
	ctx := context.Background()

	var pairs []*TokenPair
	for i := 0; i < 3; i++ {
		pair, err := env.engine.IssueTokenPair(ctx, "p-1", DeviceMeta{})
		if err != nil {
			t.Fatalf("issue #%d: %v", i, err)
		}
		pairs = append(pairs, pair)
	}
	// One session for another principal must not be touched.
	other, err := env.engine.IssueTokenPair(ctx, "p-2", DeviceMeta{})
	if err != nil {
		t.Fatalf("issue other: %v", err)
	}
	// Pre-revoking one leaves two usable.
	if err := env.engine.RevokeSession(ctx, pairs[0].Refresh); err != nil {
		t.Fatalf("pre-revoke: %v", err)
	}

	count, err := env.engine.RevokeAllSessions(ctx, "p-1")
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if count != 2 {
		t.Fatalf("revoked = %d, want 2", count)
	}

	for i, pair := range pairs {
		if _, err := env.engine.RefreshAccess(ctx, pair.Refresh); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("refresh #%d after revoke-all: %v, want ErrUnauthorized", i, err)
		}
	}
	if _, err := env.engine.RefreshAccess(ctx, other.Refresh); err != nil {
		t.Fatalf("other principal's refresh: %v", err)
	}

	// Sessions created after the call are unaffected.
	later, err := env.engine.IssueTokenPair(ctx, "p-1", DeviceMeta{})
	if err != nil {
		t.Fatalf("issue later: %v", err)
	}
	if _, err := env.engine.RefreshAccess(ctx, later.Refresh); err != nil {
		t.Fatalf("later refresh: %v", err)
	}

	again, err := env.engine.RevokeAllSessions(ctx, "p-1")
	if err != nil {
		t.Fatalf("second revoke all: %v", err)
	}
	if again != 1 {
		t.Fatalf("second revoke all = %d, want 1", again)
	}
}

func TestRefreshFailsClosedWhenStoreDown(t *testing.T) {
	env := newEngineTest(t, nil)
	ctx := context.Background()

	pair, err := env.engine.IssueTokenPair(ctx, "p-1", DeviceMeta{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	env.mini.Close()

	if _, err := env.engine.RefreshAccess(ctx, pair.Refresh); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("refresh with store down: %v, want ErrStoreUnavailable", err)
	}
	if _, err := env.engine.IssueTokenPair(ctx, "p-1", DeviceMeta{}); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("issue with store down: %v, want ErrStoreUnavailable", err)
	}

	// Stateless verification keeps working without the store.
	if _, err := env.engine.VerifyAccess(pair.Access); err != nil {
		t.Fatalf("verify with store down: %v", err)
	}
}

func TestRefreshThrottle(t *testing.T) {
	env := newEngineTest(t, func(cfg *Config) {
		cfg.Throttle.EnableRefreshThrottle = true
		cfg.Throttle.MaxRefreshAttempts = 3
		cfg.Throttle.RefreshWindow = time.Minute
	})
	ctx := context.Background()

	pair, err := env.engine.IssueTokenPair(ctx, "p-1", DeviceMeta{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := env.engine.RefreshAccess(ctx, pair.Refresh); err != nil {
			t.Fatalf("refresh #%d: %v", i+1, err)
		}
	}
	if _, err := env.engine.RefreshAccess(ctx, pair.Refresh); !errors.Is(err, ErrRefreshRateLimited) {
		t.Fatalf("refresh over budget: %v, want ErrRefreshRateLimited", err)
	}

	// Revoke-all clears the throttle so re-login is not penalized.
	if _, err := env.engine.RevokeAllSessions(ctx, "p-1"); err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	next, err := env.engine.IssueTokenPair(ctx, "p-1", DeviceMeta{})
	if err != nil {
		t.Fatalf("re-issue: %v", err)
	}
	if _, err := env.engine.RefreshAccess(ctx, next.Refresh); err != nil {
		t.Fatalf("refresh after reset: %v", err)
	}
}

func TestSessionSnapshotMissThenHit(t *testing.T) {
	env := newEngineTest(t, nil)
	ctx := context.Background()

	snap, err := env.engine.SessionSnapshot(ctx, "p-1")
	if err != nil {
		t.Fatalf("first snapshot: %v", err)
	}
	if snap.PrincipalID != "p-1" || snap.Role != "host" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if len(snap.Permissions) == 0 {
		t.Fatal("expected role permissions")
	}
	if len(snap.RecentBookings) != 2 {
		t.Fatalf("bookings = %d, want 2", len(snap.RecentBookings))
	}
	if env.principals.calls != 1 {
		t.Fatalf("principal reads = %d, want 1", env.principals.calls)
	}

	if _, err := env.engine.SessionSnapshot(ctx, "p-1"); err != nil {
		t.Fatalf("second snapshot: %v", err)
	}
	if env.principals.calls != 1 {
		t.Fatalf("principal reads after hit = %d, want 1", env.principals.calls)
	}

	m := env.engine.MetricsSnapshot()
	if m.Counters[MetricCacheMiss] != 1 {
		t.Fatalf("cache miss = %d, want 1", m.Counters[MetricCacheMiss])
	}
	if m.Counters[MetricCacheHit] != 1 {
		t.Fatalf("cache hit = %d, want 1", m.Counters[MetricCacheHit])
	}
}

func TestSessionSnapshotDeniesUnknownAndDisabled(t *testing.T) {
	env := newEngineTest(t, nil)
	ctx := context.Background()

	if _, err := env.engine.SessionSnapshot(ctx, "nobody"); !errors.Is(err, ErrPrincipalNotFound) {
		t.Fatalf("unknown principal: %v, want ErrPrincipalNotFound", err)
	}
	if _, err := env.engine.SessionSnapshot(ctx, "p-off"); !errors.Is(err, ErrPrincipalDisabled) {
		t.Fatalf("disabled principal: %v, want ErrPrincipalDisabled", err)
	}
}

func TestSessionSnapshotProductionModeCollapsesReasons(t *testing.T) {
	env := newEngineTest(t, func(cfg *Config) {
		cfg.ProductionMode = true
	})
	ctx := context.Background()

	if _, err := env.engine.SessionSnapshot(ctx, "nobody"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unknown principal: %v, want ErrUnauthorized", err)
	}
	if _, err := env.engine.SessionSnapshot(ctx, "p-off"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("disabled principal: %v, want ErrUnauthorized", err)
	}
}

func TestSessionSnapshotSurvivesBookingFailure(t *testing.T) {
	env := newEngineTest(t, nil)
	env.bookings.err = errors.New("bookings db down")
	ctx := context.Background()

	snap, err := env.engine.SessionSnapshot(ctx, "p-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.RecentBookings) != 0 {
		t.Fatalf("expected no bookings, got %d", len(snap.RecentBookings))
	}
	if snap.Role != "host" {
		t.Fatalf("role = %q", snap.Role)
	}
}

func TestSnapshotEvictedOnRevokeAll(t *testing.T) {
	env := newEngineTest(t, nil)
	ctx := context.Background()

	if _, err := env.engine.SessionSnapshot(ctx, "p-1"); err != nil {
		t.Fatalf("warm snapshot: %v", err)
	}
	if _, err := env.engine.RevokeAllSessions(ctx, "p-1"); err != nil {
		t.Fatalf("revoke all: %v", err)
	}

	before := env.principals.calls
	if _, err := env.engine.SessionSnapshot(ctx, "p-1"); err != nil {
		t.Fatalf("snapshot after eviction: %v", err)
	}
	if env.principals.calls != before+1 {
		t.Fatal("expected a rebuild after eviction")
	}
}

func TestActiveSessionsListing(t *testing.T) {
	env := newEngineTest(t, nil)
	ctx := context.Background()

	first, err := env.engine.IssueTokenPair(ctx, "p-1", DeviceMeta{Device: "ios", IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := env.engine.IssueTokenPair(ctx, "p-1", DeviceMeta{Device: "web"}); err != nil {
		t.Fatalf("issue: %v", err)
	}

	sessions, err := env.engine.ActiveSessions(ctx, "p-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sessions))
	}

	if err := env.engine.RevokeSession(ctx, first.Refresh); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	sessions, err = env.engine.ActiveSessions(ctx, "p-1")
	if err != nil {
		t.Fatalf("list after revoke: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("sessions after revoke = %d, want 1", len(sessions))
	}
	if sessions[0].Device != "web" {
		t.Fatalf("surviving device = %q, want web", sessions[0].Device)
	}
}

func TestAuditEventsEmitted(t *testing.T) {
	sink := NewChannelSink(16)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig(t)
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 16

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithPrincipals(&fakePrincipals{records: map[string]*PrincipalRecord{
			"p-1": {ID: "p-1", Role: "guest", Active: true},
		}}).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	ctx := WithClientIP(context.Background(), "203.0.113.9")
	pair, err := engine.IssueTokenPair(ctx, "p-1", DeviceMeta{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := engine.RevokeSession(ctx, pair.Refresh); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	engine.Close() // flush the dispatcher

	var types []string
	for event := range sink.Events() {
		types = append(types, event.EventType)
		if event.EventType == AuditEventIssue {
			if !event.Success || event.PrincipalID != "p-1" || event.IP != "203.0.113.9" {
				t.Fatalf("issue event = %+v", event)
			}
		}
		if len(types) == 2 {
			break
		}
	}
	if len(types) != 2 || types[0] != AuditEventIssue || types[1] != AuditEventRevoke {
		t.Fatalf("event types = %v", types)
	}
}

func TestIssueRequiresPrincipal(t *testing.T) {
	env := newEngineTest(t, nil)

	if _, err := env.engine.IssueTokenPair(context.Background(), "", DeviceMeta{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("empty principal: %v, want ErrUnauthorized", err)
	}
}

func TestBuilderRejectsMisuse(t *testing.T) {
	if _, err := New().Build(); err == nil {
		t.Fatal("expected error without keys")
	}

	cfg := testConfig(t)
	if _, err := New().WithConfig(cfg).WithPrincipals(&fakePrincipals{}).Build(); err == nil {
		t.Fatal("expected error without a store")
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	if _, err := New().WithConfig(cfg).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected error without principals")
	}

	b := New().WithConfig(cfg).WithRedis(rdb).WithPrincipals(&fakePrincipals{})
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)
	if _, err := b.Build(); err == nil {
		t.Fatal("expected error on builder reuse")
	}
}

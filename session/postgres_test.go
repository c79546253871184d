package session

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newPGStoreTest(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return NewPGStore(db), mock
}

func recordRows(rec *Record) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "principal_id", "refresh_hash", "device", "ip_address", "user_agent",
		"created_at", "last_used", "expires_at", "revoked_at", "active",
	}).AddRow(
		rec.ID, rec.PrincipalID, rec.RefreshHash[:], rec.Device, rec.IP, rec.UserAgent,
		rec.CreatedAt, rec.LastUsed, rec.ExpiresAt, rec.RevokedAt, rec.Active,
	)
}

func TestPGCreateAndFind(t *testing.T) {
	store, mock := newPGStoreTest(t)
	ctx := context.Background()
	rec := testRecord(time.Now())

	mock.ExpectExec(regexp.QuoteMeta("insert into session_records")).
		WithArgs(
			rec.ID, rec.PrincipalID, rec.RefreshHash[:], rec.Device, rec.IP, rec.UserAgent,
			rec.CreatedAt, rec.LastUsed, rec.ExpiresAt, rec.RevokedAt, rec.Active,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	mock.ExpectQuery(regexp.QuoteMeta("where refresh_hash = $1")).
		WithArgs(rec.RefreshHash[:]).
		WillReturnRows(recordRows(rec))
	got, err := store.FindByHash(ctx, rec.RefreshHash)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if *got != *rec {
		t.Fatalf("record mismatch:\n got %+v\nwant %+v", got, rec)
	}
}

func TestPGFindNotFound(t *testing.T) {
	store, mock := newPGStoreTest(t)

	mock.ExpectQuery(regexp.QuoteMeta("where refresh_hash = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := store.FindByHash(context.Background(), [32]byte{1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRevokeTargetsActiveOnly(t *testing.T) {
	store, mock := newPGStoreTest(t)
	at := time.Now()
	hash := [32]byte{7}

	mock.ExpectExec(regexp.QuoteMeta("set active = false, revoked_at = $2")).
		WithArgs(hash[:], at.Unix()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.Revoke(context.Background(), hash, at); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	// Already revoked: statement matches zero rows, still no error.
	mock.ExpectExec(regexp.QuoteMeta("set active = false, revoked_at = $2")).
		WithArgs(hash[:], at.Unix()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.Revoke(context.Background(), hash, at); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
}

func TestPGRevokeAllReturnsAffectedCount(t *testing.T) {
	store, mock := newPGStoreTest(t)
	at := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("where principal_id = $1 and active and expires_at > $3")).
		WithArgs("p-1", at.Unix(), at.Unix()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := store.RevokeAllForPrincipal(context.Background(), "p-1", at)
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
}

func TestPGActiveForPrincipal(t *testing.T) {
	store, mock := newPGStoreTest(t)
	now := time.Now()
	rec := testRecord(now)

	mock.ExpectQuery(regexp.QuoteMeta("where principal_id = $1 and active and expires_at > $2")).
		WithArgs(rec.PrincipalID, now.Unix()).
		WillReturnRows(recordRows(rec))

	records, err := store.ActiveForPrincipal(context.Background(), rec.PrincipalID, now)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(records) != 1 || *records[0] != *rec {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestPGPurgeExpired(t *testing.T) {
	store, mock := newPGStoreTest(t)
	now := time.Now()
	grace := 30 * 24 * time.Hour

	mock.ExpectExec(regexp.QuoteMeta("delete from session_records")).
		WithArgs(now.Unix(), now.Add(-grace).Unix()).
		WillReturnResult(sqlmock.NewResult(0, 12))

	deleted, err := store.PurgeExpired(context.Background(), now, grace)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if deleted != 12 {
		t.Fatalf("deleted = %d, want 12", deleted)
	}
}

func TestPGStoreUnavailableWrapping(t *testing.T) {
	store, mock := newPGStoreTest(t)
	boom := errors.New("connection refused")

	mock.ExpectExec(regexp.QuoteMeta("insert into session_records")).WillReturnError(boom)
	if err := store.Create(context.Background(), testRecord(time.Now())); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}

	mock.ExpectQuery(regexp.QuoteMeta("where refresh_hash = $1")).WillReturnError(boom)
	if _, err := store.FindByHash(context.Background(), [32]byte{1}); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

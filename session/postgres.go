package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PGStore implements [Store] on PostgreSQL. Every mutation is a single
// filtered statement, so no transactions are needed; expiry is enforced by
// the cleanup sweep rather than by the database.
//
// Expected schema:
//
//	create table session_records (
//	    id            text primary key,
//	    principal_id  text not null,
//	    refresh_hash  bytea not null unique,
//	    device        text not null default '',
//	    ip_address    text not null default '',
//	    user_agent    text not null default '',
//	    created_at    bigint not null,
//	    last_used     bigint not null,
//	    expires_at    bigint not null,
//	    revoked_at    bigint not null default 0,
//	    active        boolean not null default true
//	);
//	create index on session_records (principal_id, active);
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

// NewPGStore wraps an existing database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// OpenPostgres opens a pgx-driven handle and verifies connectivity.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

const recordColumns = `id, principal_id, refresh_hash, device, ip_address, user_agent, created_at, last_used, expires_at, revoked_at, active`

func (s *PGStore) Create(ctx context.Context, rec *Record) error {
	_, err := s.db.ExecContext(ctx,
		`insert into session_records (`+recordColumns+`)
		 values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.PrincipalID, rec.RefreshHash[:], rec.Device, rec.IP, rec.UserAgent,
		rec.CreatedAt, rec.LastUsed, rec.ExpiresAt, rec.RevokedAt, rec.Active,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PGStore) FindByHash(ctx context.Context, hash [32]byte) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+recordColumns+` from session_records where refresh_hash = $1`,
		hash[:],
	)
	return scanRecord(row)
}

func (s *PGStore) TouchLastUsed(ctx context.Context, hash [32]byte, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update session_records set last_used = $2 where refresh_hash = $1 and active`,
		hash[:], at.Unix(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PGStore) Revoke(ctx context.Context, hash [32]byte, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update session_records set active = false, revoked_at = $2
		 where refresh_hash = $1 and active`,
		hash[:], at.Unix(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PGStore) RevokeAllForPrincipal(ctx context.Context, principalID string, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`update session_records set active = false, revoked_at = $2
		 where principal_id = $1 and active and expires_at > $3`,
		principalID, at.Unix(), at.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return int(affected), nil
}

func (s *PGStore) ActiveForPrincipal(ctx context.Context, principalID string, now time.Time) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+recordColumns+` from session_records
		 where principal_id = $1 and active and expires_at > $2
		 order by created_at asc`,
		principalID, now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if records == nil {
		records = []*Record{}
	}
	return records, nil
}

func (s *PGStore) PurgeExpired(ctx context.Context, now time.Time, revokedGrace time.Duration) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from session_records
		 where expires_at < $1
		    or (not active and revoked_at > 0 and revoked_at < $2)`,
		now.Unix(), now.Add(-revokedGrace).Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return int(affected), nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec  Record
		hash []byte
	)
	err := row.Scan(
		&rec.ID, &rec.PrincipalID, &hash, &rec.Device, &rec.IP, &rec.UserAgent,
		&rec.CreatedAt, &rec.LastUsed, &rec.ExpiresAt, &rec.RevokedAt, &rec.Active,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(hash) != len(rec.RefreshHash) {
		return nil, fmt.Errorf("%w: malformed refresh hash", ErrStoreUnavailable)
	}
	copy(rec.RefreshHash[:], hash)
	return &rec, nil
}

// Package pgstore persists refresh records in PostgreSQL through pgx.
//
// The table layout matches sqlstore: a UNIQUE active_owner column holds the
// owner id of the single-active record and is cleared on revoke.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/jwtauth/refresh"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{`
	CREATE TABLE IF NOT EXISTS refresh_tokens (
		identifier   TEXT PRIMARY KEY,
		owner_id     TEXT NOT NULL,
		status       SMALLINT NOT NULL,
		created_at   BIGINT NOT NULL,
		expires_at   BIGINT NOT NULL DEFAULT 0,
		active_owner TEXT UNIQUE
	)`, `
	CREATE INDEX IF NOT EXISTS refresh_tokens_owner_idx ON refresh_tokens (owner_id)`,
}

// Store implements refresh.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool for dsn and prepares the schema.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	s, err := New(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New prepares the schema on an existing pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("pgstore: init schema: %w", err)
		}
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// Create implements refresh.Store.
func (s *Store) Create(ctx context.Context, r refresh.Record) error {
	const q = `
		INSERT INTO refresh_tokens (identifier, owner_id, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING`
	tag, err := s.pool.Exec(ctx, q, r.Identifier, r.OwnerID, int16(refresh.StatusActive), millis(r.CreatedAt), millis(r.ExpiresAt))
	if err != nil {
		return unavailable(err)
	}
	if tag.RowsAffected() == 0 {
		return refresh.ErrExists
	}
	return nil
}

// EnsureActive implements refresh.Store.
func (s *Store) EnsureActive(ctx context.Context, candidate refresh.Record, now time.Time) (refresh.Record, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return refresh.Record{}, false, unavailable(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	{
		const q = `
			UPDATE refresh_tokens
			   SET status = $1, active_owner = NULL
			 WHERE active_owner = $2
			   AND expires_at <> 0
			   AND expires_at <= $3`
		if _, err := tx.Exec(ctx, q, int16(refresh.StatusRevoked), candidate.OwnerID, now.UnixMilli()); err != nil {
			return refresh.Record{}, false, unavailable(err)
		}
	}

	{
		// A concurrent insert for the same owner blocks here on the unique
		// index until the other transaction settles.
		const q = `
			INSERT INTO refresh_tokens (identifier, owner_id, status, created_at, expires_at, active_owner)
			VALUES ($1, $2, $3, $4, $5, $2)
			ON CONFLICT DO NOTHING`
		if _, err := tx.Exec(ctx, q, candidate.Identifier, candidate.OwnerID, int16(refresh.StatusActive),
			millis(candidate.CreatedAt), millis(candidate.ExpiresAt)); err != nil {
			return refresh.Record{}, false, unavailable(err)
		}
	}

	const q = `
		SELECT identifier, owner_id, status, created_at, expires_at
		  FROM refresh_tokens
		 WHERE active_owner = $1`
	rec, err := scanRecord(tx.QueryRow(ctx, q, candidate.OwnerID))
	if errors.Is(err, refresh.ErrNotFound) {
		return refresh.Record{}, false, refresh.ErrExists
	}
	if err != nil {
		return refresh.Record{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return refresh.Record{}, false, unavailable(err)
	}
	return rec, rec.Identifier == candidate.Identifier, nil
}

// Lookup implements refresh.Store.
func (s *Store) Lookup(ctx context.Context, id string) (refresh.Record, error) {
	const q = `
		SELECT identifier, owner_id, status, created_at, expires_at
		  FROM refresh_tokens
		 WHERE identifier = $1`
	return scanRecord(s.pool.QueryRow(ctx, q, id))
}

// Revoke implements refresh.Store.
func (s *Store) Revoke(ctx context.Context, id string) (bool, error) {
	const q = `
		UPDATE refresh_tokens
		   SET status = $1, active_owner = NULL
		 WHERE identifier = $2
		   AND status = $3`
	tag, err := s.pool.Exec(ctx, q, int16(refresh.StatusRevoked), id, int16(refresh.StatusActive))
	if err != nil {
		return false, unavailable(err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := s.Lookup(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func scanRecord(row pgx.Row) (refresh.Record, error) {
	var (
		r                refresh.Record
		status           int16
		created, expires int64
	)
	if err := row.Scan(&r.Identifier, &r.OwnerID, &status, &created, &expires); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return refresh.Record{}, refresh.ErrNotFound
		}
		return refresh.Record{}, unavailable(err)
	}
	r.Status = refresh.Status(status)
	r.CreatedAt = fromMillis(created)
	r.ExpiresAt = fromMillis(expires)
	return r, nil
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func unavailable(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
}

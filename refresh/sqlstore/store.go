// Package sqlstore persists refresh records through database/sql, using the
// pure-Go SQLite driver from modernc.org/sqlite.
//
// Single-active atomicity comes from the UNIQUE active_owner column: only a
// record created by EnsureActive fills it, and revoking clears it.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/jwtauth/refresh"
	_ "modernc.org/sqlite"
)

var schema = []string{`
	CREATE TABLE IF NOT EXISTS refresh_tokens (
		identifier   TEXT PRIMARY KEY,
		owner_id     TEXT NOT NULL,
		status       INTEGER NOT NULL,
		created_at   INTEGER NOT NULL,
		expires_at   INTEGER NOT NULL DEFAULT 0,
		active_owner TEXT UNIQUE
	);`, `
	CREATE INDEX IF NOT EXISTS refresh_tokens_owner_idx ON refresh_tokens (owner_id);`,
}

// Store implements refresh.Store on a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at dsn and prepares the
// schema. ":memory:" gives a private in-memory database.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open: %w", err)
	}
	// SQLite allows a single writer; one connection also keeps an in-memory
	// database alive for the life of the pool.
	db.SetMaxOpenConns(1)

	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New prepares the schema on an already opened database.
func New(db *sql.DB) (*Store, error) {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("sqlstore: init schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create implements refresh.Store.
func (s *Store) Create(ctx context.Context, r refresh.Record) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (identifier, owner_id, status, created_at, expires_at)
		VALUES (?1, ?2, ?3, ?4, ?5)
		ON CONFLICT DO NOTHING;`,
		r.Identifier, r.OwnerID, int(refresh.StatusActive), millis(r.CreatedAt), millis(r.ExpiresAt),
	)
	if err != nil {
		return unavailable(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return refresh.ErrExists
	}
	return nil
}

// EnsureActive implements refresh.Store.
func (s *Store) EnsureActive(ctx context.Context, candidate refresh.Record, now time.Time) (refresh.Record, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return refresh.Record{}, false, unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE refresh_tokens
		   SET status = ?1, active_owner = NULL
		 WHERE active_owner = ?2
		   AND expires_at <> 0
		   AND expires_at <= ?3;`,
		int(refresh.StatusRevoked), candidate.OwnerID, now.UnixMilli(),
	); err != nil {
		return refresh.Record{}, false, unavailable(err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO refresh_tokens (identifier, owner_id, status, created_at, expires_at, active_owner)
		VALUES (?1, ?2, ?3, ?4, ?5, ?2)
		ON CONFLICT DO NOTHING;`,
		candidate.Identifier, candidate.OwnerID, int(refresh.StatusActive),
		millis(candidate.CreatedAt), millis(candidate.ExpiresAt),
	); err != nil {
		return refresh.Record{}, false, unavailable(err)
	}

	rec, err := scanRecord(tx.QueryRowContext(ctx, `
		SELECT identifier, owner_id, status, created_at, expires_at
		  FROM refresh_tokens
		 WHERE active_owner = ?1;`,
		candidate.OwnerID,
	))
	if errors.Is(err, refresh.ErrNotFound) {
		// the insert lost on the identifier, not on the owner slot
		return refresh.Record{}, false, refresh.ErrExists
	}
	if err != nil {
		return refresh.Record{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return refresh.Record{}, false, unavailable(err)
	}
	return rec, rec.Identifier == candidate.Identifier, nil
}

// Lookup implements refresh.Store.
func (s *Store) Lookup(ctx context.Context, id string) (refresh.Record, error) {
	return scanRecord(s.db.QueryRowContext(ctx, `
		SELECT identifier, owner_id, status, created_at, expires_at
		  FROM refresh_tokens
		 WHERE identifier = ?1;`,
		id,
	))
}

// Revoke implements refresh.Store.
func (s *Store) Revoke(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		   SET status = ?1, active_owner = NULL
		 WHERE identifier = ?2
		   AND status = ?3;`,
		int(refresh.StatusRevoked), id, int(refresh.StatusActive),
	)
	if err != nil {
		return false, unavailable(err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}
	if _, err := s.Lookup(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func scanRecord(row *sql.Row) (refresh.Record, error) {
	var (
		r                refresh.Record
		status           int
		created, expires int64
	)
	if err := row.Scan(&r.Identifier, &r.OwnerID, &status, &created, &expires); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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

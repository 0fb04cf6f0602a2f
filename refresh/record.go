package refresh

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"
)

// IdentifierBytes is the entropy of a refresh identifier before encoding.
const IdentifierBytes = 64

var (
	// ErrNotFound is returned when no record matches an identifier.
	ErrNotFound = errors.New("refresh: record not found")
	// ErrExists is returned by Create when the identifier is taken.
	ErrExists = errors.New("refresh: identifier already exists")
	// ErrStoreUnavailable wraps backend failures.
	ErrStoreUnavailable = errors.New("refresh: store unavailable")
)

// Status is the lifecycle state of a refresh record. Records only ever move
// from active to revoked.
type Status uint8

const (
	StatusActive Status = iota + 1
	StatusRevoked
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, bool) {
	switch s {
	case "active":
		return StatusActive, true
	case "revoked":
		return StatusRevoked, true
	}
	return 0, false
}

// Record is one persisted refresh token.
type Record struct {
	Identifier string
	OwnerID    string
	Status     Status
	CreatedAt  time.Time
	// ExpiresAt is zero for records that never expire.
	ExpiresAt time.Time
}

// Expired reports whether r has an expiry at or before now.
func (r Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Usable reports whether r is active and unexpired at now.
func (r Record) Usable(now time.Time) bool {
	return r.Status == StatusActive && !r.Expired(now)
}

// Store persists refresh records.
//
// Implementations must make EnsureActive and Revoke atomic per owner and per
// record respectively: two concurrent EnsureActive calls for one owner return
// the same record, and exactly one of two concurrent Revoke calls for one
// identifier reports true.
type Store interface {
	// Create persists r as a new record. r.Status is ignored; the record
	// starts active.
	Create(ctx context.Context, r Record) error
	// EnsureActive returns the usable single-active record of
	// candidate.OwnerID, or persists candidate as that record when there is
	// none. An expired previous record is revoked first. created reports
	// whether candidate was stored.
	EnsureActive(ctx context.Context, candidate Record, now time.Time) (rec Record, created bool, err error)
	// Lookup returns the record with identifier id or ErrNotFound.
	Lookup(ctx context.Context, id string) (Record, error)
	// Revoke flips an active record to revoked. It returns false when the
	// record was already revoked and ErrNotFound when it does not exist.
	Revoke(ctx context.Context, id string) (bool, error)
}

// NewIdentifier returns IdentifierBytes random bytes, base64url encoded
// without padding.
func NewIdentifier() (string, error) {
	var raw [IdentifierBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

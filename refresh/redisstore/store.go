// Package redisstore persists refresh records in Redis.
//
// Each record is a hash at "<prefix>:rt:<identifier>". The single-active
// owner index is a string at "<prefix>:rto:<owner>" holding the identifier of
// the owner's current record. Records with an expiry carry a matching key
// TTL, so Redis reclaims them once expired.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/jwtauth/refresh"
	"github.com/redis/go-redis/v9"
)

const (
	statusCreated  int64 = 1
	statusExisting int64 = 0
	statusConflict int64 = 2

	revokeMissing int64 = 0
	revokeNoop    int64 = 1
	revokeDone    int64 = 2
)

const createScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "owner", ARGV[1], "status", "active", "created", ARGV[2], "expires", ARGV[3])
local expires = tonumber(ARGV[3])
if expires > 0 then
  redis.call("PEXPIREAT", KEYS[1], expires)
end
return 1
`

var createLua = redis.NewScript(createScript)

const ensureActiveScript = `
local owner_key = KEYS[1]
local record_prefix = ARGV[1]
local candidate = ARGV[2]
local owner = ARGV[3]
local created = ARGV[4]
local expires = tonumber(ARGV[5])
local now = tonumber(ARGV[6])

local current = redis.call("GET", owner_key)
if current then
  local current_key = record_prefix .. current
  local fields = redis.call("HMGET", current_key, "status", "expires")
  if fields[1] == "active" then
    local current_expires = tonumber(fields[2] or "0")
    if current_expires == 0 or current_expires > now then
      return {0, current}
    end
    redis.call("HSET", current_key, "status", "revoked")
  end
end

local candidate_key = record_prefix .. candidate
if redis.call("EXISTS", candidate_key) == 1 then
  return {2, candidate}
end

redis.call("HSET", candidate_key, "owner", owner, "status", "active", "created", created, "expires", ARGV[5])
redis.call("SET", owner_key, candidate)
if expires > 0 then
  redis.call("PEXPIREAT", candidate_key, expires)
  redis.call("PEXPIREAT", owner_key, expires)
else
  redis.call("PERSIST", owner_key)
end
return {1, candidate}
`

var ensureActiveLua = redis.NewScript(ensureActiveScript)

const revokeScript = `
local status = redis.call("HGET", KEYS[1], "status")
if not status then
  return 0
end
if status ~= "active" then
  return 1
end
redis.call("HSET", KEYS[1], "status", "revoked")
local owner = redis.call("HGET", KEYS[1], "owner")
if owner then
  local owner_key = ARGV[1] .. owner
  if redis.call("GET", owner_key) == ARGV[2] then
    redis.call("DEL", owner_key)
  end
end
return 2
`

var revokeLua = redis.NewScript(revokeScript)

// Store implements refresh.Store on a go-redis client.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// New returns a store using keys under prefix. An empty prefix means "jwtauth".
func New(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "jwtauth"
	}
	return &Store{redis: rdb, prefix: prefix}
}

func (s *Store) recordPrefix() string { return s.prefix + ":rt:" }
func (s *Store) ownerPrefix() string  { return s.prefix + ":rto:" }

func (s *Store) recordKey(id string) string   { return s.recordPrefix() + id }
func (s *Store) ownerKey(owner string) string { return s.ownerPrefix() + owner }

// Create implements refresh.Store.
func (s *Store) Create(ctx context.Context, r refresh.Record) error {
	res, err := createLua.Run(ctx, s.redis,
		[]string{s.recordKey(r.Identifier)},
		r.OwnerID, millis(r.CreatedAt), millis(r.ExpiresAt),
	).Int64()
	if err != nil {
		return unavailable(err)
	}
	if res == 0 {
		return refresh.ErrExists
	}
	return nil
}

// EnsureActive implements refresh.Store.
func (s *Store) EnsureActive(ctx context.Context, candidate refresh.Record, now time.Time) (refresh.Record, bool, error) {
	res, err := ensureActiveLua.Run(ctx, s.redis,
		[]string{s.ownerKey(candidate.OwnerID)},
		s.recordPrefix(),
		candidate.Identifier,
		candidate.OwnerID,
		millis(candidate.CreatedAt),
		millis(candidate.ExpiresAt),
		now.UnixMilli(),
	).Slice()
	if err != nil {
		return refresh.Record{}, false, unavailable(err)
	}
	if len(res) != 2 {
		return refresh.Record{}, false, fmt.Errorf("%w: unexpected script reply", refresh.ErrStoreUnavailable)
	}
	status, _ := res[0].(int64)
	id, _ := res[1].(string)

	switch status {
	case statusCreated:
		candidate.Status = refresh.StatusActive
		return candidate, true, nil
	case statusConflict:
		return refresh.Record{}, false, refresh.ErrExists
	default:
		rec, err := s.Lookup(ctx, id)
		if err != nil {
			return refresh.Record{}, false, err
		}
		return rec, false, nil
	}
}

// Lookup implements refresh.Store.
func (s *Store) Lookup(ctx context.Context, id string) (refresh.Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.recordKey(id)).Result()
	if err != nil {
		return refresh.Record{}, unavailable(err)
	}
	if len(fields) == 0 {
		return refresh.Record{}, refresh.ErrNotFound
	}
	return decodeRecord(id, fields)
}

// Revoke implements refresh.Store.
func (s *Store) Revoke(ctx context.Context, id string) (bool, error) {
	res, err := revokeLua.Run(ctx, s.redis,
		[]string{s.recordKey(id)},
		s.ownerPrefix(), id,
	).Int64()
	if err != nil {
		return false, unavailable(err)
	}
	switch res {
	case revokeMissing:
		return false, refresh.ErrNotFound
	case revokeDone:
		return true, nil
	default:
		return false, nil
	}
}

func decodeRecord(id string, fields map[string]string) (refresh.Record, error) {
	status, ok := refresh.ParseStatus(fields["status"])
	if !ok {
		return refresh.Record{}, fmt.Errorf("%w: corrupt record status %q", refresh.ErrStoreUnavailable, fields["status"])
	}
	created, err := strconv.ParseInt(fields["created"], 10, 64)
	if err != nil {
		return refresh.Record{}, fmt.Errorf("%w: corrupt record: %v", refresh.ErrStoreUnavailable, err)
	}
	expires, err := strconv.ParseInt(fields["expires"], 10, 64)
	if err != nil {
		return refresh.Record{}, fmt.Errorf("%w: corrupt record: %v", refresh.ErrStoreUnavailable, err)
	}
	return refresh.Record{
		Identifier: id,
		OwnerID:    fields["owner"],
		Status:     status,
		CreatedAt:  fromMillis(created),
		ExpiresAt:  fromMillis(expires),
	}, nil
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

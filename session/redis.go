package session

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Mutable record fields are patched in place by Lua scripts so revocation
// and last-used updates stay single atomic writes. Offsets here are the
// 1-based Lua view of the layout documented in encoder.go.
const revokeRecordScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
if #data < 34 then
  return -1
end
if string.byte(data, 2) == 0 then
  return 0
end
local updated = string.sub(data, 1, 1) .. string.char(0) .. ARGV[1] .. string.sub(data, 11)
local ttl = redis.call("PTTL", KEYS[1])
if ttl > 0 then
  redis.call("SET", KEYS[1], updated, "PX", ttl)
else
  redis.call("SET", KEYS[1], updated)
end
return 1
`

var revokeRecordLua = redis.NewScript(revokeRecordScript)

const touchRecordScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
if #data < 34 then
  return -1
end
if string.byte(data, 2) == 0 then
  return 0
end
local updated = string.sub(data, 1, 10) .. ARGV[1] .. string.sub(data, 19)
local ttl = redis.call("PTTL", KEYS[1])
if ttl > 0 then
  redis.call("SET", KEYS[1], updated, "PX", ttl)
else
  redis.call("SET", KEYS[1], updated)
end
return 1
`

var touchRecordLua = redis.NewScript(touchRecordScript)

const revokeAllScript = `
local function read_be64(s, i)
  local b1 = string.byte(s, i)
  local b2 = string.byte(s, i + 1)
  local b3 = string.byte(s, i + 2)
  local b4 = string.byte(s, i + 3)
  local b5 = string.byte(s, i + 4)
  local b6 = string.byte(s, i + 5)
  local b7 = string.byte(s, i + 6)
  local b8 = string.byte(s, i + 7)
  if not b8 then
    return nil
  end
  return ((((((((b1 * 256) + b2) * 256 + b3) * 256 + b4) * 256 + b5) * 256 + b6) * 256 + b7) * 256 + b8)
end

local members = redis.call("SMEMBERS", KEYS[1])
local now = tonumber(ARGV[3])
local count = 0

for _, m in ipairs(members) do
  local key = ARGV[1] .. m
  local data = redis.call("GET", key)
  if data and #data >= 34 and string.byte(data, 2) == 1 then
    local expires = read_be64(data, 27)
    if expires and expires > now then
      count = count + 1
    end
    local updated = string.sub(data, 1, 1) .. string.char(0) .. ARGV[2] .. string.sub(data, 11)
    local ttl = redis.call("PTTL", key)
    if ttl > 0 then
      redis.call("SET", key, updated, "PX", ttl)
    else
      redis.call("SET", key, updated)
    end
  end
end

return count
`

var revokeAllLua = redis.NewScript(revokeAllScript)

// RedisStore keeps session records in Redis: one blob per record keyed by
// the credential hash, plus a per-principal index set for bulk revocation
// and device listings. Native key TTL covers expiry plus the audit
// retention window, so Redis itself acts as the TTL index and the cleanup
// sweep is a fallback.
type RedisStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a [RedisStore]. prefix namespaces all keys;
// retention is how long records outlive their hard expiry for audit.
func NewRedisStore(client redis.UniversalClient, prefix string, retention time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "ac"
	}
	if retention < 0 {
		retention = 0
	}
	return &RedisStore{redis: client, prefix: prefix, retention: retention}
}

func (s *RedisStore) recordKey(hash [32]byte) string {
	return s.recordKeyPrefix() + hex.EncodeToString(hash[:])
}

func (s *RedisStore) recordKeyPrefix() string {
	return s.prefix + ":r:"
}

func (s *RedisStore) principalKey(principalID string) string {
	return s.prefix + ":p:" + principalID
}

// Create persists the record with a native TTL of remaining-lifetime plus
// the retention window, and indexes it under the principal.
func (s *RedisStore) Create(ctx context.Context, rec *Record) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}

	ttl := time.Until(time.Unix(rec.ExpiresAt, 0)) + s.retention
	if ttl <= 0 {
		return errors.New("record already past retention")
	}

	member := hex.EncodeToString(rec.RefreshHash[:])
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(rec.RefreshHash), data, ttl)
		pipe.SAdd(ctx, s.principalKey(rec.PrincipalID), member)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return nil
}

func (s *RedisStore) FindByHash(ctx context.Context, hash [32]byte) (*Record, error) {
	data, err := s.redis.Get(ctx, s.recordKey(hash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	rec, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return rec, nil
}

func (s *RedisStore) TouchLastUsed(ctx context.Context, hash [32]byte, at time.Time) error {
	err := touchRecordLua.Run(ctx, s.redis, []string{s.recordKey(hash)}, be64(at.Unix())).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Revoke(ctx context.Context, hash [32]byte, at time.Time) error {
	err := revokeRecordLua.Run(ctx, s.redis, []string{s.recordKey(hash)}, be64(at.Unix())).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) RevokeAllForPrincipal(ctx context.Context, principalID string, at time.Time) (int, error) {
	result, err := revokeAllLua.Run(
		ctx,
		s.redis,
		[]string{s.principalKey(principalID)},
		s.recordKeyPrefix(),
		be64(at.Unix()),
		at.Unix(),
	).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	count, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("%w: invalid revoke-all script response", ErrStoreUnavailable)
	}
	return int(count), nil
}

func (s *RedisStore) ActiveForPrincipal(ctx context.Context, principalID string, now time.Time) ([]*Record, error) {
	members, err := s.redis.SMembers(ctx, s.principalKey(principalID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*Record{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(members) == 0 {
		return []*Record{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(members))
	for i, m := range members {
		cmds[i] = pipe.Get(ctx, s.recordKeyPrefix()+m)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	records := make([]*Record, 0, len(members))
	for _, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, cmdErr)
		}

		rec, decErr := Decode(data)
		if decErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, decErr)
		}
		if rec.Usable(now) {
			records = append(records, rec)
		}
	}

	return records, nil
}

// PurgeExpired scans record keys and deletes those past hard expiry, plus
// revoked records older than the grace window. Redis TTLs usually get
// there first; this sweep is the fallback and also prunes index sets.
func (s *RedisStore) PurgeExpired(ctx context.Context, now time.Time, revokedGrace time.Duration) (int, error) {
	var (
		cursor  uint64
		deleted int
	)
	nowUnix := now.Unix()
	graceCutoff := now.Add(-revokedGrace).Unix()

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, s.recordKeyPrefix()+"*", 1000).Result()
		if err != nil {
			return deleted, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}

		for _, key := range keys {
			data, getErr := s.redis.Get(ctx, key).Bytes()
			if getErr != nil {
				if errors.Is(getErr, redis.Nil) {
					continue
				}
				return deleted, fmt.Errorf("%w: %v", ErrStoreUnavailable, getErr)
			}

			rec, decErr := Decode(data)
			if decErr != nil {
				// Unreadable blobs are dead weight; drop them.
				if err := s.redis.Del(ctx, key).Err(); err != nil {
					return deleted, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
				}
				deleted++
				continue
			}

			expired := rec.ExpiresAt < nowUnix
			revokedPastGrace := !rec.Active && rec.RevokedAt > 0 && rec.RevokedAt < graceCutoff
			if !expired && !revokedPastGrace {
				continue
			}

			member := hex.EncodeToString(rec.RefreshHash[:])
			_, pipeErr := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				pipe.SRem(ctx, s.principalKey(rec.PrincipalID), member)
				return nil
			})
			if pipeErr != nil {
				return deleted, fmt.Errorf("%w: %v", ErrStoreUnavailable, pipeErr)
			}
			deleted++
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return deleted, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func be64(v int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	return buf[:]
}

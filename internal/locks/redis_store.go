package locks

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each lease in a hash under prefix+pageID. Expiry is decided
// by the stored expiresAt against the caller's clock; the key TTL only
// garbage-collects abandoned leases after a grace period.
type RedisStore struct {
	client *redis.Client
	prefix string
	grace  time.Duration
}

// NewRedisStore creates a lease store from an existing Redis client
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "contentdb:lock:",
		grace:  time.Minute,
	}
}

// key generates the Redis key for a page lease
func (s *RedisStore) key(pageID string) string {
	return s.prefix + pageID
}

var acquireScript = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'lockedBy', 'sessionId', 'lockedAt', 'expiresAt')
local outcome = 'created'
local lockedAt = ARGV[3]
if cur[4] then
  if tonumber(cur[4]) >= tonumber(ARGV[3]) then
    if cur[1] ~= ARGV[1] or cur[2] ~= ARGV[2] then
      return {'held', cur[1], cur[2], cur[3], cur[4]}
    end
    outcome = 'renewed'
    lockedAt = cur[3]
  else
    outcome = 'stolen'
  end
end
redis.call('HSET', KEYS[1], 'lockedBy', ARGV[1], 'sessionId', ARGV[2], 'lockedAt', lockedAt, 'expiresAt', ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return {outcome, ARGV[1], ARGV[2], lockedAt, ARGV[4]}
`)

var renewScript = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'lockedBy', 'sessionId', 'lockedAt', 'expiresAt')
if not cur[4] or tonumber(cur[4]) < tonumber(ARGV[3]) then
  return {'none'}
end
if cur[1] ~= ARGV[1] or cur[2] ~= ARGV[2] then
  return {'held', cur[1], cur[2], cur[3], cur[4]}
end
redis.call('HSET', KEYS[1], 'expiresAt', ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return {'renewed', cur[1], cur[2], cur[3], ARGV[4]}
`)

var releaseScript = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'lockedBy', 'sessionId')
if cur[1] == ARGV[1] and cur[2] == ARGV[2] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

var reapScript = redis.NewScript(`
local exp = redis.call('HGET', KEYS[1], 'expiresAt')
if exp and tonumber(exp) < tonumber(ARGV[1]) then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

func (s *RedisStore) args(userID, sessionID string, now time.Time, ttl time.Duration) []interface{} {
	return []interface{}{
		userID,
		sessionID,
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.FormatInt(now.Add(ttl).UnixMilli(), 10),
		strconv.FormatInt((ttl + s.grace).Milliseconds(), 10),
	}
}

// Acquire creates, renews or steals the lease in one script call
func (s *RedisStore) Acquire(ctx context.Context, pageID, userID, sessionID string, now time.Time, ttl time.Duration) (Grant, error) {
	reply, err := acquireScript.Run(ctx, s.client, []string{s.key(pageID)}, s.args(userID, sessionID, now, ttl)...).Slice()
	if err != nil {
		return Grant{}, fmt.Errorf("acquire lease: %w", err)
	}
	status, lease, err := parseReply(pageID, reply)
	if err != nil {
		return Grant{}, err
	}
	if status == "held" {
		return Grant{}, &HeldError{Holder: lease}
	}
	return Grant{Lease: lease, Outcome: Outcome(status)}, nil
}

// Renew extends the caller's own unexpired lease
func (s *RedisStore) Renew(ctx context.Context, pageID, userID, sessionID string, now time.Time, ttl time.Duration) (Lease, error) {
	reply, err := renewScript.Run(ctx, s.client, []string{s.key(pageID)}, s.args(userID, sessionID, now, ttl)...).Slice()
	if err != nil {
		return Lease{}, fmt.Errorf("renew lease: %w", err)
	}
	status, lease, err := parseReply(pageID, reply)
	if err != nil {
		return Lease{}, err
	}
	switch status {
	case "none":
		return Lease{}, ErrNoLease
	case "held":
		return Lease{}, &HeldError{Holder: lease}
	}
	return lease, nil
}

// Release deletes the lease if userID and sessionID hold it
func (s *RedisStore) Release(ctx context.Context, pageID, userID, sessionID string) (bool, error) {
	n, err := releaseScript.Run(ctx, s.client, []string{s.key(pageID)}, userID, sessionID).Int64()
	if err != nil {
		return false, fmt.Errorf("release lease: %w", err)
	}
	return n > 0, nil
}

// Get returns the stored lease
func (s *RedisStore) Get(ctx context.Context, pageID string) (Lease, error) {
	fields, err := s.client.HGetAll(ctx, s.key(pageID)).Result()
	if err != nil {
		return Lease{}, fmt.Errorf("read lease: %w", err)
	}
	if len(fields) == 0 {
		return Lease{}, ErrNoLease
	}
	lockedAt, err1 := strconv.ParseInt(fields["lockedAt"], 10, 64)
	expiresAt, err2 := strconv.ParseInt(fields["expiresAt"], 10, 64)
	if err := errors.Join(err1, err2); err != nil {
		return Lease{}, fmt.Errorf("corrupt lease for %s: %w", pageID, err)
	}
	return newLease(pageID, fields["lockedBy"], fields["sessionId"], lockedAt, expiresAt), nil
}

// ReapExpired scans the lease keys and deletes those expired at now
func (s *RedisStore) ReapExpired(ctx context.Context, now time.Time) (int64, error) {
	var reaped int64
	nowArg := strconv.FormatInt(now.UnixMilli(), 10)
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n, err := reapScript.Run(ctx, s.client, []string{iter.Val()}, nowArg).Int64()
		if err != nil {
			return reaped, fmt.Errorf("reap lease %s: %w", iter.Val(), err)
		}
		reaped += n
	}
	if err := iter.Err(); err != nil {
		return reaped, fmt.Errorf("scan leases: %w", err)
	}
	return reaped, nil
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func parseReply(pageID string, reply []interface{}) (string, Lease, error) {
	if len(reply) == 0 {
		return "", Lease{}, fmt.Errorf("empty lease reply")
	}
	status, _ := reply[0].(string)
	if len(reply) < 5 {
		return status, Lease{}, nil
	}
	str := func(i int) string {
		v, _ := reply[i].(string)
		return v
	}
	lockedAt, err1 := strconv.ParseInt(str(3), 10, 64)
	expiresAt, err2 := strconv.ParseInt(str(4), 10, 64)
	if err := errors.Join(err1, err2); err != nil {
		return "", Lease{}, fmt.Errorf("corrupt lease reply: %w", err)
	}
	return status, newLease(pageID, str(1), str(2), lockedAt, expiresAt), nil
}

package lock

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis implementation of Store. Records are stored as
// "holderID\nacquiredAtUnixMilli" values with a PX expiry, so Redis
// itself enforces the TTL. Lua scripts keep the grant-or-renew and
// ownership-checked delete decisions atomic on the server.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix sets a prefix for all lock keys in Redis.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a new Redis-backed lock store.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: "resourcelock:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// acquireScript grants the lock when the key is absent or already owned
// by the caller (a renewal rewrites the stored value unchanged, which
// preserves acquired_at, and pushes the expiry forward). When another
// holder owns the key it returns the stored value and its remaining
// TTL without mutating anything.
var acquireScript = redis.NewScript(`
	local cur = redis.call("GET", KEYS[1])
	if cur then
		local sep = string.find(cur, "\n", 1, true)
		if string.sub(cur, 1, sep - 1) ~= ARGV[1] then
			return {0, cur, redis.call("PTTL", KEYS[1])}
		end
		redis.call("SET", KEYS[1], cur, "PX", ARGV[3])
		return {1, cur}
	end
	local val = ARGV[1] .. "\n" .. ARGV[2]
	redis.call("SET", KEYS[1], val, "PX", ARGV[3])
	return {1, val}
`)

// releaseScript deletes the key only when the stored holder matches.
var releaseScript = redis.NewScript(`
	local cur = redis.call("GET", KEYS[1])
	if not cur then
		return 0
	end
	local sep = string.find(cur, "\n", 1, true)
	if string.sub(cur, 1, sep - 1) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// getScript reads the value together with its remaining TTL so the
// expiry timestamp can be reconstructed from a single round trip.
var getScript = redis.NewScript(`
	local cur = redis.call("GET", KEYS[1])
	if not cur then
		return false
	end
	return {cur, redis.call("PTTL", KEYS[1])}
`)

// Acquire implements Store.Acquire.
func (s *RedisStore) Acquire(ctx context.Context, key ResourceKey, holderID string, ttl time.Duration) (*Record, bool, error) {
	now := time.Now()
	fullKey := s.prefix + key.String()

	res, err := acquireScript.Run(ctx, s.client, []string{fullKey},
		holderID, now.UnixMilli(), ttl.Milliseconds()).Slice()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if len(res) < 2 {
		return nil, false, fmt.Errorf("unexpected acquire script reply: %v", res)
	}

	granted := res[0].(int64) == 1
	value, _ := res[1].(string)

	holder, acquiredAt, err := parseLockValue(value)
	if err != nil {
		return nil, false, err
	}

	rec := &Record{
		Key:        key,
		HolderID:   holder,
		AcquiredAt: acquiredAt,
	}
	if granted {
		rec.ExpiresAt = now.Add(ttl)
		return rec, true, nil
	}

	var remaining int64
	if len(res) > 2 {
		remaining, _ = res[2].(int64)
	}
	rec.ExpiresAt = now.Add(time.Duration(remaining) * time.Millisecond)
	return rec, false, nil
}

// Release implements Store.Release.
func (s *RedisStore) Release(ctx context.Context, key ResourceKey, holderID string) error {
	fullKey := s.prefix + key.String()

	deleted, err := releaseScript.Run(ctx, s.client, []string{fullKey}, holderID).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if deleted == 0 {
		return ErrNotHeld
	}
	return nil
}

// Get implements Store.Get.
func (s *RedisStore) Get(ctx context.Context, key ResourceKey) (*Record, error) {
	fullKey := s.prefix + key.String()

	res, err := getScript.Run(ctx, s.client, []string{fullKey}).Slice()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lock: %w", err)
	}
	if len(res) < 2 {
		return nil, fmt.Errorf("unexpected get script reply: %v", res)
	}

	value, _ := res[0].(string)
	remaining, _ := res[1].(int64)

	holder, acquiredAt, err := parseLockValue(value)
	if err != nil {
		return nil, err
	}

	return &Record{
		Key:        key,
		HolderID:   holder,
		AcquiredAt: acquiredAt,
		ExpiresAt:  time.Now().Add(time.Duration(remaining) * time.Millisecond),
	}, nil
}

// Purge implements Store.Purge. Redis evicts expired keys on its own,
// so there is nothing to do here.
func (s *RedisStore) Purge(ctx context.Context) (int64, error) {
	return 0, nil
}

// Ping checks if the Redis connection is healthy.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func parseLockValue(value string) (string, time.Time, error) {
	holder, millis, ok := strings.Cut(value, "\n")
	if !ok {
		return "", time.Time{}, fmt.Errorf("malformed lock value %q", value)
	}
	ms, err := strconv.ParseInt(millis, 10, 64)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("malformed lock timestamp %q: %w", millis, err)
	}
	return holder, time.UnixMilli(ms), nil
}

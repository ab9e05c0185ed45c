package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps rate-limit records in Redis for multi-instance
// deployments. The whole read-modify-write of RecordAttempt runs as one Lua
// script, so concurrent attempts for the same key are both counted. PEXPIRE
// with a long retention is the purge; it is refreshed on every attempt, so a
// live window can never expire out from under its callers.
type RedisStore struct {
	rdb       *redis.Client
	prefix    string
	retention time.Duration
}

var recordAttemptScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local retention = tonumber(ARGV[3])
local ws = tonumber(redis.call("HGET", KEYS[1], "window_start"))
local attempts
if (not ws) or (now - ws >= window) then
  ws = now
  attempts = 1
else
  attempts = tonumber(redis.call("HGET", KEYS[1], "attempts")) + 1
end
redis.call("HSET", KEYS[1], "attempts", attempts, "window_start", ws, "last_attempt", now)
redis.call("PEXPIRE", KEYS[1], retention)
return {attempts, ws}
`)

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, retention: defaultRetention}
}

func (s *RedisStore) key(identifier string, purpose Purpose) string {
	return s.prefix + ":" + identifier + ":" + string(purpose)
}

func (s *RedisStore) RecordAttempt(ctx context.Context, identifier string, purpose Purpose, window time.Duration, now time.Time) (Record, error) {
	res, err := recordAttemptScript.Run(ctx, s.rdb,
		[]string{s.key(identifier, purpose)},
		now.UnixMilli(), window.Milliseconds(), s.retention.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Record{}, err
	}
	return Record{
		Identifier:    identifier,
		Purpose:       purpose,
		Attempts:      int(res[0]),
		WindowStartAt: time.UnixMilli(res[1]).UTC(),
		LastAttemptAt: now,
	}, nil
}

func (s *RedisStore) Get(ctx context.Context, identifier string, purpose Purpose) (Record, bool, error) {
	vals, err := s.rdb.HGetAll(ctx, s.key(identifier, purpose)).Result()
	if err != nil {
		return Record{}, false, err
	}
	if len(vals) == 0 {
		return Record{}, false, nil
	}

	attempts, _ := strconv.Atoi(vals["attempts"])
	windowStart, _ := strconv.ParseInt(vals["window_start"], 10, 64)
	lastAttempt, _ := strconv.ParseInt(vals["last_attempt"], 10, 64)
	return Record{
		Identifier:    identifier,
		Purpose:       purpose,
		Attempts:      attempts,
		WindowStartAt: time.UnixMilli(windowStart).UTC(),
		LastAttemptAt: time.UnixMilli(lastAttempt).UTC(),
	}, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, identifier string, purpose Purpose) error {
	return s.rdb.Del(ctx, s.key(identifier, purpose)).Err()
}

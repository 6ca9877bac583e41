/**
 * @description
 * Redis-backed throttle on transfer creation. Every created transfer triggers
 * an instruction SMS, so the per-member cap on new payment requests is also
 * the bound on gateway spend a single member can cause.
 *
 * @dependencies
 * - context, fmt, math, strings, time: Standard Go libraries.
 * - github.com/google/uuid: Member identifiers in throttle keys.
 * - github.com/redis/go-redis/v9: Redis client and Lua script execution.
 */

package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// transferCreateAttemptScript counts one attempt inside a fixed window and
// returns {count, remaining window in ms}. INCR and PEXPIRE run atomically so
// two concurrent attempts cannot both start a window.
var transferCreateAttemptScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisTransferRateLimiter caps how often a single member can open new
// transfer requests. Keys live under <prefix>:transfer_create:<member-id>.
type RedisTransferRateLimiter struct {
	client    redis.UniversalClient
	keyPrefix string
}

func NewRedisTransferRateLimiter(client redis.UniversalClient, keyPrefix string) *RedisTransferRateLimiter {
	prefix := strings.TrimSuffix(strings.TrimSpace(keyPrefix), ":")
	if prefix == "" {
		prefix = "membership:rate_limit"
	}
	return &RedisTransferRateLimiter{client: client, keyPrefix: prefix}
}

// ConsumeCreateAttempt counts one transfer-creation attempt for the member and
// reports whether it is still within the limit, plus the seconds until the
// window resets when it is not. A nil limiter, missing client, or non-positive
// limit disables enforcement.
func (r *RedisTransferRateLimiter) ConsumeCreateAttempt(
	ctx context.Context,
	memberID uuid.UUID,
	limit int,
	window time.Duration,
) (allowed bool, retryAfterSeconds int, err error) {
	if r == nil || r.client == nil || limit <= 0 || window <= 0 {
		return true, 0, nil
	}

	windowMs := window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	key := fmt.Sprintf("%s:transfer_create:%s", r.keyPrefix, memberID)
	reply, err := transferCreateAttemptScript.Run(ctx, r.client, []string{key}, windowMs).Result()
	if err != nil {
		return true, 0, err
	}

	count, ttlMs, err := parseAttemptReply(reply)
	if err != nil {
		return true, 0, err
	}

	if count <= int64(limit) {
		return true, 0, nil
	}

	if ttlMs < 0 {
		ttlMs = windowMs
	}
	retryAfter := int(math.Ceil(float64(ttlMs) / 1000.0))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, retryAfter, nil
}

func parseAttemptReply(reply interface{}) (count, ttlMs int64, err error) {
	values, ok := reply.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected rate limit reply shape: %T", reply)
	}
	count, ok = values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected rate limit count type: %T", values[0])
	}
	ttlMs, ok = values[1].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected rate limit ttl type: %T", values[1])
	}
	return count, ttlMs, nil
}

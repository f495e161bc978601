package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Bucket state lives in a redis hash {milli, ts}: milli is the token count
// times 1000 so fractional refills survive redis' integer replies. The
// script returns {allowed, remaining_milli, retry_after_ms, now_ms}.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst_milli = tonumber(ARGV[2]) * 1000
local ttl_ms = tonumber(ARGV[3])

local t = redis.call("TIME")
local now = t[1] * 1000 + math.floor(t[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "milli", "ts")
local milli = tonumber(state[1])
local ts = tonumber(state[2])
if milli == nil or ts == nil then
  milli = burst_milli
else
  local elapsed = math.max(0, now - ts)
  milli = math.min(burst_milli, milli + elapsed * rate)
end

local allowed = 0
local retry_ms = 0
if milli >= 1000 then
  allowed = 1
  milli = milli - 1000
else
  retry_ms = math.ceil((1000 - milli) / rate)
end

redis.call("HSET", KEYS[1], "milli", math.floor(milli), "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl_ms)

return {allowed, math.floor(milli), retry_ms, now}
`

type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

// Allow takes one token from key's bucket, which holds up to burst tokens
// and refills at rate tokens per second.
func (t *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error) {
	denied := &RateLimitResult{Limit: burst}
	switch {
	case t == nil || t.client == nil:
		return denied, errors.New("rate limiter not configured")
	case key == "":
		return denied, errors.New("rate limiter key is empty")
	case rate <= 0:
		return denied, errors.New("rate limiter rate must be positive")
	case burst <= 0:
		return denied, errors.New("rate limiter burst must be positive")
	}

	// rate is passed per millisecond in milli-tokens, which is the same
	// number as tokens per second
	reply, err := t.script.Run(ctx, t.client, []string{key},
		rate, burst, bucketTTL(rate, burst).Milliseconds(),
	).Int64Slice()
	if err != nil {
		return denied, err
	}
	if len(reply) != 4 {
		return denied, errors.New("invalid rate limit script response")
	}

	retryAfter := time.Duration(reply[2]) * time.Millisecond
	return &RateLimitResult{
		Allowed:    reply[0] == 1,
		Limit:      burst,
		Remaining:  int(reply[1] / 1000),
		ResetTime:  time.UnixMilli(reply[3]).Add(retryAfter),
		RetryAfter: retryAfter,
	}, nil
}

// bucketTTL keeps idle keys around for twice the time a full refill takes.
func bucketTTL(rate float64, burst int) time.Duration {
	if rate <= 0 || burst <= 0 {
		return time.Second
	}
	seconds := math.Max(1, math.Ceil(2*float64(burst)/rate))
	return time.Duration(seconds) * time.Second
}

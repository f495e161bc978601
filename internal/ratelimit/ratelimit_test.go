package ratelimit

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/cabletrack/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func limiterConfig(limit int, window time.Duration) config.Config {
	return config.Config{RateLimit: config.RateLimitConfig{ApprovalLimit: limit, ApprovalWindow: window}}
}

func TestApprovalLimiterDisabledWithoutRedis(t *testing.T) {
	l := NewApprovalLimiter(ApprovalParams{Config: limiterConfig(10, time.Minute), Log: zap.NewNop()})
	assert.False(t, l.Enabled())

	ok, res := l.Allow(context.Background(), "approve", "10.0.0.1")
	assert.True(t, ok)
	assert.Nil(t, res)
}

func TestApprovalLimiterDisabledWithoutLimit(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	l := NewApprovalLimiter(ApprovalParams{Config: limiterConfig(0, time.Minute), Client: client, Log: zap.NewNop()})
	assert.False(t, l.Enabled())
}

func TestApprovalLimiterFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	defer client.Close()

	l := NewApprovalLimiter(ApprovalParams{Config: limiterConfig(5, time.Minute), Client: client, Log: zap.NewNop()})
	require.True(t, l.Enabled())

	ok, res := l.Allow(context.Background(), "approve", "10.0.0.1")
	assert.True(t, ok)
	assert.Nil(t, res)
}

func TestTokenBucketValidation(t *testing.T) {
	var nilBucket *TokenBucket
	_, err := nilBucket.Allow(context.Background(), "k", 1, 1)
	assert.Error(t, err)

	b := NewTokenBucket(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}))
	_, err = b.Allow(context.Background(), "", 1, 1)
	assert.Error(t, err)
	_, err = b.Allow(context.Background(), "k", 0, 1)
	assert.Error(t, err)
	_, err = b.Allow(context.Background(), "k", 1, 0)
	assert.Error(t, err)
}

func TestBucketMath(t *testing.T) {
	assert.Equal(t, 4*time.Second, bucketTTL(5, 10))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
	assert.Equal(t, time.Second, bucketTTL(0, 1))

	assert.Equal(t, 1, RetryAfterSeconds(nil))
	assert.Equal(t, 3, RetryAfterSeconds(&RateLimitResult{RetryAfter: 2100 * time.Millisecond}))
}

func TestLockerWithoutRedis(t *testing.T) {
	assert.Nil(t, NewLocker(nil, zap.NewNop()))

	var l *Locker
	_, err := l.Acquire(context.Background(), "k", time.Second)
	assert.Error(t, err)
	assert.NoError(t, l.Release(context.Background(), &Lease{Key: "k", Token: "token"}))

	ran := false
	err = l.Do(context.Background(), "k", time.Second, func(context.Context) error {
		ran = true
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, ran, "nil locker runs the work unguarded")
}

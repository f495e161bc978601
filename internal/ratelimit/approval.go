package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/cabletrack/internal/config"
	"github.com/smallbiznis/cabletrack/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyApprovalClient = "approval:token:client:%s"

// ApprovalLimiter throttles the unauthenticated approve/reject link routes
// per client. It fails open: a Redis outage never blocks an approval.
type ApprovalLimiter struct {
	log     *zap.Logger
	bucket  *TokenBucket
	metrics *metrics.Metrics

	rate  float64
	burst int
}

type ApprovalParams struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Client  *redis.Client    `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

func NewApprovalLimiter(p ApprovalParams) *ApprovalLimiter {
	limit := p.Config.RateLimit.ApprovalLimit
	window := p.Config.RateLimit.ApprovalWindow
	l := &ApprovalLimiter{
		log:     p.Log.Named("ratelimit.approval"),
		bucket:  NewTokenBucket(p.Client),
		metrics: p.Metrics,
	}
	if limit > 0 && window > 0 {
		l.burst = limit
		l.rate = float64(limit) / window.Seconds()
	}
	return l
}

func (l *ApprovalLimiter) Enabled() bool {
	return l != nil && l.bucket != nil && l.rate > 0 && l.burst > 0
}

// Allow reports whether clientKey may hit an approval link now. The result
// is nil whenever the limiter did not consult Redis.
func (l *ApprovalLimiter) Allow(ctx context.Context, endpoint, clientKey string) (bool, *RateLimitResult) {
	if !l.Enabled() {
		return true, nil
	}
	clientKey = strings.TrimSpace(clientKey)
	if clientKey == "" {
		clientKey = "unknown"
	}

	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyApprovalClient, clientKey), l.rate, l.burst)
	if err != nil {
		l.log.Warn("rate limiter unavailable, allowing request",
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
		return true, nil
	}
	if !res.Allowed {
		l.metrics.RecordRateLimitDenied(ctx, endpoint, "exhausted")
		return false, res
	}
	return true, res
}

// RetryAfterSeconds rounds up so clients never retry early.
func RetryAfterSeconds(res *RateLimitResult) int {
	if res == nil || res.RetryAfter <= 0 {
		return 1
	}
	return int((res.RetryAfter + time.Second - 1) / time.Second)
}

package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLockHeld reports that another replica holds the lease.
var ErrLockHeld = errors.New("lock_held")

// compare-and-delete so a lease that expired and was re-acquired elsewhere
// is never released by its previous owner
const releaseLeaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Locker hands out short-lived leases on redis keys. Bootstrap and the
// scheduler use it so only one replica does the work per window.
type Locker struct {
	client  *redis.Client
	release *redis.Script
	log     *zap.Logger
}

// NewLocker returns nil without a redis client; (*Locker)(nil).Do runs the
// work unguarded.
func NewLocker(client *redis.Client, log *zap.Logger) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client:  client,
		release: redis.NewScript(releaseLeaseScript),
		log:     log.Named("ratelimit.locker"),
	}
}

// Lease is one held lock.
type Lease struct {
	Key   string
	Token string
}

func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	switch {
	case l == nil || l.client == nil:
		return nil, errors.New("locker not configured")
	case key == "":
		return nil, errors.New("lock key is empty")
	case ttl <= 0:
		return nil, errors.New("lock ttl must be positive")
	}

	lease := &Lease{Key: key, Token: uuid.NewString()}
	ok, err := l.client.SetNX(ctx, key, lease.Token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return lease, nil
}

func (l *Locker) Release(ctx context.Context, lease *Lease) error {
	if l == nil || l.client == nil || lease == nil || lease.Token == "" {
		return nil
	}
	return l.release.Run(ctx, l.client, []string{lease.Key}, lease.Token).Err()
}

// Do runs fn while holding key. It returns ErrLockHeld without calling fn
// when another replica holds the lease. A redis failure is logged and fn
// runs anyway.
func (l *Locker) Do(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l == nil {
		return fn(ctx)
	}

	lease, err := l.Acquire(ctx, key, ttl)
	switch {
	case errors.Is(err, ErrLockHeld):
		return err
	case err != nil:
		l.log.Warn("lock unavailable, running unguarded", zap.String("key", key), zap.Error(err))
		return fn(ctx)
	}
	defer func() {
		if err := l.Release(context.WithoutCancel(ctx), lease); err != nil {
			l.log.Warn("lock release failed", zap.String("key", key), zap.Error(err))
		}
	}()
	return fn(ctx)
}

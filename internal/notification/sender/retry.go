package sender

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/smallbiznis/cabletrack/internal/notification/domain"
)

// RetryPolicy bounds delivery retries. Retries run on the event worker, so
// MaxElapsed also bounds how long one notification can hold a worker.
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxElapsed      time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxTries: 2, InitialInterval: 500 * time.Millisecond, MaxElapsed: 15 * time.Second}
}

func (p RetryPolicy) run(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	tries := p.MaxTries
	if tries == 0 {
		tries = 1
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, op()
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(tries),
		backoff.WithMaxElapsedTime(p.MaxElapsed),
	)
	return err
}

type retryingSMS struct {
	next   domain.SMSSender
	policy RetryPolicy
}

func WithSMSRetry(next domain.SMSSender, policy RetryPolicy) domain.SMSSender {
	return &retryingSMS{next: next, policy: policy}
}

func (r *retryingSMS) SendSMS(ctx context.Context, to, body string) error {
	return r.policy.run(ctx, func() error { return r.next.SendSMS(ctx, to, body) })
}

type retryingEmail struct {
	next   domain.EmailSender
	policy RetryPolicy
}

func WithEmailRetry(next domain.EmailSender, policy RetryPolicy) domain.EmailSender {
	return &retryingEmail{next: next, policy: policy}
}

func (r *retryingEmail) SendEmail(ctx context.Context, to, subject, htmlBody string) error {
	return r.policy.run(ctx, func() error { return r.next.SendEmail(ctx, to, subject, htmlBody) })
}

package db

import (
	"context"
	"time"
)

// StatementTimeout bounds persistence work for one operation. Services
// derive a context from it before opening a transaction.
type StatementTimeout time.Duration

func NewStatementTimeout(cfg Config) StatementTimeout {
	return StatementTimeout(cfg.StatementTimeout)
}

// WithTimeout returns ctx unchanged when no timeout is configured.
func (t StatementTimeout) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if t <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(t))
}

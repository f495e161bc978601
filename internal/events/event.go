package events

import (
	"context"
	"time"
)

const (
	TypeTicketCreated       = "ticket.created"
	TypeTicketStatusChanged = "ticket.status_changed"
)

// Event is a post-commit notification of a domain change.
type Event struct {
	ID            string
	Type          string
	CorrelationID string
	TraceID       string
	SpanID        string
	OccurredAt    time.Time
	Payload       any
}

type Handler func(ctx context.Context, evt Event) error

// Publisher hands events to subscribers without waiting for them. Callers
// publish only after their transaction has committed.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload any)
}

type Subscriber interface {
	Subscribe(eventType string, handler Handler)
}

package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/cabletrack/internal/clock"
	"github.com/smallbiznis/cabletrack/internal/config"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log    *zap.Logger
	Config config.Config
	Clock  clock.Clock `optional:"true"`
}

// Bus is an in-process, bounded event queue drained by a fixed worker pool.
// A full queue drops the event with a warning rather than blocking the
// publisher.
type Bus struct {
	log     *zap.Logger
	clock   clock.Clock
	workers int
	queue   chan Event

	mu       sync.RWMutex
	handlers map[string][]Handler
	closed   bool

	wg sync.WaitGroup
}

func NewBus(p Params) *Bus {
	workers := p.Config.Events.Workers
	if workers <= 0 {
		workers = 1
	}
	size := p.Config.Events.QueueSize
	if size <= 0 {
		size = 256
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Bus{
		log:      p.Log.Named("events.bus"),
		clock:    clk,
		workers:  workers,
		queue:    make(chan Event, size),
		handlers: make(map[string][]Handler),
	}
}

func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

func (b *Bus) Publish(ctx context.Context, eventType string, payload any) {
	ctx, cid := EnsureCorrelationID(ctx)
	evt := Event{
		ID:            ulid.Make().String(),
		Type:          eventType,
		CorrelationID: cid,
		OccurredAt:    b.clock.Now(),
		Payload:       payload,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt.TraceID = sc.TraceID().String()
		evt.SpanID = sc.SpanID().String()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.log.Warn("event dropped after shutdown", zap.String("event_type", eventType), zap.String("event_id", evt.ID))
		return
	}

	select {
	case b.queue <- evt:
	default:
		b.log.Warn("event queue full, dropping event",
			zap.String("event_type", eventType),
			zap.String("event_id", evt.ID),
			zap.String("correlation_id", cid),
		)
	}
}

func (b *Bus) Start() {
	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.run()
	}
}

// Stop closes the queue and waits for queued events to be handled or for
// ctx to expire.
func (b *Bus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) run() {
	defer b.wg.Done()
	for evt := range b.queue {
		b.dispatch(evt)
	}
}

func (b *Bus) dispatch(evt Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[evt.Type]...)
	b.mu.RUnlock()

	ctx := handlerContext(evt)
	for _, h := range handlers {
		if err := b.safeHandle(ctx, h, evt); err != nil {
			b.log.Warn("event handler failed",
				zap.String("event_type", evt.Type),
				zap.String("event_id", evt.ID),
				zap.String("correlation_id", evt.CorrelationID),
				zap.Error(err),
			)
		}
	}
}

func (b *Bus) safeHandle(ctx context.Context, h Handler, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, evt)
}

package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/cabletrack/internal/clock"
	"github.com/smallbiznis/cabletrack/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBus(workers, size int) *Bus {
	cfg := config.Config{}
	cfg.Events.Workers = workers
	cfg.Events.QueueSize = size
	return NewBus(Params{
		Log:    zap.NewNop(),
		Config: cfg,
		Clock:  clock.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
	})
}

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := newTestBus(2, 8)

	var mu sync.Mutex
	var got []Event
	bus.Subscribe(TypeTicketCreated, func(_ context.Context, evt Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, evt)
		return nil
	})
	bus.Start()

	ctx := ContextWithCorrelationID(context.Background(), "req-1")
	bus.Publish(ctx, TypeTicketCreated, "payload")
	bus.Publish(ctx, TypeTicketStatusChanged, "ignored")
	require.NoError(t, bus.Stop(context.Background()))

	require.Len(t, got, 1)
	assert.Equal(t, "payload", got[0].Payload)
	assert.Equal(t, "req-1", got[0].CorrelationID)
	assert.NotEmpty(t, got[0].ID)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), got[0].OccurredAt)
}

func TestBusSurvivesFailingHandlers(t *testing.T) {
	bus := newTestBus(1, 8)

	calls := 0
	bus.Subscribe(TypeTicketCreated, func(context.Context, Event) error { panic("boom") })
	bus.Subscribe(TypeTicketCreated, func(context.Context, Event) error { return errors.New("smtp down") })
	bus.Subscribe(TypeTicketCreated, func(context.Context, Event) error {
		calls++
		return nil
	})
	bus.Start()

	bus.Publish(context.Background(), TypeTicketCreated, nil)
	bus.Publish(context.Background(), TypeTicketCreated, nil)
	require.NoError(t, bus.Stop(context.Background()))

	assert.Equal(t, 2, calls)
}

func TestBusDropsWhenFullOrClosed(t *testing.T) {
	bus := newTestBus(1, 1)

	calls := 0
	bus.Subscribe(TypeTicketCreated, func(context.Context, Event) error {
		calls++
		return nil
	})

	// Not started yet, so the second publish finds the queue full.
	bus.Publish(context.Background(), TypeTicketCreated, 1)
	bus.Publish(context.Background(), TypeTicketCreated, 2)
	bus.Start()
	require.NoError(t, bus.Stop(context.Background()))
	bus.Publish(context.Background(), TypeTicketCreated, 3)

	assert.Equal(t, 1, calls)
}

func TestEnsureCorrelationID(t *testing.T) {
	ctx, id := EnsureCorrelationID(context.Background())
	assert.NotEmpty(t, id)
	assert.Equal(t, id, CorrelationIDFromContext(ctx))

	_, again := EnsureCorrelationID(ctx)
	assert.Equal(t, id, again)
}

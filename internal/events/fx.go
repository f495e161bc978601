package events

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("events",
	fx.Provide(NewBus),
	fx.Provide(func(b *Bus) Publisher { return b }),
	fx.Provide(func(b *Bus) Subscriber { return b }),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, bus *Bus) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			bus.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return bus.Stop(ctx)
		},
	})
}

package overdue

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("overdue",
	fx.Provide(New),
	fx.Invoke(scheduleFirstScan),
)

// scheduleFirstScan arms the deferred scan once the collection is available.
func scheduleFirstScan(lc fx.Lifecycle, scanner *Scanner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			scanner.ScheduleScan(context.Background())
			return nil
		},
	})
}

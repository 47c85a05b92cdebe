package engine

import (
	"context"

	"go.uber.org/zap"

	"corrsim/internal/schedule"
)

// Run ticks every TickInterval until ctx is canceled.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine started",
		zap.Duration("interval", e.cfg.TickInterval),
		zap.String("policy", string(e.cfg.Policy)),
	)
	defer e.logger.Info("engine stopped")

	return schedule.Every(ctx, e.logger, schedule.Job{
		Name:     "engine-tick",
		Interval: e.cfg.TickInterval,
		Run: func(ctx context.Context) {
			res, err := e.Tick(ctx)
			if err != nil {
				if ctx.Err() == nil {
					e.logger.Error("tick failed", zap.Error(err))
				}
				return
			}
			if res.Executed > 0 {
				e.logger.Debug("tick",
					zap.Int("executed", res.Executed),
					zap.Int("settled", res.Settled),
					zap.Int("failed", res.Failed),
					zap.Int("queued", res.Queued),
				)
			}
		},
	})
}

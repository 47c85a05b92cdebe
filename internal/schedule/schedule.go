// Package schedule runs periodic jobs on robfig/cron with zap logging.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}

// Job is one scheduled function.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

// Every runs each job at its interval until ctx is canceled, then waits for
// in-flight runs to finish. A run still going when the next one is due is
// skipped. Panics are recovered and logged.
func Every(ctx context.Context, logger *zap.Logger, jobs ...Job) error {
	cl := cronLogger{l: logger.Sugar()}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	for _, job := range jobs {
		run := job.Run
		if _, err := c.AddFunc(fmt.Sprintf("@every %s", job.Interval), func() { run(ctx) }); err != nil {
			return fmt.Errorf("schedule %s: %w", job.Name, err)
		}
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

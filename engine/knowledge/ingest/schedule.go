package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/compozy/nutrilens/pkg/logger"
)

// cronLogger adapts the context logger to cron's logging interface.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("Ingestion scheduler: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("Ingestion scheduler: "+msg, append(keysAndValues, "error", err)...)
}

// Schedule runs ingestion passes on a standard five-field cron expression (or
// "@every 1h" style descriptors) until stop is called or ctx ends. Overlapping
// ticks are skipped.
func (e *Engine) Schedule(ctx context.Context, spec string) (stop func(), err error) {
	log := logger.FromContext(ctx)
	clog := cronLogger{log: log}
	c := cron.New(
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	if _, err := c.AddFunc(spec, func() {
		if _, err := e.Run(ctx); err != nil {
			log.Error("Scheduled knowledge ingestion failed", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("ingest: invalid schedule %q: %w", spec, err)
	}
	c.Start()
	log.Info("Knowledge ingestion scheduled", "schedule", spec)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			<-c.Stop().Done()
		case <-done:
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-c.Stop().Done()
		})
	}, nil
}

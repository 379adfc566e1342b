package eventsync

import (
	"context"
	"sync"

	"github.com/angelmondragon/events-aggregator/pkg/logger"
)

// Runner is the sync surface background triggers need.
type Runner interface {
	Run(ctx context.Context, cursorOverride string) (RunResult, error)
}

// Trigger starts sync runs in the background on behalf of HTTP callers.
// Runs are bound to the base context so shutdown cancels them, and Wait
// blocks until every started run has returned.
type Trigger struct {
	base   context.Context
	runner Runner
	logg   *logger.Logger
	wg     sync.WaitGroup
}

func NewTrigger(base context.Context, runner Runner, logg *logger.Logger) *Trigger {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Trigger{base: base, runner: runner, logg: logg}
}

// Start launches a run. The caller's request context is deliberately not
// used; only request-scoped log fields are carried over.
func (t *Trigger) Start(ctx context.Context, cursorOverride string) {
	runCtx := t.logg.Inherit(t.base, ctx)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		res, err := t.runner.Run(runCtx, cursorOverride)
		if err != nil {
			// Run already logged and persisted the failure.
			return
		}
		if res.Skipped {
			t.logg.Info(runCtx, "triggered sync skipped; a run is already in progress")
		}
	}()
}

// Wait blocks until all started runs have finished.
func (t *Trigger) Wait() {
	t.wg.Wait()
}

package scheduler

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

// Trigger is one named scheduled job. A firing that arrives while the
// previous one is still running is dropped, never queued: the job
// recomputes its recipients from current data, so the next firing
// self-corrects.
type Trigger struct {
	name    string
	run     func(ctx context.Context)
	running atomic.Bool
	logger  *zap.Logger
}

func NewTrigger(name string, run func(ctx context.Context), logger *zap.Logger) *Trigger {
	return &Trigger{
		name:   name,
		run:    run,
		logger: logger,
	}
}

func (t *Trigger) Name() string { return t.name }

// Fire runs the job unless the previous firing is still in progress.
// It reports whether the job actually ran.
func (t *Trigger) Fire(ctx context.Context) bool {
	if !t.running.CompareAndSwap(false, true) {
		t.logger.Warn("previous firing still running, skipping",
			zap.String("trigger", t.name))
		return false
	}
	defer t.running.Store(false)

	t.logger.Info("trigger fired", zap.String("trigger", t.name))
	t.run(ctx)
	return true
}

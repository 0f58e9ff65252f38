// Package jobs runs fire-and-forget units of work on tracked
// goroutines. Trigger endpoints acknowledge immediately; the work's
// eventual outcome is observable through the scrape-run audit trail.
package jobs

import (
	"context"
	"runtime/debug"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Fn is one unit of work. The context is the runner's background
// context, cancelled only at shutdown.
type Fn func(ctx context.Context) error

// Runner tracks in-flight jobs so shutdown can drain them. The
// concurrency bound is enforced inside the tracked goroutine, so
// Submit never blocks the caller.
type Runner struct {
	group  *errgroup.Group
	ctx    context.Context
	sem    chan struct{}
	logger *zap.Logger
}

// NewRunner creates a runner. maxConcurrent <= 0 means unlimited.
func NewRunner(ctx context.Context, maxConcurrent int) *Runner {
	g, gctx := errgroup.WithContext(ctx)
	var sem chan struct{}
	if maxConcurrent > 0 {
		sem = make(chan struct{}, maxConcurrent)
	}
	return &Runner{
		group:  g,
		ctx:    gctx,
		sem:    sem,
		logger: zap.L().With(zap.String("component", "jobs")),
	}
}

// Submit schedules fn and returns its job ID immediately. Failures and
// panics are logged against the ID, never propagated to the caller.
func (r *Runner) Submit(name string, fn Fn) string {
	id := uuid.NewString()
	log := r.logger.With(zap.String("job", name), zap.String("job_id", id))

	r.group.Go(func() error {
		if r.sem != nil {
			select {
			case r.sem <- struct{}{}:
				defer func() { <-r.sem }()
			case <-r.ctx.Done():
				log.Warn("job abandoned, runner shutting down")
				return nil
			}
		}

		defer func() {
			if rec := recover(); rec != nil {
				log.Error("job panicked",
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
				)
			}
		}()

		log.Info("job started")
		if err := fn(r.ctx); err != nil {
			log.Error("job failed", zap.Error(err))
			return nil
		}
		log.Info("job finished")
		return nil
	})

	return id
}

// Wait blocks until every submitted job has returned. Called during
// graceful shutdown.
func (r *Runner) Wait() error {
	if err := r.group.Wait(); err != nil {
		return eris.Wrap(err, "jobs: drain")
	}
	return nil
}

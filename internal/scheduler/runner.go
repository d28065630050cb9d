// Package scheduler triggers due-check passes for scheduled transfers on a fixed
// interval.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/pocketbank/backend/internal/models"
	"go.uber.org/zap"
)

var ErrPassInProgress = errors.New("a due-check pass is already running")

// DueExecutor runs one due-check pass.
type DueExecutor interface {
	ExecuteDueSchedules(ctx context.Context) (*models.DueRunSummary, error)
}

type Runner struct {
	executor DueExecutor
	locker   Locker
	interval time.Duration

	stopChan chan struct{}
	doneChan chan struct{}
}

func NewRunner(executor DueExecutor, locker Locker, interval time.Duration) *Runner {
	if locker == nil {
		locker = &LocalLocker{}
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Runner{
		executor: executor,
		locker:   locker,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// RunOnce runs a single pass under the pass lock.
func (r *Runner) RunOnce(ctx context.Context) (*models.DueRunSummary, error) {
	release, ok, err := r.locker.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPassInProgress
	}
	defer release()

	return r.executor.ExecuteDueSchedules(ctx)
}

// Start runs a pass immediately and then once per interval.
func (r *Runner) Start(ctx context.Context) {
	go r.pollLoop(ctx)
	zap.L().Info("Scheduled transfer runner started", zap.Duration("polling_interval", r.interval))
}

// Stop gracefully stops the runner
func (r *Runner) Stop() {
	zap.L().Info("Stopping scheduled transfer runner")
	close(r.stopChan)
	<-r.doneChan
	zap.L().Info("Scheduled transfer runner stopped")
}

func (r *Runner) pollLoop(ctx context.Context) {
	defer close(r.doneChan)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.tick(ctx)

	for {
		select {
		case <-ticker.C:
			r.tick(ctx)
		case <-r.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	summary, err := r.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrPassInProgress):
		zap.L().Info("Skipping due-check, another pass holds the lock")
	case err != nil:
		zap.L().Error("Due-check pass failed", zap.Error(err))
	case summary.Failed > 0:
		zap.L().Warn("Due-check pass finished with failures",
			zap.Int("executed", summary.Executed),
			zap.Int("failed", summary.Failed))
	}
}

package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Func is one run of a job.
type Func func(ctx context.Context) error

// Runner runs jobs on fixed intervals until Stop is called.
type Runner struct {
	metrics *Metrics
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a runner. metrics and logger may be nil.
func NewRunner(metrics *Metrics, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{metrics: metrics, logger: logger, ctx: ctx, cancel: cancel}
}

// Every runs fn every interval. Each run is bounded by interval.
func (r *Runner) Every(jobType string, interval time.Duration, fn Func) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.RunOnce(jobType, interval, fn)
			case <-r.ctx.Done():
				return
			}
		}
	}()
}

// RunOnce runs fn a single time with timeout and records the outcome.
func (r *Runner) RunOnce(jobType string, timeout time.Duration, fn Func) {
	ctx, cancel := context.WithTimeout(r.ctx, timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	if r.metrics != nil {
		r.metrics.ObserveJobDuration(jobType, elapsed.Seconds())
	}
	if err != nil {
		if r.metrics != nil {
			r.metrics.IncJobsTotal(jobType, StatusFailure)
			r.metrics.IncJobErrors(jobType, errorType(err))
		}
		r.logger.Error("background job failed",
			slog.String("job_type", jobType),
			slog.Duration("duration", elapsed),
			slog.String("error", err.Error()))
		return
	}
	if r.metrics != nil {
		r.metrics.IncJobsTotal(jobType, StatusSuccess)
	}
	r.logger.Debug("background job finished", slog.String("job_type", jobType), slog.Duration("duration", elapsed))
}

// Stop cancels running jobs and waits for their goroutines to exit.
func (r *Runner) Stop() {
	r.cancel()
	r.wg.Wait()
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "store_error"
	}
}

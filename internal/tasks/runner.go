package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Failure describes a background task that returned an error or panicked.
type Failure struct {
	Name string
	Err  error
}

// Runner executes best-effort side effects detached from the request that
// scheduled them. A failing task never affects the caller; failures are
// logged and delivered on the Failures channel when someone is listening.
type Runner struct {
	log      zerolog.Logger
	sem      *semaphore.Weighted
	timeout  time.Duration
	wg       sync.WaitGroup
	failures chan Failure
}

// Options tune a Runner. Zero values pick defaults.
type Options struct {
	Concurrency int64
	Timeout     time.Duration
	// FailureBuffer sizes the Failures channel; failures beyond it are dropped after logging.
	FailureBuffer int
}

// NewRunner constructs a Runner.
func NewRunner(log zerolog.Logger, opt Options) *Runner {
	if opt.Concurrency <= 0 {
		opt.Concurrency = 16
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 30 * time.Second
	}
	if opt.FailureBuffer <= 0 {
		opt.FailureBuffer = 64
	}
	return &Runner{
		log:      log,
		sem:      semaphore.NewWeighted(opt.Concurrency),
		timeout:  opt.Timeout,
		failures: make(chan Failure, opt.FailureBuffer),
	}
}

// Failures exposes task errors separately from any primary operation result.
func (r *Runner) Failures() <-chan Failure {
	return r.failures
}

// Go schedules fn. The task keeps the values of ctx (request id, trace) but not
// its cancellation, and gets its own timeout.
func (r *Runner) Go(ctx context.Context, name string, fn func(context.Context) error) {
	taskCtx := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		if err := r.sem.Acquire(taskCtx, 1); err != nil {
			r.fail(name, err)
			return
		}
		defer r.sem.Release(1)

		runCtx, cancel := context.WithTimeout(taskCtx, r.timeout)
		defer cancel()

		if err := r.run(runCtx, fn); err != nil {
			r.fail(name, err)
		}
	}()
}

// Wait blocks until every scheduled task has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	return fn(ctx)
}

func (r *Runner) fail(name string, err error) {
	r.log.Warn().Err(err).Str("task", name).Msg("background task failed")
	select {
	case r.failures <- Failure{Name: name, Err: err}:
	default:
	}
}

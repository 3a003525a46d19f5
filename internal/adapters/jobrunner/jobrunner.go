// Package jobrunner executes crew jobs in the background and records their lifecycle in the job store.
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/target/crew-api/internal/core"
	"github.com/target/crew-api/internal/domain/model"
	apperrors "github.com/target/crew-api/internal/errors"
	"github.com/target/crew-api/internal/observability/metrics"
	"github.com/target/crew-api/internal/observability/notify"
	"github.com/target/crew-api/internal/observability/statsd"
	"github.com/target/crew-api/internal/service/failurenotifier"
)

// DefaultConcurrency is the number of jobs executed at once when RunnerOptions.Concurrency is unset.
const DefaultConcurrency = 4

// ErrRunnerClosed is returned by Dispatch once Shutdown has begun.
var ErrRunnerClosed = apperrors.Unavailable("job runner is shut down")

// RunnerOptions configures the job runner.
type RunnerOptions struct {
	Store  core.JobStore // Required
	Task   core.Task     // Required: the work performed for every job
	Logger *slog.Logger

	// Concurrency caps how many tasks run at once; extra jobs wait in PENDING. Defaults to 4.
	Concurrency int
	// JobTimeout bounds a single task invocation. Zero means no limit.
	JobTimeout time.Duration

	Metrics         statsd.Sink
	FailureNotifier *failurenotifier.Service
}

// Runner launches one goroutine per dispatched job and drives it from PENDING to
// a terminal state. Every dispatched job reaches COMPLETE or ERROR, including
// jobs interrupted by Shutdown.
type Runner struct {
	store      core.JobStore
	task       core.Task
	logger     *slog.Logger
	metrics    statsd.Sink
	notifier   *failurenotifier.Service
	slots      *semaphore.Weighted
	workers    int
	jobTimeout time.Duration

	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
	jobs   sync.WaitGroup
	alerts sync.WaitGroup
}

var _ core.Dispatcher = (*Runner)(nil)

// NewRunner constructs a runner. Call Shutdown to release it.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Store == nil {
		return nil, errors.New("job store is required")
	}
	if opts.Task == nil {
		return nil, errors.New("task is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = DefaultConcurrency
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		store:      opts.Store,
		task:       opts.Task,
		logger:     logger.With("component", "job_runner"),
		metrics:    opts.Metrics,
		notifier:   opts.FailureNotifier,
		slots:      semaphore.NewWeighted(int64(workers)),
		workers:    workers,
		jobTimeout: max(opts.JobTimeout, 0),
		baseCtx:    ctx,
		cancel:     cancel,
	}, nil
}

// Dispatch starts the work for a PENDING job without waiting for it.
func (r *Runner) Dispatch(id string, req model.CrewRequest) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRunnerClosed
	}
	r.jobs.Add(1)
	r.mu.Unlock()

	req = model.CrewRequest{
		Companies: slices.Clone(req.Companies),
		Positions: slices.Clone(req.Positions),
	}
	go r.run(id, req)
	return nil
}

// Shutdown stops accepting jobs, cancels the running ones and waits until every
// dispatched job has been finalized and its failure notifications delivered, or ctx expires.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cancel()

	done := make(chan struct{})
	go func() {
		r.jobs.Wait()
		r.alerts.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.InfoContext(ctx, "job runner stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("job runner shutdown: %w", ctx.Err())
	}
}

func (r *Runner) run(id string, req model.CrewRequest) {
	defer r.jobs.Done()

	logger := r.logger.With("job_id", id)
	queuedAt := time.Now()
	// Store writes must land even after the runner context is cancelled.
	storeCtx := context.WithoutCancel(r.baseCtx)

	if err := r.slots.Acquire(r.baseCtx, 1); err != nil {
		logger.WarnContext(storeCtx, "crew cancelled before start", "error", err)
		if r.start(storeCtx, logger, id, queuedAt) {
			r.finish(storeCtx, logger, id, req, time.Now(), model.Failed(cancelledErr(err)))
		}
		return
	}
	defer r.slots.Release(1)

	if !r.start(storeCtx, logger, id, queuedAt) {
		return
	}
	startedAt := time.Now()

	jobCtx, cancel := r.jobContext()
	defer cancel()

	output, err := r.invoke(jobCtx, logger, id, req)
	outcome := model.Succeeded(output)
	if err != nil {
		outcome = model.Failed(describeFailure(jobCtx, err, r.jobTimeout))
	}
	r.finish(storeCtx, logger, id, req, startedAt, outcome)
}

func (r *Runner) jobContext() (context.Context, context.CancelFunc) {
	if r.jobTimeout > 0 {
		return context.WithTimeout(r.baseCtx, r.jobTimeout)
	}
	return context.WithCancel(r.baseCtx)
}

// start moves the job to RUNNING. It reports false when the job cannot run.
func (r *Runner) start(ctx context.Context, logger *slog.Logger, id string, queuedAt time.Time) bool {
	_, err := r.store.Mutate(ctx, id, func(j *model.Job) error {
		return j.Start(time.Now().UTC())
	})
	if err != nil {
		logger.ErrorContext(ctx, "start job error", "error", err)
		metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
			Transition: metrics.TransitionStarted,
			Result:     metrics.ResultError,
			Err:        err,
		})
		return false
	}
	logger.DebugContext(ctx, "crew started", "queue_wait", time.Since(queuedAt))
	metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
		Transition: metrics.TransitionStarted,
		Result:     metrics.ResultSuccess,
		Duration:   time.Since(queuedAt),
	})
	return true
}

// invoke runs the task, converting a panic into an error.
func (r *Runner) invoke(ctx context.Context, logger *slog.Logger, id string, req model.CrewRequest) (output string, err error) {
	defer func() {
		if p := recover(); p != nil {
			logger.ErrorContext(ctx, "crew task panicked", "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("crew panicked: %v", p)
		}
	}()
	return r.task.Run(ctx, req, r.reporter(id))
}

func (r *Runner) reporter(id string) core.ProgressReporter {
	return core.ProgressFunc(func(ctx context.Context, data string) error {
		if err := r.store.AppendEvent(context.WithoutCancel(ctx), id, data); err != nil {
			return err
		}
		metrics.EmitProgress(r.metrics)
		return nil
	})
}

// finish performs the single terminal write for the job.
func (r *Runner) finish(
	ctx context.Context,
	logger *slog.Logger,
	id string,
	req model.CrewRequest,
	startedAt time.Time,
	outcome model.Outcome,
) {
	completedAt := time.Now()
	_, err := r.store.Mutate(ctx, id, func(j *model.Job) error {
		return j.Finish(outcome, completedAt.UTC())
	})
	if err != nil {
		logger.ErrorContext(ctx, "finish job error", "error", err, "outcome", outcome.Status())
		metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
			Transition: metrics.TransitionFinished,
			Result:     metrics.ResultError,
			Err:        err,
		})
		return
	}

	duration := completedAt.Sub(startedAt)
	metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
		Transition: metrics.TransitionFinished,
		Result:     metrics.ResultFor(outcome.Status()),
		Duration:   duration,
		Err:        outcome.Err(),
	})

	if outcome.Err() == nil {
		logger.InfoContext(ctx, "crew complete", "duration", duration)
		return
	}
	logger.WarnContext(ctx, "crew failed", "duration", duration, "error", outcome.Err())
	r.notifyFailure(id, req, completedAt, duration, outcome.Err())
}

func (r *Runner) notifyFailure(id string, req model.CrewRequest, at time.Time, duration time.Duration, cause error) {
	if !r.notifier.Enabled() {
		return
	}
	payload := notify.NewJobFailure(id, req, cause, at, duration)
	payload.Metadata = map[string]string{"component": "job_runner", "workers": strconv.Itoa(r.workers)}
	r.alerts.Add(1)
	go func() {
		defer r.alerts.Done()
		r.notifier.NotifyJobFailure(context.Background(), payload)
	}()
}

func cancelledErr(err error) error {
	return fmt.Errorf("crew cancelled: %w", err)
}

// describeFailure labels failures caused by the job context so the stored
// message says whether the job timed out or was interrupted.
func describeFailure(ctx context.Context, err error, timeout time.Duration) error {
	switch ctxErr := ctx.Err(); {
	case ctxErr == nil:
		return err
	case errors.Is(ctxErr, context.DeadlineExceeded):
		return fmt.Errorf("crew timed out after %s: %w", timeout, err)
	default:
		return cancelledErr(err)
	}
}

// Package service holds the transport-agnostic business logic of the crew API.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/target/crew-api/internal/core"
	"github.com/target/crew-api/internal/domain/model"
	apperrors "github.com/target/crew-api/internal/errors"
	"github.com/target/crew-api/internal/observability/metrics"
	"github.com/target/crew-api/internal/observability/statsd"
)

// DefaultIdempotencyTTL is how long an idempotency key stays bound to its job.
const DefaultIdempotencyTTL = 24 * time.Hour

// maxIdempotencyKeyLen caps client-supplied keys before they reach the idempotency store.
const maxIdempotencyKeyLen = 255

const (
	// replayLookupAttempts and replayLookupDelay bound how long a replay waits for a job
	// whose key was reserved by a submission that has not created it yet.
	replayLookupAttempts = 5
	replayLookupDelay    = 10 * time.Millisecond
	// rebindAttempts bounds how often a key bound to a vanished job is reclaimed.
	rebindAttempts = 3
)

// IDGenerator produces unique job identifiers.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator generates random (version 4) UUID job ids.
type UUIDGenerator struct{}

// NewID implements IDGenerator.
func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}

// IDGeneratorFunc adapts a function to the IDGenerator interface.
type IDGeneratorFunc func() string

// NewID implements IDGenerator.
func (f IDGeneratorFunc) NewID() string {
	return f()
}

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Store          core.JobStore         // Required: job store
	Dispatcher     core.Dispatcher       // Required: launches the work for created jobs
	IDGenerator    IDGenerator           // Optional: defaults to UUIDGenerator
	Idempotency    core.IdempotencyStore // Optional: enables Idempotency-Key replay
	IdempotencyTTL time.Duration         // Optional: defaults to DefaultIdempotencyTTL
	Metrics        statsd.Sink           // Optional: submission metrics
	Logger         *slog.Logger          // Optional: structured logger
}

// SubmitResult describes an accepted submission.
type SubmitResult struct {
	JobID string
	// Replayed is true when the idempotency key matched an earlier submission
	// and no new job was created.
	Replayed bool
}

// JobService accepts crew submissions and exposes job snapshots.
//
// Submit returns as soon as the job is registered and its work dispatched; it
// never waits for the work itself.
type JobService struct {
	store          core.JobStore
	dispatcher     core.Dispatcher
	ids            IDGenerator
	idempotency    core.IdempotencyStore
	idempotencyTTL time.Duration
	metrics        statsd.Sink
	logger         *slog.Logger
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Store == nil {
		return nil, errors.New("JobStore is required")
	}
	if opts.Dispatcher == nil {
		return nil, errors.New("Dispatcher is required")
	}

	ids := opts.IDGenerator
	if ids == nil {
		ids = UUIDGenerator{}
	}
	ttl := opts.IdempotencyTTL
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "job_service")
	logger.Debug("JobService initialized",
		"idempotency", opts.Idempotency != nil,
		"idempotency_ttl", ttl,
	)

	return &JobService{
		store:          opts.Store,
		dispatcher:     opts.Dispatcher,
		ids:            ids,
		idempotency:    opts.Idempotency,
		idempotencyTTL: ttl,
		metrics:        opts.Metrics,
		logger:         logger,
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// Submit validates the request, registers a PENDING job and dispatches its work.
// A non-empty idempotencyKey already bound to a job returns that job instead.
func (s *JobService) Submit(ctx context.Context, req *model.CrewRequest, idempotencyKey string) (SubmitResult, error) {
	if req != nil {
		req.Normalize()
	}
	if err := req.Validate(); err != nil {
		return SubmitResult{}, err
	}

	key := strings.TrimSpace(idempotencyKey)
	if len(key) > maxIdempotencyKeyLen {
		return SubmitResult{}, apperrors.ValidationField("idempotency_key",
			fmt.Sprintf("idempotency key must be at most %d characters", maxIdempotencyKeyLen))
	}

	id := s.ids.NewID()

	reserved := false
	if key != "" && s.idempotency != nil {
		replayed, err := s.reserve(ctx, key, id)
		if err != nil {
			return SubmitResult{}, err
		}
		if replayed != "" {
			s.logger.InfoContext(ctx, "submission replayed", "job_id", replayed)
			s.emit(metrics.ResultSuccess, true)
			return SubmitResult{JobID: replayed, Replayed: true}, nil
		}
		reserved = true
	}

	// Cleanup after a failure must land even if the caller has gone away.
	cleanupCtx := context.WithoutCancel(ctx)

	if _, err := s.store.Create(ctx, id); err != nil {
		s.release(cleanupCtx, key, reserved)
		s.emit(metrics.ResultError, false)
		return SubmitResult{}, fmt.Errorf("create job: %w", err)
	}

	if err := s.dispatcher.Dispatch(id, *req); err != nil {
		s.release(cleanupCtx, key, reserved)
		s.failUndispatched(cleanupCtx, id, err)
		s.emit(metrics.ResultError, false)
		if apperrors.GetCode(err) != "" {
			return SubmitResult{}, err
		}
		return SubmitResult{}, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "job runner unavailable")
	}

	s.logger.InfoContext(ctx, "crew job submitted",
		"job_id", id,
		"companies", len(req.Companies),
		"positions", len(req.Positions),
	)
	s.emit(metrics.ResultSuccess, false)
	return SubmitResult{JobID: id}, nil
}

// reserve binds key to id. It returns the id of an existing job when the key already
// belongs to one, or "" when id now owns the key. A key bound to a job this store does
// not hold (left over from a previous process) is taken over by id.
func (s *JobService) reserve(ctx context.Context, key, id string) (string, error) {
	for range rebindAttempts {
		bound, created, err := s.idempotency.Reserve(ctx, key, id, s.idempotencyTTL)
		if err != nil {
			return "", apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "idempotency store unavailable")
		}
		if created {
			return "", nil
		}

		exists, err := s.awaitJob(ctx, bound)
		if err != nil {
			return "", err
		}
		if exists {
			return bound, nil
		}

		s.logger.WarnContext(ctx, "idempotency key bound to unknown job, rebinding",
			"stale_job_id", bound,
			"job_id", id,
		)
		swapped, err := s.idempotency.Replace(ctx, key, bound, id, s.idempotencyTTL)
		if err != nil {
			return "", apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "idempotency store unavailable")
		}
		if swapped {
			return "", nil
		}
		// Someone else rebound or released the key first; look again.
	}
	return "", apperrors.Unavailable("idempotency key is contended, retry later")
}

// awaitJob reports whether the store holds id, giving a concurrent submission that
// reserved the key a short window to create its job.
func (s *JobService) awaitJob(ctx context.Context, id string) (bool, error) {
	for attempt := range replayLookupAttempts {
		_, err := s.store.Get(ctx, id)
		switch {
		case err == nil:
			return true, nil
		case !apperrors.IsNotFound(err):
			return false, fmt.Errorf("look up replayed job: %w", err)
		}
		if attempt == replayLookupAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return false, apperrors.FromContext(ctx.Err())
		case <-time.After(replayLookupDelay):
		}
	}
	return false, nil
}

// Get returns a snapshot of the job or a NotFound error.
func (s *JobService) Get(ctx context.Context, id string) (*model.Job, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.ValidationField("job_id", "job id is required")
	}
	return s.store.Get(ctx, id)
}

// Stats returns the number of jobs per status.
func (s *JobService) Stats(ctx context.Context) model.JobStats {
	stats := s.store.Stats(ctx)
	metrics.EmitStoreStats(s.metrics, stats)
	return stats
}

// failUndispatched finishes a job whose work could never be launched so it does
// not stay PENDING forever. The job still passes through RUNNING. ctx must not be
// cancellable, the store refuses writes on a done context.
func (s *JobService) failUndispatched(ctx context.Context, id string, cause error) {
	_, err := s.store.Mutate(ctx, id, func(j *model.Job) error {
		now := time.Now().UTC()
		if err := j.Start(now); err != nil {
			return err
		}
		return j.Finish(model.Failed(fmt.Errorf("crew not started: %w", cause)), now)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to finalize undispatched job", "job_id", id, "error", err)
	}
}

func (s *JobService) release(ctx context.Context, key string, reserved bool) {
	if !reserved {
		return
	}
	if err := s.idempotency.Release(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "failed to release idempotency key", "error", err)
	}
}

func (s *JobService) emit(result string, replayed bool) {
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Transition: metrics.TransitionSubmitted,
		Result:     result,
		Replayed:   replayed,
	})
}

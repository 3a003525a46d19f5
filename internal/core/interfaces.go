package core

import (
	"context"
	"time"

	"github.com/target/crew-api/internal/domain/model"
)

// This file contains the port definitions shared by the service layer, the job runner
// and the data layer. Implementations live in internal/data and internal/adapters.

// JobStore is the single source of truth for job records. It is safe for concurrent use:
// mutations of one job are serialized, mutations of different jobs are independent, and
// readers always receive a consistent snapshot.
type JobStore interface {
	// Create inserts a PENDING job. It fails with a Conflict error if id already exists.
	Create(ctx context.Context, id string) (*model.Job, error)
	// Get returns a snapshot of the job or a NotFound error.
	Get(ctx context.Context, id string) (*model.Job, error)
	// Mutate applies fn under exclusive access to the job and returns the committed snapshot.
	// Changes made by fn are discarded when it returns an error.
	Mutate(ctx context.Context, id string, fn func(*model.Job) error) (*model.Job, error)
	// AppendEvent appends one timestamped event to the job's log.
	AppendEvent(ctx context.Context, id, data string) error
	// Stats counts jobs per status.
	Stats(ctx context.Context) model.JobStats
}

// ProgressReporter lets a running task record intermediate milestones on its job.
type ProgressReporter interface {
	Report(ctx context.Context, data string) error
}

// ProgressFunc adapts a function to the ProgressReporter interface.
type ProgressFunc func(ctx context.Context, data string) error

// Report implements ProgressReporter.
func (f ProgressFunc) Report(ctx context.Context, data string) error {
	if f == nil {
		return nil
	}
	return f(ctx, data)
}

// Task is the opaque long-running work performed for a crew job. The returned output is
// stored as the job result; a returned error marks the job as failed.
type Task interface {
	Run(ctx context.Context, req model.CrewRequest, progress ProgressReporter) (string, error)
}

// TaskFunc adapts a function to the Task interface (useful for tests).
type TaskFunc func(ctx context.Context, req model.CrewRequest, progress ProgressReporter) (string, error)

// Run implements Task.
func (f TaskFunc) Run(ctx context.Context, req model.CrewRequest, progress ProgressReporter) (string, error) {
	return f(ctx, req, progress)
}

// Dispatcher launches the work for a freshly created job without waiting for it.
type Dispatcher interface {
	Dispatch(id string, req model.CrewRequest) error
}

// IdempotencyStore remembers which job a client-supplied idempotency key produced.
type IdempotencyStore interface {
	// Reserve binds key to jobID unless the key is already bound. It returns the bound
	// job id and whether this call created the binding.
	Reserve(ctx context.Context, key, jobID string, ttl time.Duration) (string, bool, error)
	// Release removes a binding created by Reserve, used when job creation fails afterwards.
	Release(ctx context.Context, key string) error
	// Replace rebinds key from oldJobID to newJobID only while key is still bound to
	// oldJobID. It reports whether the binding was swapped.
	Replace(ctx context.Context, key, oldJobID, newJobID string, ttl time.Duration) (bool, error)
}

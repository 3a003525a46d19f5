// Package data provides the in-memory job store and the idempotency stores backing the crew API.
package data

import (
	"context"
	"sync"

	"github.com/target/crew-api/internal/core"
	"github.com/target/crew-api/internal/domain/model"
	apperrors "github.com/target/crew-api/internal/errors"
)

// jobEntry owns one job record and the lock that serializes its mutations.
type jobEntry struct {
	mu  sync.Mutex
	job *model.Job
}

// JobStoreOptions configures a JobStore.
type JobStoreOptions struct {
	// TimeProvider stamps creation times and events (optional, defaults to real time).
	TimeProvider TimeProvider
}

// JobStore is an in-memory registry of crew jobs.
//
// The map lock only protects the id→record mapping; every record carries its own
// mutex, so work on different jobs never contends and a single job's mutations are
// strictly serialized. Snapshots are deep copies taken under the record lock.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*jobEntry
	time TimeProvider
}

var _ core.JobStore = (*JobStore)(nil)

// NewJobStore creates an empty JobStore.
func NewJobStore(opts JobStoreOptions) *JobStore {
	tp := opts.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &JobStore{
		jobs: make(map[string]*jobEntry),
		time: tp,
	}
}

// Create inserts a new PENDING job. Existing ids are never overwritten.
func (s *JobStore) Create(_ context.Context, id string) (*model.Job, error) {
	if id == "" {
		return nil, ErrJobIDRequired
	}

	entry := &jobEntry{job: model.NewJob(id, s.time.Now())}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[id]; exists {
		return nil, apperrors.Conflictf("job %s already exists", id)
	}
	s.jobs[id] = entry
	return entry.job.Clone(), nil
}

// Get returns a consistent snapshot of the job.
func (s *JobStore) Get(_ context.Context, id string) (*model.Job, error) {
	entry, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.job.Clone(), nil
}

// Mutate applies fn to a working copy of the job under the job's lock and commits
// the copy only when fn succeeds, so readers never observe a partial update.
func (s *JobStore) Mutate(ctx context.Context, id string, fn func(*model.Job) error) (*model.Job, error) {
	if fn == nil {
		return nil, apperrors.Internal("mutation function is required")
	}
	entry, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, apperrors.FromContext(err)
	}

	working := entry.job.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	if working.ID != id {
		return nil, apperrors.Internalf("mutation changed job id %s to %s", id, working.ID)
	}
	entry.job = working
	return working.Clone(), nil
}

// AppendEvent appends one event stamped with the current time.
func (s *JobStore) AppendEvent(ctx context.Context, id, data string) error {
	_, err := s.Mutate(ctx, id, func(j *model.Job) error {
		return j.AppendEvent(data, s.time.Now())
	})
	return err
}

// Stats counts jobs per status.
func (s *JobStore) Stats(_ context.Context) model.JobStats {
	s.mu.RLock()
	entries := make([]*jobEntry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var stats model.JobStats
	for _, e := range entries {
		e.mu.Lock()
		stats.Add(e.job.Status)
		e.mu.Unlock()
	}
	return stats
}

// Len returns the number of jobs in the store.
func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *JobStore) lookup(id string) (*jobEntry, error) {
	s.mu.RLock()
	entry, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, apperrors.NotFoundf("job %s not found", id)
	}
	return entry, nil
}

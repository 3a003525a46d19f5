// Package model defines the core data types shared by the crew job store, runner and API.
package model

import (
	"errors"
	"fmt"
	"time"
)

// JobStatus represents the current lifecycle state of a job.
type JobStatus string

const (
	// JobStatusPending indicates a job was accepted but its work has not started.
	JobStatusPending JobStatus = "PENDING"
	// JobStatusRunning indicates the job's work is in progress.
	JobStatusRunning JobStatus = "RUNNING"
	// JobStatusComplete indicates the work finished successfully.
	JobStatusComplete JobStatus = "COMPLETE"
	// JobStatusError indicates the work failed.
	JobStatusError JobStatus = "ERROR"
)

// Event texts recorded by the runner for lifecycle milestones.
const (
	EventCrewStarted  = "Crew started"
	EventCrewComplete = "Crew complete"
	eventErrorPrefix  = "An error occurred: "
)

var (
	// ErrInvalidTransition is returned when a status change is not allowed by the job state machine.
	ErrInvalidTransition = errors.New("invalid job status transition")
	// ErrJobFinalized is returned when an event is appended after the terminal event.
	ErrJobFinalized = errors.New("job already reached a terminal state")
)

// Valid returns true if the JobStatus is one of the known states.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusRunning || s == JobStatusComplete || s == JobStatusError
}

// IsTerminal reports whether no further transition is possible from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusComplete || s == JobStatusError
}

// Rank orders statuses along the lifecycle. COMPLETE and ERROR share the final rank.
func (s JobStatus) Rank() int {
	switch s {
	case JobStatusPending:
		return 0
	case JobStatusRunning:
		return 1
	case JobStatusComplete, JobStatusError:
		return 2
	default:
		return -1
	}
}

// CanTransition reports whether the state machine allows moving from s to next.
// PENDING -> RUNNING -> {COMPLETE | ERROR}; nothing leaves a terminal state.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusRunning
	case JobStatusRunning:
		return next == JobStatusComplete || next == JobStatusError
	default:
		return false
	}
}

// Event is one timestamped entry of a job's audit trail.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      string    `json:"data"`
}

// Job is the record of one asynchronous unit of work and its history.
type Job struct {
	ID          string     `json:"job_id"`
	Status      JobStatus  `json:"status"`
	Result      Result     `json:"result"`
	Events      []Event    `json:"events"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewJob returns a PENDING job with an empty event log and no result.
func NewJob(id string, now time.Time) *Job {
	return &Job{
		ID:        id,
		Status:    JobStatusPending,
		Events:    []Event{},
		CreatedAt: now,
	}
}

// Clone returns a deep copy that shares no mutable memory with j.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	cp.Events = make([]Event, len(j.Events))
	copy(cp.Events, j.Events)
	cp.Result = j.Result.clone()
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// AppendEvent records a progress entry. Entries cannot follow the terminal event.
func (j *Job) AppendEvent(data string, now time.Time) error {
	if j.Status.IsTerminal() {
		return ErrJobFinalized
	}
	j.Events = append(j.Events, Event{Timestamp: now, Data: data})
	return nil
}

// Start moves the job from PENDING to RUNNING and records the start event.
func (j *Job) Start(now time.Time) error {
	if err := j.transition(JobStatusRunning); err != nil {
		return err
	}
	j.StartedAt = &now
	j.Events = append(j.Events, Event{Timestamp: now, Data: EventCrewStarted})
	return nil
}

// Finish performs the single terminal write derived from the outcome: status,
// result and the terminal event change together.
func (j *Job) Finish(outcome Outcome, now time.Time) error {
	if err := j.transition(outcome.Status()); err != nil {
		return err
	}
	j.Result = outcome.Result()
	j.CompletedAt = &now
	j.Events = append(j.Events, Event{Timestamp: now, Data: outcome.EventData()})
	return nil
}

func (j *Job) transition(next JobStatus) error {
	if !j.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, next)
	}
	j.Status = next
	return nil
}

// Outcome is the result of invoking the work task. A job's terminal state is
// computed from exactly one Outcome, so COMPLETE and ERROR are mutually exclusive.
type Outcome struct {
	output string
	err    error
}

// Succeeded returns an outcome for work that returned output normally.
func Succeeded(output string) Outcome {
	return Outcome{output: output}
}

// Failed returns an outcome for work that failed. A nil error is treated as an unknown failure.
func Failed(err error) Outcome {
	if err == nil {
		err = errors.New("unknown failure")
	}
	return Outcome{err: err}
}

// Err returns the work failure, or nil on success.
func (o Outcome) Err() error {
	return o.err
}

// Status returns the terminal status the outcome maps to.
func (o Outcome) Status() JobStatus {
	if o.err != nil {
		return JobStatusError
	}
	return JobStatusComplete
}

// Result returns the job result the outcome maps to.
func (o Outcome) Result() Result {
	if o.err != nil {
		return TextResult(o.err.Error())
	}
	return NewResult(o.output)
}

// EventData returns the text of the terminal event.
func (o Outcome) EventData() string {
	if o.err != nil {
		return eventErrorPrefix + o.err.Error()
	}
	return EventCrewComplete
}

// JobStats counts jobs in each state.
type JobStats struct {
	Pending  int `json:"pending"`
	Running  int `json:"running"`
	Complete int `json:"complete"`
	Error    int `json:"error"`
}

// Total returns the number of jobs across all states.
func (s JobStats) Total() int {
	return s.Pending + s.Running + s.Complete + s.Error
}

// Add counts one job in the given state.
func (s *JobStats) Add(status JobStatus) {
	switch status {
	case JobStatusPending:
		s.Pending++
	case JobStatusRunning:
		s.Running++
	case JobStatusComplete:
		s.Complete++
	case JobStatusError:
		s.Error++
	}
}

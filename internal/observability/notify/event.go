// Package notify defines what a failed crew job reports to alerting integrations and
// the sink contract those integrations implement.
package notify

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/target/crew-api/internal/domain/model"
	obserrors "github.com/target/crew-api/internal/observability/errors"
)

// Severity of a crew failure as shown by sinks.
const (
	// SeverityCritical marks a crew whose research task failed.
	SeverityCritical = "critical"
	// SeverityWarning marks a crew that was cut short by cancellation or a deadline,
	// usually a shutdown or RUNNER_JOB_TIMEOUT.
	SeverityWarning = "warning"
)

// JobFailurePayload describes one crew job that ended in ERROR: which companies and
// positions it was researching, why it failed and how long it ran.
type JobFailurePayload struct {
	JobID      string
	Companies  []string
	Positions  []string
	Error      string
	ErrorClass string
	Severity   string
	OccurredAt time.Time
	Duration   time.Duration
	Metadata   map[string]string
}

// NewJobFailure builds the payload for a crew that failed with cause. The request
// slices are copied so the payload can outlive the job.
func NewJobFailure(jobID string, req model.CrewRequest, cause error, at time.Time, ran time.Duration) JobFailurePayload {
	p := JobFailurePayload{
		JobID:      jobID,
		Companies:  slices.Clone(req.Companies),
		Positions:  slices.Clone(req.Positions),
		Severity:   SeverityFor(cause),
		OccurredAt: at,
		Duration:   ran,
	}
	if cause != nil {
		p.Error = cause.Error()
		p.ErrorClass = obserrors.Classify(cause)
	}
	return p
}

// SeverityFor grades a crew failure. Interrupted crews are warnings, the rest critical.
func SeverityFor(cause error) string {
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return SeverityWarning
	}
	return SeverityCritical
}

// Sink delivers crew failures to one destination (Slack, paging, ...).
type Sink interface {
	SendJobFailure(ctx context.Context, payload JobFailurePayload) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, payload JobFailurePayload) error

// SendJobFailure implements Sink. A nil SinkFunc drops the payload.
func (f SinkFunc) SendJobFailure(ctx context.Context, payload JobFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}

// Package metrics emits the crew job lifecycle metrics through a statsd.Sink.
package metrics

import (
	"time"

	"github.com/target/crew-api/internal/domain/model"
	obserrors "github.com/target/crew-api/internal/observability/errors"
	"github.com/target/crew-api/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Transition names used in the "transition" tag.
const (
	TransitionSubmitted = "submitted"
	TransitionStarted   = "started"
	TransitionFinished  = "finished"
)

// Metric names.
const (
	MetricJobTransition = "job.transition"
	MetricJobDuration   = "job.duration"
	MetricJobQueueWait  = "job.queue_wait"
	MetricJobsByStatus  = "jobs.by_status"
	MetricTaskProgress  = "job.progress_event"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
	// Replayed marks a submission answered from an idempotency key.
	Replayed bool
}

// EmitJobLifecycle emits standardised job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.Transition == TransitionSubmitted {
		tags["replayed"] = boolTag(in.Replayed)
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count(MetricJobTransition, 1, tags)

	if in.Duration > 0 {
		name := MetricJobDuration
		if in.Transition == TransitionStarted {
			name = MetricJobQueueWait
		}
		sink.Timing(name, in.Duration, CloneTags(tags))
	}
}

// EmitProgress counts one progress event reported by a running task.
func EmitProgress(sink statsd.Sink) {
	if sink == nil {
		return
	}
	sink.Count(MetricTaskProgress, 1, nil)
}

// EmitStoreStats publishes one gauge per job status.
func EmitStoreStats(sink statsd.Sink, stats model.JobStats) {
	if sink == nil {
		return
	}
	for status, n := range map[model.JobStatus]int{
		model.JobStatusPending:  stats.Pending,
		model.JobStatusRunning:  stats.Running,
		model.JobStatusComplete: stats.Complete,
		model.JobStatusError:    stats.Error,
	} {
		sink.Gauge(MetricJobsByStatus, float64(n), map[string]string{"status": string(status)})
	}
}

// ResultFor maps a terminal job status to a result tag.
func ResultFor(status model.JobStatus) string {
	switch status {
	case model.JobStatusComplete:
		return ResultSuccess
	case model.JobStatusError:
		return ResultError
	default:
		return ResultNoop
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

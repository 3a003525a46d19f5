// Package failurenotifier fans crew job failures out to the configured alert sinks.
package failurenotifier

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/crew-api/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// SkipErrorClasses suppresses notifications for the listed error classes,
	// e.g. "canceled" for jobs interrupted by a shutdown.
	SkipErrorClasses []string
	// DeliveryTimeout bounds each sink delivery (default 10s).
	DeliveryTimeout time.Duration
}

// Service dispatches failure events to all registered sinks.
type Service struct {
	logger      *slog.Logger
	sinks       []SinkRegistration
	skipClasses []string
	timeout     time.Duration
}

// NewService constructs a failure notifier.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		if entry.Name == "" {
			entry.Name = "sink"
		}
		sinks = append(sinks, entry)
	}

	timeout := opts.DeliveryTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Service{
		logger:      logger.With("component", "failure_notifier"),
		sinks:       sinks,
		skipClasses: slices.Clone(opts.SkipErrorClasses),
		timeout:     timeout,
	}
}

// NotifyJobFailure fans the payload out to every sink and waits for all deliveries.
// Delivery errors are logged, never returned: a broken sink must not affect the job.
func (s *Service) NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload) {
	if s == nil || len(s.sinks) == 0 {
		return
	}

	if payload.ErrorClass != "" && slices.Contains(s.skipClasses, payload.ErrorClass) {
		s.logger.DebugContext(ctx, "skipping failure notification",
			"job_id", payload.JobID,
			"error_class", payload.ErrorClass,
		)
		return
	}

	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}

	var g errgroup.Group
	for _, entry := range s.sinks {
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			if err := entry.Sink.SendJobFailure(sendCtx, payload); err != nil {
				s.logger.ErrorContext(ctx, "failure notifier delivery error",
					"sink", entry.Name,
					"job_id", payload.JobID,
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}

// Package util holds small formatting helpers shared by the command-line tools.
package util //nolint:revive // shared display helpers

import (
	"time"

	"github.com/target/crew-api/internal/domain/model"
)

// FormatDuration formats a duration for display. Zero or negative durations render as "-",
// everything else is truncated to milliseconds.
func FormatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Millisecond:
		return d.String()
	default:
		return d.Truncate(time.Millisecond).String()
	}
}

// JobElapsed reports how long a job has been running, or ran in total once it finished.
// It is zero for a job that has not started.
func JobElapsed(job *model.Job, now time.Time) time.Duration {
	if job == nil || job.StartedAt == nil {
		return 0
	}
	end := now
	if job.CompletedAt != nil {
		end = *job.CompletedAt
	}
	return end.Sub(*job.StartedAt)
}

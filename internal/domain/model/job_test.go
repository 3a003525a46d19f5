//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestJobStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobStatusPending, JobStatusRunning, true},
		{JobStatusPending, JobStatusComplete, false},
		{JobStatusPending, JobStatusError, false},
		{JobStatusRunning, JobStatusComplete, true},
		{JobStatusRunning, JobStatusError, true},
		{JobStatusRunning, JobStatusPending, false},
		{JobStatusComplete, JobStatusError, false},
		{JobStatusError, JobStatusComplete, false},
		{JobStatusComplete, JobStatusRunning, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
			if tt.want {
				assert.Greater(t, tt.to.Rank(), tt.from.Rank())
			}
		})
	}
}

func TestJobStatus_Valid(t *testing.T) {
	assert.True(t, JobStatusPending.Valid())
	assert.True(t, JobStatusError.Valid())
	assert.False(t, JobStatus("pending").Valid())
	assert.Equal(t, -1, JobStatus("bogus").Rank())
}

func TestJob_Lifecycle_Success(t *testing.T) {
	job := NewJob("job-1", testNow)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Empty(t, job.Events)
	assert.True(t, job.Result.IsAbsent())

	require.NoError(t, job.Start(testNow.Add(time.Second)))
	require.NoError(t, job.AppendEvent("researching Acme", testNow.Add(2*time.Second)))
	require.NoError(t, job.Finish(Succeeded(`{"report":"ok"}`), testNow.Add(3*time.Second)))

	assert.Equal(t, JobStatusComplete, job.Status)
	assert.Equal(t, ResultStructured, job.Result.Kind())
	assert.JSONEq(t, `{"report":"ok"}`, string(job.Result.Structured()))
	require.Len(t, job.Events, 3)
	assert.Equal(t, EventCrewStarted, job.Events[0].Data)
	assert.Equal(t, EventCrewComplete, job.Events[2].Data)
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.CompletedAt)
}

func TestJob_Lifecycle_Failure(t *testing.T) {
	job := NewJob("job-1", testNow)
	require.NoError(t, job.Start(testNow))
	require.NoError(t, job.Finish(Failed(errors.New("llm quota exceeded")), testNow))

	assert.Equal(t, JobStatusError, job.Status)
	assert.Equal(t, ResultText, job.Result.Kind())
	assert.Equal(t, "llm quota exceeded", job.Result.Text())
	assert.Equal(t, "An error occurred: llm quota exceeded", job.Events[len(job.Events)-1].Data)
}

func TestJob_SecondTerminalWriteIsRejected(t *testing.T) {
	job := NewJob("job-1", testNow)
	require.NoError(t, job.Start(testNow))
	require.NoError(t, job.Finish(Failed(errors.New("boom")), testNow))

	err := job.Finish(Succeeded("late"), testNow)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, JobStatusError, job.Status)
	assert.Equal(t, "boom", job.Result.Text())
	assert.Len(t, job.Events, 2)
}

func TestJob_FinishWithoutStartIsRejected(t *testing.T) {
	job := NewJob("job-1", testNow)
	require.ErrorIs(t, job.Finish(Succeeded("x"), testNow), ErrInvalidTransition)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.True(t, job.Result.IsAbsent())
}

func TestJob_AppendEventAfterTerminal(t *testing.T) {
	job := NewJob("job-1", testNow)
	require.NoError(t, job.Start(testNow))
	require.NoError(t, job.Finish(Succeeded("done"), testNow))

	require.ErrorIs(t, job.AppendEvent("late progress", testNow), ErrJobFinalized)
	assert.Equal(t, EventCrewComplete, job.Events[len(job.Events)-1].Data)
}

func TestJob_CloneIsDeep(t *testing.T) {
	job := NewJob("job-1", testNow)
	require.NoError(t, job.Start(testNow))
	require.NoError(t, job.Finish(Succeeded(`{"a":1}`), testNow))

	cp := job.Clone()
	cp.Events[0].Data = "mutated"
	cp.Result.structured[1] = 'X'
	*cp.StartedAt = testNow.Add(time.Hour)

	assert.Equal(t, EventCrewStarted, job.Events[0].Data)
	assert.JSONEq(t, `{"a":1}`, string(job.Result.Structured()))
	assert.Equal(t, testNow, *job.StartedAt)
	assert.Nil(t, (*Job)(nil).Clone())
}

func TestJob_MarshalJSON(t *testing.T) {
	job := NewJob("job-1", testNow)

	b, err := json.Marshal(job)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "job-1", got["job_id"])
	assert.Equal(t, "PENDING", got["status"])
	assert.Nil(t, got["result"])
	assert.Equal(t, []any{}, got["events"])
	assert.NotContains(t, got, "started_at")
}

func TestEvent_TimestampIsISO8601(t *testing.T) {
	b, err := json.Marshal(Event{Timestamp: testNow, Data: "Crew started"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"timestamp":"2024-05-01T12:00:00Z","data":"Crew started"}`, string(b))
}

func TestOutcome_FailedNil(t *testing.T) {
	o := Failed(nil)
	require.Error(t, o.Err())
	assert.Equal(t, JobStatusError, o.Status())
}

func TestJobStats(t *testing.T) {
	var s JobStats
	for _, st := range []JobStatus{JobStatusPending, JobStatusRunning, JobStatusRunning, JobStatusComplete, JobStatusError, "bogus"} {
		s.Add(st)
	}
	assert.Equal(t, JobStats{Pending: 1, Running: 2, Complete: 1, Error: 1}, s)
	assert.Equal(t, 5, s.Total())
}

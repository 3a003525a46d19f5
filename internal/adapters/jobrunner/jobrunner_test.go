package jobrunner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	"github.com/target/crew-api/internal/core"
	"github.com/target/crew-api/internal/data"
	"github.com/target/crew-api/internal/domain/model"
	apperrors "github.com/target/crew-api/internal/errors"
	"github.com/target/crew-api/internal/mocks"
	"github.com/target/crew-api/internal/observability/notify"
	"github.com/target/crew-api/internal/observability/statsd"
	"github.com/target/crew-api/internal/service/failurenotifier"
	"github.com/target/crew-api/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type runnerHarness struct {
	store  *data.JobStore
	runner *Runner
	rec    *statsd.Recorder
}

func newHarness(t *testing.T, task core.Task, mutate func(*RunnerOptions)) *runnerHarness {
	t.Helper()
	store := data.NewJobStore(data.JobStoreOptions{})
	rec := &statsd.Recorder{}
	opts := RunnerOptions{Store: store, Task: task, Metrics: rec}
	if mutate != nil {
		mutate(&opts)
	}
	r, err := NewRunner(opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, r.Shutdown(ctx))
	})
	return &runnerHarness{store: store, runner: r, rec: rec}
}

func (h *runnerHarness) submit(t *testing.T, id string) {
	t.Helper()
	_, err := h.store.Create(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, h.runner.Dispatch(id, testutil.NewCrewRequest().Build()))
}

func (h *runnerHarness) waitFor(t *testing.T, id string, status model.JobStatus) *model.Job {
	t.Helper()
	var job *model.Job
	require.Eventually(t, func() bool {
		j, err := h.store.Get(context.Background(), id)
		if err != nil {
			return false
		}
		job = j
		return j.Status == status
	}, 5*time.Second, 5*time.Millisecond, "job %s never reached %s", id, status)
	return job
}

func eventData(job *model.Job) []string {
	out := make([]string, len(job.Events))
	for i, ev := range job.Events {
		out[i] = ev.Data
	}
	return out
}

func TestNewRunner_Validation(t *testing.T) {
	ctrl := gomock.NewController(t)

	_, err := NewRunner(RunnerOptions{Task: mocks.NewMockTask(ctrl)})
	require.Error(t, err)

	_, err = NewRunner(RunnerOptions{Store: mocks.NewMockJobStore(ctrl)})
	require.Error(t, err)

	r, err := NewRunner(RunnerOptions{Store: mocks.NewMockJobStore(ctrl), Task: mocks.NewMockTask(ctrl)})
	require.NoError(t, err)
	assert.Equal(t, DefaultConcurrency, r.workers)
	require.NoError(t, r.Shutdown(context.Background()))
}

func TestRunner_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	task := mocks.NewMockTask(ctrl)
	task.EXPECT().Run(gomock.Any(), testutil.NewCrewRequest().Build(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ model.CrewRequest, progress core.ProgressReporter) (string, error) {
			assert.NoError(t, progress.Report(ctx, "Researching Acme"))
			return `{"report":"done"}`, nil
		})

	h := newHarness(t, task, nil)
	h.submit(t, "job-1")

	job := h.waitFor(t, "job-1", model.JobStatusComplete)
	assert.Equal(t, []string{model.EventCrewStarted, "Researching Acme", model.EventCrewComplete}, eventData(job))
	assert.Equal(t, model.ResultStructured, job.Result.Kind())
	assert.JSONEq(t, `{"report":"done"}`, string(job.Result.Structured()))
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.CompletedAt)

	lines := strings.Join(h.rec.Lines(), "\n")
	assert.Contains(t, lines, "job.transition:1|c|#result:success,transition:started")
	assert.Contains(t, lines, "job.transition:1|c|#result:success,transition:finished")
	assert.Contains(t, lines, "job.progress_event:1|c")
}

func TestRunner_TextResult(t *testing.T) {
	h := newHarness(t, core.TaskFunc(func(context.Context, model.CrewRequest, core.ProgressReporter) (string, error) {
		return "plain text report", nil
	}), nil)
	h.submit(t, "job-1")

	job := h.waitFor(t, "job-1", model.JobStatusComplete)
	assert.Equal(t, "plain text report", job.Result.Text())
}

func TestRunner_Failures(t *testing.T) {
	tests := []struct {
		name      string
		task      core.TaskFunc
		opts      func(*RunnerOptions)
		wantEvent    string
		wantClass    string
		wantSeverity string
	}{
		{
			name: "error",
			task: func(context.Context, model.CrewRequest, core.ProgressReporter) (string, error) {
				return "", errors.New("boom")
			},
			wantEvent:    "An error occurred: boom",
			wantClass:    "errors_errorstring",
			wantSeverity: notify.SeverityCritical,
		},
		{
			name: "panic",
			task: func(context.Context, model.CrewRequest, core.ProgressReporter) (string, error) {
				panic("kaboom")
			},
			wantEvent:    "An error occurred: crew panicked: kaboom",
			wantClass:    "errors_errorstring",
			wantSeverity: notify.SeverityCritical,
		},
		{
			name: "timeout",
			task: func(ctx context.Context, _ model.CrewRequest, _ core.ProgressReporter) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			},
			opts:         func(o *RunnerOptions) { o.JobTimeout = 20 * time.Millisecond },
			wantEvent:    "An error occurred: crew timed out after 20ms: context deadline exceeded",
			wantClass:    "timeout",
			wantSeverity: notify.SeverityWarning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				mu       sync.Mutex
				payloads []notify.JobFailurePayload
			)
			notifier := failurenotifier.NewService(failurenotifier.Options{
				Sinks: []failurenotifier.SinkRegistration{{
					Name: "capture",
					Sink: notify.SinkFunc(func(_ context.Context, p notify.JobFailurePayload) error {
						mu.Lock()
						defer mu.Unlock()
						payloads = append(payloads, p)
						return nil
					}),
				}},
			})

			h := newHarness(t, tt.task, func(o *RunnerOptions) {
				o.FailureNotifier = notifier
				if tt.opts != nil {
					tt.opts(o)
				}
			})
			h.submit(t, "job-1")

			job := h.waitFor(t, "job-1", model.JobStatusError)
			events := eventData(job)
			require.Len(t, events, 2)
			assert.Equal(t, model.EventCrewStarted, events[0])
			assert.Equal(t, tt.wantEvent, events[1])
			assert.Equal(t, strings.TrimPrefix(tt.wantEvent, "An error occurred: "), job.Result.Text())

			require.Eventually(t, func() bool {
				mu.Lock()
				defer mu.Unlock()
				return len(payloads) == 1
			}, 5*time.Second, 5*time.Millisecond)
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, "job-1", payloads[0].JobID)
			assert.Equal(t, tt.wantClass, payloads[0].ErrorClass)
			assert.Equal(t, tt.wantSeverity, payloads[0].Severity)
			assert.Equal(t, []string{"Acme"}, payloads[0].Companies)
		})
	}
}

func TestRunner_ConcurrencyLimit(t *testing.T) {
	release := make(chan struct{})
	var running atomic.Int32
	var peak atomic.Int32

	h := newHarness(t, core.TaskFunc(func(ctx context.Context, _ model.CrewRequest, _ core.ProgressReporter) (string, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		select {
		case <-release:
			return "ok", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}), func(o *RunnerOptions) { o.Concurrency = 1 })

	h.submit(t, "job-1")
	h.submit(t, "job-2")

	h.waitFor(t, "job-1", model.JobStatusRunning)
	// The second job waits for a free slot.
	time.Sleep(20 * time.Millisecond)
	second, err := h.store.Get(context.Background(), "job-2")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, second.Status)

	close(release)
	h.waitFor(t, "job-1", model.JobStatusComplete)
	h.waitFor(t, "job-2", model.JobStatusComplete)
	assert.Equal(t, int32(1), peak.Load())
}

func TestRunner_ShutdownFinalizesJobs(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	store := data.NewJobStore(data.JobStoreOptions{})
	r, err := NewRunner(RunnerOptions{
		Store:       store,
		Concurrency: 1,
		Task: core.TaskFunc(func(ctx context.Context, _ model.CrewRequest, _ core.ProgressReporter) (string, error) {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return "", ctx.Err()
		}),
	})
	require.NoError(t, err)

	ctx := context.Background()
	for _, id := range []string{"running", "queued"} {
		_, err := store.Create(ctx, id)
		require.NoError(t, err)
	}
	require.NoError(t, r.Dispatch("running", testutil.NewCrewRequest().Build()))
	<-started
	require.NoError(t, r.Dispatch("queued", testutil.NewCrewRequest().Build()))

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(shutdownCtx))

	for _, id := range []string{"running", "queued"} {
		job, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusError, job.Status, id)
		events := eventData(job)
		require.Len(t, events, 2, id)
		assert.Equal(t, model.EventCrewStarted, events[0])
		assert.Contains(t, events[1], "crew cancelled")
	}

	err = r.Dispatch("late", testutil.NewCrewRequest().Build())
	assert.ErrorIs(t, err, ErrRunnerClosed)
	assert.True(t, apperrors.IsUnavailable(err))
	// Shutdown is idempotent.
	require.NoError(t, r.Shutdown(shutdownCtx))
}

func TestRunner_ShutdownTimeout(t *testing.T) {
	unblock := make(chan struct{})
	h := newHarness(t, core.TaskFunc(func(context.Context, model.CrewRequest, core.ProgressReporter) (string, error) {
		<-unblock
		return "late", nil
	}), nil)
	h.submit(t, "stubborn")
	h.waitFor(t, "stubborn", model.JobStatusRunning)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := h.runner.Shutdown(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(unblock)
	h.waitFor(t, "stubborn", model.JobStatusComplete)
}

func TestRunner_DispatchCopiesRequest(t *testing.T) {
	got := make(chan model.CrewRequest, 1)
	h := newHarness(t, core.TaskFunc(func(_ context.Context, req model.CrewRequest, _ core.ProgressReporter) (string, error) {
		got <- req
		return "ok", nil
	}), func(o *RunnerOptions) { o.Concurrency = 1 })

	_, err := h.store.Create(context.Background(), "job-1")
	require.NoError(t, err)
	req := testutil.NewCrewRequest().Build()
	require.NoError(t, h.runner.Dispatch("job-1", req))
	req.Companies[0] = "mutated"

	assert.Equal(t, []string{"Acme"}, (<-got).Companies)
	h.waitFor(t, "job-1", model.JobStatusComplete)
}

package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/crew-api/internal/core"
	"github.com/target/crew-api/internal/domain/model"
	"github.com/target/crew-api/internal/testutil"
)

type progressLog struct {
	mu     sync.Mutex
	events []string
}

func (p *progressLog) Report(_ context.Context, data string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, data)
	return nil
}

func (p *progressLog) all() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

var _ core.ProgressReporter = (*progressLog)(nil)

func TestNewHTTPTask_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts HTTPTaskOptions
	}{
		{"empty endpoint", HTTPTaskOptions{}},
		{"relative endpoint", HTTPTaskOptions{Endpoint: "/analyze"}},
		{"unsupported scheme", HTTPTaskOptions{Endpoint: "ftp://pipeline/analyze"}},
		{"bad expression", HTTPTaskOptions{Endpoint: "http://pipeline/analyze", ResultExpr: "report["}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHTTPTask(tt.opts)
			require.Error(t, err)
		})
	}
}

func TestHTTPTask_Run(t *testing.T) {
	var got analysisRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"meta":{"took":3},"report":{"companies":[{"name":"Acme"}]}}`))
	}))
	defer srv.Close()

	req := testutil.NewCrewRequest().Build()

	t.Run("raw response", func(t *testing.T) {
		task, err := NewHTTPTask(HTTPTaskOptions{Endpoint: srv.URL})
		require.NoError(t, err)

		progress := &progressLog{}
		out, err := task.Run(context.Background(), req, progress)
		require.NoError(t, err)
		assert.JSONEq(t, `{"meta":{"took":3},"report":{"companies":[{"name":"Acme"}]}}`, out)
		assert.Equal(t, analysisRequest(req), got)
		assert.Equal(t, []string{"Researching 1 companies for 1 positions", "Analysis received"}, progress.all())
	})

	t.Run("jmespath selects the report", func(t *testing.T) {
		task, err := NewHTTPTask(HTTPTaskOptions{Endpoint: srv.URL, ResultExpr: "report"})
		require.NoError(t, err)

		out, err := task.Run(context.Background(), req, nil)
		require.NoError(t, err)
		assert.JSONEq(t, `{"companies":[{"name":"Acme"}]}`, out)
	})

	t.Run("string selection is returned verbatim", func(t *testing.T) {
		task, err := NewHTTPTask(HTTPTaskOptions{Endpoint: srv.URL, ResultExpr: "report.companies[0].name"})
		require.NoError(t, err)

		out, err := task.Run(context.Background(), req, nil)
		require.NoError(t, err)
		assert.Equal(t, "Acme", out)
	})

	t.Run("empty selection fails", func(t *testing.T) {
		task, err := NewHTTPTask(HTTPTaskOptions{Endpoint: srv.URL, ResultExpr: "missing"})
		require.NoError(t, err)

		_, err = task.Run(context.Background(), req, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "matched nothing")
	})
}

func TestHTTPTask_Run_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	task, err := NewHTTPTask(HTTPTaskOptions{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = task.Run(context.Background(), testutil.NewCrewRequest().Build(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestHTTPTask_Run_ContextCanceled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	task, err := NewHTTPTask(HTTPTaskOptions{Endpoint: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = task.Run(ctx, testutil.NewCrewRequest().Build(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "empty response", snippet(nil))
	long := strings.Repeat("x", maxErrorBodyBytes+10)
	assert.Len(t, snippet([]byte(long)), maxErrorBodyBytes+3)

	// A three-byte rune straddles the limit.
	straddling := strings.Repeat("x", maxErrorBodyBytes-1) + "€€"
	got := snippet([]byte(straddling))
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("x", maxErrorBodyBytes-1)+"...", got)
}

type rejectingProgress struct{}

func (rejectingProgress) Report(context.Context, string) error {
	return errors.New("store unavailable")
}

func TestHTTPTask_DroppedProgressUsesTaskLogger(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	task, err := NewHTTPTask(HTTPTaskOptions{Endpoint: srv.URL, Logger: logger})
	require.NoError(t, err)

	_, err = task.Run(context.Background(), testutil.NewCrewRequest().Build(), rejectingProgress{})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "progress event dropped")
	assert.Contains(t, buf.String(), "component=analysis_http")
}

func TestSimulatedTask_Run(t *testing.T) {
	task := &SimulatedTask{Step: time.Millisecond}
	progress := &progressLog{}

	req := model.CrewRequest{Companies: []string{"Acme", "Globex"}, Positions: []string{"CEO"}}
	out, err := task.Run(context.Background(), req, progress)
	require.NoError(t, err)

	assert.Equal(t, []string{"Researched CEO at Acme", "Researched CEO at Globex"}, progress.all())

	var rep researchReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	require.Len(t, rep.Companies, 2)
	assert.Equal(t, "Globex", rep.Companies[1].Name)
	assert.Equal(t, "CEO", rep.Companies[1].Positions[0].Title)
	assert.Equal(t, model.ResultStructured, model.NewResult(out).Kind())
}

func TestSimulatedTask_Run_Canceled(t *testing.T) {
	task := &SimulatedTask{Step: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := task.Run(ctx, testutil.NewCrewRequest().Build(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

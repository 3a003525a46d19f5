// Package analysis provides the core.Task implementations that perform the research work for crew jobs.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/target/crew-api/internal/core"
	"github.com/target/crew-api/internal/domain/model"
)

const (
	defaultHTTPTimeout = 10 * time.Minute
	// maxResponseBytes bounds how much of the pipeline response is read and stored as the job result.
	maxResponseBytes = 1 << 20
	// maxErrorBodyBytes bounds the response snippet quoted in failure messages.
	maxErrorBodyBytes = 512
)

// HTTPTaskOptions configures an HTTPTask.
type HTTPTaskOptions struct {
	Endpoint string // Required: absolute http(s) URL of the analysis pipeline
	// ResultExpr is an optional JMESPath expression selecting the report from the response.
	ResultExpr string
	Timeout    time.Duration
	Client     *http.Client
	Logger     *slog.Logger
}

// HTTPTask delegates the research to an external analysis pipeline over HTTP.
type HTTPTask struct {
	endpoint   string
	resultExpr string
	client     *http.Client
	logger     *slog.Logger
}

var _ core.Task = (*HTTPTask)(nil)

type analysisRequest struct {
	Companies []string `json:"companies"`
	Positions []string `json:"positions"`
}

// NewHTTPTask validates the options and builds the task.
func NewHTTPTask(opts HTTPTaskOptions) (*HTTPTask, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("analysis endpoint %q must be an absolute http(s) URL", endpoint)
	}

	expr := strings.TrimSpace(opts.ResultExpr)
	if expr != "" {
		if _, err := jmespath.Compile(expr); err != nil {
			return nil, fmt.Errorf("compile result expression %q: %w", expr, err)
		}
	}

	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPTask{
		endpoint:   u.String(),
		resultExpr: expr,
		client:     client,
		logger:     logger.With("component", "analysis_http"),
	}, nil
}

// Run posts the request to the pipeline and returns the (optionally extracted) report.
func (t *HTTPTask) Run(ctx context.Context, req model.CrewRequest, progress core.ProgressReporter) (string, error) {
	body, err := json.Marshal(analysisRequest(req))
	if err != nil {
		return "", fmt.Errorf("encode analysis request: %w", err)
	}

	report(ctx, t.logger, progress, fmt.Sprintf("Researching %d companies for %d positions",
		len(req.Companies), len(req.Positions)))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create analysis request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("analysis request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return "", fmt.Errorf("read analysis response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("analysis pipeline returned %s: %s", resp.Status, snippet(payload))
	}
	if len(payload) > maxResponseBytes {
		return "", fmt.Errorf("analysis response exceeds %d bytes", maxResponseBytes)
	}

	t.logger.DebugContext(ctx, "analysis response received",
		"status", resp.StatusCode,
		"bytes", len(payload),
		"elapsed", time.Since(start),
	)
	report(ctx, t.logger, progress, "Analysis received")

	if t.resultExpr == "" {
		return string(bytes.TrimSpace(payload)), nil
	}
	return t.extract(payload)
}

// extract applies the result expression to the JSON response.
func (t *HTTPTask) extract(payload []byte) (string, error) {
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return "", fmt.Errorf("analysis response is not JSON: %w", err)
	}

	selected, err := jmespath.Search(t.resultExpr, doc)
	if err != nil {
		return "", fmt.Errorf("evaluate result expression: %w", err)
	}
	switch v := selected.(type) {
	case nil:
		return "", fmt.Errorf("result expression %q matched nothing", t.resultExpr)
	case string:
		return v, nil
	default:
		out, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode selected result: %w", err)
		}
		return string(out), nil
	}
}

func report(ctx context.Context, logger *slog.Logger, progress core.ProgressReporter, data string) {
	if progress == nil {
		return
	}
	// A rejected progress event never fails the work itself.
	if err := progress.Report(ctx, data); err != nil && !errors.Is(err, model.ErrJobFinalized) {
		if logger == nil {
			logger = slog.Default()
		}
		logger.DebugContext(ctx, "progress event dropped", "error", err)
	}
}

// snippet trims body for failure messages, cutting on a rune boundary.
func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBodyBytes {
		cut := maxErrorBodyBytes
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "..."
	}
	if s == "" {
		return "empty response"
	}
	return s
}

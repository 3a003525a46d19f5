// Package cmd implements the crewctl commands.
package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/target/crew-api/internal/domain/model"
)

// CrewClient handles API calls to a crew-api server.
type CrewClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewCrewClient creates a client for the given base URL.
func NewCrewClient(baseURL string, timeout time.Duration) *CrewClient {
	return &CrewClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"error"`
	Message    string `json:"message"`
	Field      string `json:"field"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Field != "" {
		return fmt.Sprintf("API error (%d): %s: %s", e.StatusCode, e.Field, msg)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, msg)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Submit sends POST /api/crew and returns the new job id.
func (c *CrewClient) Submit(ctx context.Context, req model.CrewRequest, idempotencyKey string) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/crew", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	var out model.SubmitResponse
	if err := c.do(httpReq, http.StatusAccepted, &out); err != nil {
		return "", err
	}
	return out.JobID, nil
}

// Get sends GET /api/crew/{job_id}.
func (c *CrewClient) Get(ctx context.Context, jobID string) (*model.Job, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/crew/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var job model.Job
	if err := c.do(httpReq, http.StatusOK, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Wait polls the job every interval until it reaches a terminal status. onUpdate
// is called for every snapshot whose event log grew.
func (c *CrewClient) Wait(ctx context.Context, jobID string, interval time.Duration, onUpdate func(*model.Job)) (*model.Job, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	seen := -1
	for {
		job, err := c.Get(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if len(job.Events) != seen && onUpdate != nil {
			onUpdate(job)
		}
		seen = len(job.Events)
		if job.Status.IsTerminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stream follows the job over the WebSocket endpoint until the server closes it
// after the terminal snapshot.
func (c *CrewClient) Stream(ctx context.Context, jobID string, onUpdate func(*model.Job)) (*model.Job, error) {
	wsURL, err := c.streamURL(jobID)
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, decodeAPIError(resp)
		}
		return nil, fmt.Errorf("dial stream: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	var last *model.Job
	for {
		var job model.Job
		if err := conn.ReadJSON(&job); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && last != nil {
				return last, nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read stream: %w", err)
		}
		last = &job
		if onUpdate != nil {
			onUpdate(last)
		}
	}
}

func (c *CrewClient) streamURL(jobID string) (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/crew/" + url.PathEscape(jobID) + "/stream"
	return u.String(), nil
}

func (c *CrewClient) do(req *http.Request, want int, out any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(body, apiErr) != nil {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

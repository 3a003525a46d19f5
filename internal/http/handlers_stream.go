package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/target/crew-api/internal/domain/model"
	"github.com/target/crew-api/internal/service"
)

const (
	defaultStreamPollInterval = 250 * time.Millisecond
	streamWriteWait           = 10 * time.Second
	streamPongWait            = 60 * time.Second
	streamPingPeriod          = streamPongWait * 9 / 10
)

// StreamHandler pushes job snapshots over a WebSocket until the job is terminal.
type StreamHandler struct {
	Svc *service.JobService
	// PollInterval is how often the job is re-read for changes (default 250ms).
	PollInterval time.Duration
	// CheckOrigin overrides the upgrader's origin check. Nil accepts any origin,
	// matching the CORS policy of the API.
	CheckOrigin func(r *http.Request) bool
	Logger      *slog.Logger
}

// ServeHTTP handles GET /api/crew/{job_id}/stream. Unknown jobs are rejected
// with 404 before the upgrade.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("job_id")
	job, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}

	checkOrigin := h.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	upgrader := websocket.Upgrader{CheckOrigin: checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.logger().DebugContext(r.Context(), "websocket upgrade failed", "job_id", id, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go h.readLoop(conn, cancel)

	if err := h.stream(ctx, conn, job); err != nil {
		h.logger().DebugContext(ctx, "job stream ended", "job_id", id, "error", err)
	}
}

// stream sends the initial snapshot and then every changed snapshot, closing
// the socket normally after the terminal one.
func (h *StreamHandler) stream(ctx context.Context, conn *websocket.Conn, job *model.Job) error {
	interval := h.PollInterval
	if interval <= 0 {
		interval = defaultStreamPollInterval
	}
	poll := time.NewTicker(interval)
	defer poll.Stop()
	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	if err := writeSnapshot(conn, job); err != nil {
		return err
	}
	last := job
	for !last.Status.IsTerminal() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return err
			}
		case <-poll.C:
			current, err := h.Svc.Get(ctx, job.ID)
			if err != nil {
				return err
			}
			if !changed(last, current) {
				continue
			}
			if err := writeSnapshot(conn, current); err != nil {
				return err
			}
			last = current
		}
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(last.Status))
	return conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(streamWriteWait))
}

// readLoop drains client frames so control messages are processed, and cancels
// the stream when the client goes away.
func (h *StreamHandler) readLoop(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *StreamHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func writeSnapshot(conn *websocket.Conn, job *model.Job) error {
	if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(job)
}

// changed reports whether a snapshot differs from the last one sent. Events are
// append-only, so comparing lengths is enough.
func changed(prev, next *model.Job) bool {
	return prev.Status != next.Status || len(prev.Events) != len(next.Events)
}

package httpx

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/target/crew-api/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Jobs *service.JobService
	// ReadyChecks back /readyz. Liveness (/healthz) never consults them.
	ReadyChecks []ReadyCheck
	CORS        CORSConfig
	// StreamPollInterval controls how often WebSocket streams re-read a job.
	StreamPollInterval time.Duration
	// DisableStream turns off GET /api/crew/{job_id}/stream.
	DisableStream bool
	Logger        *slog.Logger // optional
}

// NewRouter creates and configures the HTTP router with its middleware chain.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	crew := &CrewHandlers{Svc: services.Jobs, Logger: logger.With("component", "http")}
	var stream *StreamHandler
	if !services.DisableStream {
		stream = &StreamHandler{
			Svc:          services.Jobs,
			PollInterval: services.StreamPollInterval,
			CheckOrigin:  originChecker(services.CORS),
			Logger:       logger.With("component", "job_stream"),
		}
	}
	registerCrewRoutes(mux, crew, stream)

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("GET /readyz", readyHandler(services.ReadyChecks, 0))

	var handler http.Handler = mux
	handler = apiOnly(CORS(services.CORS))(handler)
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)
	handler = RequestID()(handler)
	return handler
}

// apiOnly applies mw to requests under /api/ and passes everything else straight through.
func apiOnly(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		wrapped := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/api" {
				wrapped.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// originChecker mirrors the CORS policy for WebSocket upgrades.
func originChecker(cfg CORSConfig) func(r *http.Request) bool {
	if cfg.allowAny() {
		return func(*http.Request) bool { return true }
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

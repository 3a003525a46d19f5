package config

import (
	"strconv"
	"strings"
	"time"
)

const defaultPort = 3001

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Port is the listen port used when Addr is empty.
	Port int `env:"PORT" envDefault:"3001"`

	// Addr is the address to bind the HTTP server to. Overrides Port.
	Addr string `env:"HTTP_ADDR"`

	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"10s"`
	ReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT"        envDefault:"30s"`
	// WriteTimeout stays zero by default so WebSocket streams are not cut off.
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"0s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT"  envDefault:"120s"`

	// CORSOrigins lists allowed origins for /api/*. Empty or "*" allows any origin.
	CORSOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	CORSMaxAge  time.Duration `env:"CORS_MAX_AGE"         envDefault:"10m"`

	// StreamPollInterval is how often WebSocket streams re-read a job.
	StreamPollInterval time.Duration `env:"STREAM_POLL_INTERVAL" envDefault:"250ms"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	if h.Port <= 0 || h.Port > 65535 {
		h.Port = defaultPort
	}
	h.Addr = strings.TrimSpace(h.Addr)
	if h.Addr == "" {
		h.Addr = ":" + strconv.Itoa(h.Port)
	}

	if h.ReadHeaderTimeout <= 0 {
		h.ReadHeaderTimeout = 10 * time.Second
	}
	h.ReadTimeout = max(h.ReadTimeout, 0)
	h.WriteTimeout = max(h.WriteTimeout, 0)
	h.IdleTimeout = max(h.IdleTimeout, 0)
	h.CORSMaxAge = max(h.CORSMaxAge, 0)
	if h.StreamPollInterval < 10*time.Millisecond {
		h.StreamPollInterval = 250 * time.Millisecond
	}

	origins := h.CORSOrigins[:0]
	for _, o := range h.CORSOrigins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	h.CORSOrigins = origins
}

// Package http serves the MCP endpoint and health probes over HTTP.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"expensemcp/internal/log"
	"expensemcp/internal/middleware/ratelimit"
	"expensemcp/internal/middleware/security"
	"expensemcp/internal/middleware/trace"
)

// MCPPath is where the streamable MCP handler is mounted.
const MCPPath = "/mcp"

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the HTTP server.
type Options struct {
	Addr               string
	RateLimitPerMinute int
}

type Server struct {
	http.Server
	limiter      *ratelimit.Limiter
	pinger       Pinger
	logger       *log.Logger
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options, mcpHandler http.Handler, pinger Pinger, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}

	s := &Server{
		limiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		pinger:  pinger,
		logger:  logger.WithComponent(log.ComponentHTTP),
	}

	r := mux.NewRouter()
	r.Use(trace.NewMiddleware(security.ClientIP, logger).Middleware)
	r.Use(security.Headers(security.DefaultHeadersConfig()))

	r.Handle(MCPPath, s.limiter.Middleware(security.ClientIP)(mcpHandler)).
		Methods(http.MethodPost, http.MethodGet, http.MethodDelete)
	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// No WriteTimeout: GET /mcp holds a server-sent event stream open.
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}

	return s
}

// Shutdown gracefully shuts down the server and the limiter's cleanup goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("store unavailable"))
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

package metric

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/sensorfusion/errors"
)

// Server exposes a registry over HTTP, plus any extra routes such as health.
type Server struct {
	addr     string
	path     string
	registry *MetricsRegistry

	mu     sync.Mutex
	routes map[string]http.Handler
	http   *http.Server
	ln     net.Listener
}

// NewServer returns a server for registry. Empty addr and path default to
// ":9090" and "/metrics".
func NewServer(addr, path string, registry *MetricsRegistry) *Server {
	return &Server{
		addr:     orDefault(addr, ":9090"),
		path:     orDefault(path, "/metrics"),
		registry: registry,
		routes:   make(map[string]http.Handler),
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// Handle serves h at pattern next to the metrics. Call it before Start.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mu.Lock()
	s.routes[pattern] = h
	s.mu.Unlock()
}

// handler assembles the mux. A plain /health answers OK unless a route
// replaces it.
func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.HandlerFor(s.registry.PrometheusRegistry(),
		promhttp.HandlerOpts{EnableOpenMetrics: true}))

	if _, custom := s.routes["/health"]; !custom {
		mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = fmt.Fprint(w, "OK")
		})
	}
	for pattern, h := range s.routes {
		mux.Handle(pattern, h)
	}
	return mux
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.http != nil:
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Server", "Start", "serve metrics")
	case s.registry == nil:
		return errors.WrapFatal(errors.ErrMissingConfig, "Server", "Start", "metrics registry")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.WrapFatal(err, "Server", "Start", "listen on "+s.addr)
	}

	srv := &http.Server{Handler: s.handler(), ReadHeaderTimeout: 5 * time.Second}
	s.http, s.ln = srv, ln
	go func() { _ = srv.Serve(ln) }()
	return nil
}

// Stop shuts the server down. Stopping a server that never started is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.http, s.ln = nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return errors.WrapTransient(err, "Server", "Stop", "shutdown")
	}
	return nil
}

// Address returns the bound address, or the configured one before Start.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

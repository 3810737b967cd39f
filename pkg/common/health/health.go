// Package health provides the liveness and readiness endpoints used by
// Kubernetes probes.
package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

// Server implements health check endpoints for Kubernetes probes.
type Server struct {
	ready  *atomic.Bool
	checks map[string]Check
	server *http.Server
}

// NewServer creates a health server listening on addr. It is not started
// until ListenAndServe is called. The readiness endpoint returns 503 while
// ready is false or any check fails.
func NewServer(addr string, ready *atomic.Bool, checks map[string]Check) *Server {
	mux := http.NewServeMux()
	hs := &Server{ready: ready, checks: checks}

	mux.HandleFunc("/v1/readiness", hs.readinessHandler)
	mux.HandleFunc("/v1/health", hs.healthHandler)

	hs.server = &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(mux, "health"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return hs
}

// ListenAndServe blocks serving probe requests.
func (h *Server) ListenAndServe() error { return h.server.ListenAndServe() }

// Shutdown gracefully stops the server.
func (h *Server) Shutdown(ctx context.Context) error { return h.server.Shutdown(ctx) }

// Handler exposes the probe handler, mainly for tests.
func (h *Server) Handler() http.Handler { return h.server.Handler }

func (h *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Load() {
		http.Error(w, "Not ready", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			http.Error(w, name+" unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

// healthHandler always returns 200 OK as long as the server is running.
func (h *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

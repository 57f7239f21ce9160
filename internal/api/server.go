package api

import (
	"context"
	"net/http"
	"time"
)

// shutdownTimeout bounds how long the server waits for in-flight
// transactions to finish before a hard shutdown (spec.md §5).
const shutdownTimeout = 30 * time.Second

// Server wraps the HTTP listener.
type Server struct {
	httpServer *http.Server
}

// NewServer builds a Server listening on addr.
func NewServer(addr string, h *Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: NewRouter(h),
		},
	}
}

// ListenAndServe blocks until the listener stops.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting new work and waits up to shutdownTimeout for
// in-flight requests to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

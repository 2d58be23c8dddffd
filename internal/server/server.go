package server

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ShutdownTimeout bounds how long Run waits for in-flight requests.
const ShutdownTimeout = 10 * time.Second

// Server is an HTTP listener whose handler can be replaced while it serves.
// Requests already dispatched finish on the handler they started on.
type Server struct {
	addr    string
	handler atomic.Pointer[http.Handler]
	logger  zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

// New creates a server for addr serving h.
func New(addr string, h http.Handler, logger zerolog.Logger) *Server {
	s := &Server{
		addr:   addr,
		logger: logger,
		ready:  make(chan struct{}),
	}
	s.handler.Store(&h)
	return s
}

// Swap installs h and returns the handler it replaced.
func (s *Server) Swap(h http.Handler) http.Handler {
	old := s.handler.Swap(&h)
	if old == nil {
		return nil
	}
	return *old
}

// Handler returns the active handler.
func (s *Server) Handler() http.Handler {
	return *s.handler.Load()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	(*s.handler.Load()).ServeHTTP(w, r)
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address once listening, the configured one before.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Run listens and serves until ctx is cancelled, then shuts down gracefully.
// It returns nil after a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	close(s.ready)

	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          stdlog.New(s.logger.With().Str("source", "net/http").Logger(), "", 0),
	}

	serverError := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverError <- err
		}
		close(serverError)
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("listening")

	select {
	case <-ctx.Done():
		s.logger.Info().Msg("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		s.logger.Info().Msg("connections drained")
		return nil
	case err, ok := <-serverError:
		if !ok {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}
}

// package server runs the short-lived HTTP listener that receives the OAuth callback
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an [http.Handler] that knows the paths it serves.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// RequestLogger logs one debug line per request with its status and duration.
func RequestLogger(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// CallbackServer serves a router on a local address until it is shut down.
type CallbackServer struct {
	srv      *http.Server
	listener net.Listener
	errs     chan error
	logger   *log.Logger
}

// NewCallbackServer prepares a server for addr. Nothing listens until [CallbackServer.Start].
func NewCallbackServer(addr string, handler http.Handler, logger *log.Logger) *CallbackServer {
	return &CallbackServer{
		srv:    &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second},
		errs:   make(chan error, 1),
		logger: logger,
	}
}

// Start binds the address and serves in the background. Bind failures are returned directly.
func (s *CallbackServer) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}
	s.listener = ln
	s.logger.Debug("callback server listening", "addr", ln.Addr().String())

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errs <- err
		}
		close(s.errs)
	}()
	return nil
}

// Addr returns the bound address, useful when the configured port was 0.
func (s *CallbackServer) Addr() string {
	if s.listener == nil {
		return s.srv.Addr
	}
	return s.listener.Addr().String()
}

// Errors delivers a serve failure, then closes once the server stops.
func (s *CallbackServer) Errors() <-chan error {
	return s.errs
}

// Shutdown stops the server, waiting for in-flight requests until ctx is done.
func (s *CallbackServer) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

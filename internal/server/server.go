package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dshills/chunkembed/internal/metrics"
	"github.com/dshills/chunkembed/pkg/types"
)

// Processor chunks and embeds a set of documents
type Processor interface {
	Process(ctx context.Context, docs []types.Document, maxTokens int) (*types.Result, error)
}

// Options configures a Server
type Options struct {
	Addr            string
	ModelName       string
	MaxTokens       int
	RequestTimeout  time.Duration // 0 disables the per-request deadline
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
}

// Server exposes a Processor over a KServe v1 style HTTP API
type Server struct {
	proc    Processor
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics

	httpServer *http.Server
}

// New builds the server and its middleware chain
func New(proc Processor, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		proc:    proc,
		opts:    opts,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}

	mux := http.NewServeMux()
	s.registerHandlers(mux)

	// Recovery must be outer-most to catch everything
	var handler http.Handler = mux
	handler = s.loggingMiddleware(handler)
	handler = s.requestIDMiddleware(handler)
	handler = s.recoveryMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.opts.Addr, "model", s.opts.ModelName)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server startup failed: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	return <-errCh
}

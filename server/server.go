package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/poiesic/scholar/citation"
	"github.com/poiesic/scholar/metrics"
	"github.com/poiesic/scholar/research"
	"github.com/poiesic/scholar/storage"
)

const (
	defaultAddr            = ":8080"
	defaultShutdownTimeout = 10 * time.Second
	maxK                   = 100
)

// Answerer answers a research question.
type Answerer interface {
	ProcessQuery(ctx context.Context, query string) (*research.Answer, error)
}

// CitationLedger reports on and exports recorded citations.
type CitationLedger interface {
	Report() *citation.Report
	Export(format citation.Format) (string, error)
}

var (
	_ Answerer       = (*research.Orchestrator)(nil)
	_ CitationLedger = (*citation.Ledger)(nil)
)

// Server is the HTTP API.
type Server struct {
	retriever       research.Retriever
	answerer        Answerer
	ledger          CitationLedger
	collections     storage.CollectionStore
	addr            string
	shutdownTimeout time.Duration
	metrics         *metrics.Metrics
	logger          *slog.Logger
	handler         http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address. Defaults to ":8080".
func WithAddr(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.addr = addr
		}
	}
}

// WithShutdownTimeout bounds how long Start waits for in-flight requests
// once its context is cancelled.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithCollections enables the collection tracker routes. Without it they
// answer 503.
func WithCollections(c storage.CollectionStore) Option {
	return func(s *Server) {
		s.collections = c
	}
}

// WithMetrics records request metrics and serves them on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger sets a custom logger. If nil, uses the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger.With("component", "server")
	}
}

// NewServer builds the API over the given components.
func NewServer(retriever research.Retriever, answerer Answerer, ledger CitationLedger, opts ...Option) (*Server, error) {
	if retriever == nil {
		return nil, ErrRetrieverRequired
	}
	if answerer == nil {
		return nil, ErrAnswererRequired
	}
	if ledger == nil {
		return nil, ErrLedgerRequired
	}

	s := &Server{
		retriever:       retriever,
		answerer:        answerer,
		ledger:          ledger,
		addr:            defaultAddr,
		shutdownTimeout: defaultShutdownTimeout,
		logger:          slog.Default().With("component", "server"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.handler = s.routes()
	return s, nil
}

// Handler returns the API handler, for mounting or testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Start listens on the configured address and serves until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled. It closes ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Answers wait on the generator.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
		ErrorLog:     slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.instrument(pattern, h))
	}

	handle("GET /health", s.handleHealth)
	handle("GET /api/search", s.handleSearch)
	handle("POST /api/ask", s.handleAsk)
	handle("GET /api/citations/report", s.handleReport)
	handle("GET /api/citations/export", s.handleExport)
	handle("GET /api/collections", s.handleListCollections)
	handle("GET /api/collections/search", s.handleSearchCollections)
	handle("GET /api/collections/{id}", s.handleGetCollection)
	handle("GET /api/statistics", s.handleStatistics)
	mux.Handle("GET /metrics", s.metrics.Handler())

	return s.recoverPanics(mux)
}

package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves the Prometheus scrape endpoint.
type Server struct {
	addr   string
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	server *http.Server
}

// NewServer creates a metrics server for addr. path defaults to /metrics.
func NewServer(addr, path string, logger *slog.Logger) *Server {
	if path == "" {
		path = "/metrics"
	}
	return &Server{
		addr:   addr,
		path:   path,
		logger: logger.With("component", "metrics-server"),
	}
}

func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// Start serves scrapes in the background until Stop is called.
func (s *Server) Start() {
	server := &http.Server{
		Addr:         s.addr,
		Handler:      s.handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.mu.Lock()
	s.server = server
	s.mu.Unlock()

	s.logger.Info("metrics server listening", "addr", s.addr, "path", s.path)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics server failed", "error", err)
		}
	}()
}

// Stop shuts the scrape endpoint down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

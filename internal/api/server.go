package api

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"settlement-rpc-go/internal/engine"
	"settlement-rpc-go/internal/web"
)

// Backend is the read surface the HTTP API serves. *router.Router implements it.
type Backend interface {
	Domains() []string
	Snapshot() []engine.DomainStatus
	GasPrice(ctx context.Context, domain string) (*big.Int, error)
	BlockNumber(ctx context.Context, domain string) (uint64, error)
}

// Server exposes domain status, a few aggregated reads, a status stream and
// Prometheus metrics over HTTP.
type Server struct {
	backend Backend
	hub     *web.Hub
	addr    string
	logger  *slog.Logger
}

func NewServer(backend Backend, hub *web.Hub, addr string) *Server {
	return &Server{backend: backend, hub: hub, addr: addr, logger: engine.Logger}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /domains", s.handleDomains)
	mux.HandleFunc("GET /domains/{domain}/gas-price", s.handleGasPrice)
	mux.HandleFunc("GET /domains/{domain}/block-number", s.handleBlockNumber)
	if s.hub != nil {
		mux.HandleFunc("GET /ws", s.hub.HandleWS)
	}
	mux.Handle("GET /metrics", promhttp.Handler())

	return RequestLogMiddleware(s.logger, mux)
}

// ListenAndServe serves until ctx ends, then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api_listening", slog.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"settlement-rpc-go/internal/engine"
	"settlement-rpc-go/internal/router"
)

type healthResponse struct {
	Status  string         `json:"status"`
	Domains map[string]int `json:"synced_providers"`
}

type gasPriceResponse struct {
	Domain   string `json:"domain"`
	GasPrice string `json:"gas_price"`
	Hex      string `json:"gas_price_hex"`
}

type blockNumberResponse struct {
	Domain      string `json:"domain"`
	BlockNumber uint64 `json:"block_number"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleHealth is 503 while any domain has no synced provider.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Domains: map[string]int{}}
	for _, d := range s.backend.Snapshot() {
		synced := 0
		for _, p := range d.Providers {
			if p.Synced {
				synced++
			}
		}
		resp.Domains[d.Domain] = synced
		if synced == 0 {
			resp.Status = "degraded"
		}
	}
	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"domains": s.backend.Snapshot()})
}

func (s *Server) handleDomains(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"domains": s.backend.Domains()})
}

func (s *Server) handleGasPrice(w http.ResponseWriter, r *http.Request) {
	domain := r.PathValue("domain")
	price, err := s.backend.GasPrice(r.Context(), domain)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, gasPriceResponse{
		Domain:   domain,
		GasPrice: price.String(),
		Hex:      hexutil.EncodeBig(price),
	})
}

func (s *Server) handleBlockNumber(w http.ResponseWriter, r *http.Request) {
	domain := r.PathValue("domain")
	n, err := s.backend.BlockNumber(r.Context(), domain)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, blockNumberResponse{Domain: domain, BlockNumber: n})
}

// statusFor maps engine errors onto HTTP codes.
func statusFor(err error) int {
	var (
		qErr   *engine.QuorumNotMetError
		rpcErr *engine.RPCError
	)
	switch {
	case errors.Is(err, router.ErrUnknownDomain):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	case errors.As(err, &qErr), errors.As(err, &rpcErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Warn("api_request_failed",
			slog.String("path", r.URL.Path),
			slog.Int("status", code),
			slog.String("error", err.Error()))
	}
	s.writeJSON(w, code, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed_to_encode_response", slog.String("error", err.Error()))
	}
}

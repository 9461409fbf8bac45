// Package httpapi exposes the coordinator's REST surface (spec.md §6) over
// stdlib net/http, grounded on the ReadyTrader-Crypto mpc_signer example's
// writeJSON/readJSON + http.ServeMux idiom. Go 1.22's method+pattern
// ServeMux routing stands in for that example's manual method checks.
package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/guardianwallet/signer/internal/coordinator"
)

// NewRouter builds the coordinator's HTTP handler: health check plus the
// six sign/sign-message session endpoints.
func NewRouter(logger *zap.Logger, coord *coordinator.Coordinator) http.Handler {
	h := &handler{coord: coord, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.health)

	mux.HandleFunc("POST /signers/{id}/sign/session", h.createTxSession)
	mux.HandleFunc("POST /signers/{id}/sign/round", h.processRound)
	mux.HandleFunc("POST /signers/{id}/sign/complete", h.completeSign)

	mux.HandleFunc("POST /signers/{id}/sign-message/session", h.createMessageSession)
	mux.HandleFunc("POST /signers/{id}/sign-message/round", h.processRound)
	mux.HandleFunc("POST /signers/{id}/sign-message/complete", h.completeMessageSign)

	return withAccessLog(logger, mux)
}

// NewServer wraps NewRouter in an *http.Server with the teacher's
// ReadHeaderTimeout hardening.
func NewServer(addr string, logger *zap.Logger, coord *coordinator.Coordinator) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(logger, coord),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func withAccessLog(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

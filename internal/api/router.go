package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the HTTP surface of spec.md §6: three write
// endpoints under /api/v1/wallet, two read endpoints, plus /health and
// /metrics.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()

	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	// Wallet routes are registered on the top-level router so that a
	// wrong method on a known path is answered with 405, not 404.
	const wallet = "/api/v1/wallet"
	r.HandleFunc(wallet+"/top-up", h.TopUp).Methods(http.MethodPost)
	r.HandleFunc(wallet+"/bonus", h.IssueBonus).Methods(http.MethodPost)
	r.HandleFunc(wallet+"/purchase", h.Purchase).Methods(http.MethodPost)
	r.HandleFunc(wallet+"/{userId}/balance", h.GetBalance).Methods(http.MethodGet)
	r.HandleFunc(wallet+"/{userId}/history", h.GetHistory).Methods(http.MethodGet)

	return r
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/warp/coinvault/internal/ledgerr"
	"github.com/warp/coinvault/internal/money"
	"github.com/warp/coinvault/internal/orchestrator"
	"github.com/warp/coinvault/internal/reader"
	"github.com/warp/coinvault/internal/retry"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coinvault_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coinvault_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

// movements is the slice of the Movement Orchestrator the HTTP layer
// depends on. *orchestrator.Orchestrator satisfies it; tests substitute
// a fake.
type movements interface {
	TopUp(ctx context.Context, req orchestrator.Request) (*orchestrator.Response, error)
	IssueBonus(ctx context.Context, req orchestrator.Request) (*orchestrator.Response, error)
	Purchase(ctx context.Context, req orchestrator.Request) (*orchestrator.Response, error)
}

// reads is the slice of the Balance/History readers the HTTP layer
// depends on. *reader.Reader satisfies it; tests substitute a fake.
type reads interface {
	GetBalance(ctx context.Context, userID, assetCode string) (reader.Balance, error)
	GetAllBalances(ctx context.Context, userID string) ([]reader.Balance, error)
	GetTransactionHistory(ctx context.Context, userID string, limit, offset int) ([]reader.HistoryEntry, error)
}

// Handler serves the wallet HTTP surface.
type Handler struct {
	orch   movements
	reader reads
	retry  *retry.Driver
}

// NewHandler builds a Handler.
func NewHandler(orch movements, rd reads, rt *retry.Driver) *Handler {
	return &Handler{orch: orch, reader: rd, retry: rt}
}

// HealthCheck reports liveness.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// movementRequest is the wire shape of top-up/bonus/purchase bodies.
type movementRequest struct {
	UserID    string          `json:"userId"`
	AssetCode string          `json:"assetCode"`
	Amount    string          `json:"amount"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Item      string          `json:"item,omitempty"`
}

// TopUp handles POST /api/v1/wallet/top-up.
func (h *Handler) TopUp(w http.ResponseWriter, r *http.Request) {
	h.handleMovement(w, r, "top-up", func(req orchestrator.Request) (any, error) {
		return h.orch.TopUp(r.Context(), req)
	})
}

// IssueBonus handles POST /api/v1/wallet/bonus.
func (h *Handler) IssueBonus(w http.ResponseWriter, r *http.Request) {
	h.handleMovement(w, r, "bonus", func(req orchestrator.Request) (any, error) {
		return h.orch.IssueBonus(r.Context(), req)
	})
}

// Purchase handles POST /api/v1/wallet/purchase.
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	h.handleMovement(w, r, "purchase", func(req orchestrator.Request) (any, error) {
		return h.orch.Purchase(r.Context(), req)
	})
}

func (h *Handler) handleMovement(w http.ResponseWriter, r *http.Request, endpoint string, call func(orchestrator.Request) (any, error)) {
	path := "/api/v1/wallet/" + endpoint
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", path))
	defer timer.ObserveDuration()

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		h.fail(w, "POST", path, http.StatusBadRequest, "Missing Idempotency-Key header")
		return
	}

	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		h.fail(w, "POST", path, http.StatusInternalServerError, "stream read error")
		return
	}
	r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

	var body movementRequest
	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		h.fail(w, "POST", path, http.StatusBadRequest, "malformed JSON body")
		return
	}

	amount, err := money.Parse(body.Amount)
	if err != nil {
		h.fail(w, "POST", path, http.StatusBadRequest, "amount must be a decimal string")
		return
	}

	req := orchestrator.Request{
		UserID:         body.UserID,
		AssetCode:      body.AssetCode,
		Amount:         amount,
		IdempotencyKey: idempotencyKey,
		Metadata:       body.Metadata,
		Reason:         body.Reason,
		Item:           body.Item,
	}

	result, err := h.retry.Do(r.Context(), func(ctx context.Context) (any, error) {
		return call(req)
	})
	if err != nil {
		h.failLedgerErr(w, "POST", path, err)
		return
	}

	httpRequestsTotal.WithLabelValues("POST", path, "200").Inc()
	respondWithJSON(w, http.StatusOK, result)
}

// GetBalance handles GET /api/v1/wallet/{userId}/balance, optionally
// scoped to a single asset via ?assetCode=.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	path := "/api/v1/wallet/{userId}/balance"
	userID := mux.Vars(r)["userId"]
	assetCode := r.URL.Query().Get("assetCode")

	if assetCode != "" {
		bal, err := h.reader.GetBalance(r.Context(), userID, assetCode)
		if err != nil {
			h.failLedgerErr(w, "GET", path, err)
			return
		}
		httpRequestsTotal.WithLabelValues("GET", path, "200").Inc()
		respondWithJSON(w, http.StatusOK, bal)
		return
	}

	balances, err := h.reader.GetAllBalances(r.Context(), userID)
	if err != nil {
		h.failLedgerErr(w, "GET", path, err)
		return
	}
	httpRequestsTotal.WithLabelValues("GET", path, "200").Inc()
	respondWithJSON(w, http.StatusOK, balances)
}

// GetHistory handles GET /api/v1/wallet/{userId}/history?limit=&offset=.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	path := "/api/v1/wallet/{userId}/history"
	userID := mux.Vars(r)["userId"]

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	entries, err := h.reader.GetTransactionHistory(r.Context(), userID, limit, offset)
	if err != nil {
		h.failLedgerErr(w, "GET", path, err)
		return
	}

	httpRequestsTotal.WithLabelValues("GET", path, "200").Inc()
	respondWithJSON(w, http.StatusOK, entries)
}

func (h *Handler) fail(w http.ResponseWriter, method, endpoint string, status int, message string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	respondWithError(w, status, message)
}

// failLedgerErr maps a ledgerr.Kind to an HTTP status per spec.md §7.
func (h *Handler) failLedgerErr(w http.ResponseWriter, method, endpoint string, err error) {
	status, message := statusFor(err)
	h.fail(w, method, endpoint, status, message)
}

func statusFor(err error) (int, string) {
	switch ledgerr.KindOf(err) {
	case ledgerr.KindValidation:
		return http.StatusBadRequest, causeMessage(err)
	case ledgerr.KindNotFound:
		return http.StatusNotFound, causeMessage(err)
	case ledgerr.KindInsufficientFunds:
		return http.StatusUnprocessableEntity, "insufficient funds"
	case ledgerr.KindConflict:
		return http.StatusConflict, causeMessage(err)
	default:
		var le *ledgerr.Error
		if errors.As(err, &le) && le.CorrID != "" {
			return http.StatusInternalServerError, "internal error (ref " + le.CorrID + ")"
		}
		return http.StatusInternalServerError, "internal error"
	}
}

func causeMessage(err error) string {
	var le *ledgerr.Error
	if errors.As(err, &le) {
		return errors.Unwrap(le).Error()
	}
	return err.Error()
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

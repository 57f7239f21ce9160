package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/coinvault/internal/ledgerr"
	"github.com/warp/coinvault/internal/money"
	"github.com/warp/coinvault/internal/orchestrator"
	"github.com/warp/coinvault/internal/reader"
	"github.com/warp/coinvault/internal/retry"
)

type fakeMovements struct {
	response *orchestrator.Response
	err      error
	lastReq  orchestrator.Request
}

func (f *fakeMovements) TopUp(ctx context.Context, req orchestrator.Request) (*orchestrator.Response, error) {
	f.lastReq = req
	return f.response, f.err
}

func (f *fakeMovements) IssueBonus(ctx context.Context, req orchestrator.Request) (*orchestrator.Response, error) {
	f.lastReq = req
	return f.response, f.err
}

func (f *fakeMovements) Purchase(ctx context.Context, req orchestrator.Request) (*orchestrator.Response, error) {
	f.lastReq = req
	return f.response, f.err
}

type fakeReads struct {
	balance    reader.Balance
	balances   []reader.Balance
	history    []reader.HistoryEntry
	err        error
	lastLimit  int
	lastOffset int
}

func (f *fakeReads) GetBalance(ctx context.Context, userID, assetCode string) (reader.Balance, error) {
	return f.balance, f.err
}

func (f *fakeReads) GetAllBalances(ctx context.Context, userID string) ([]reader.Balance, error) {
	return f.balances, f.err
}

func (f *fakeReads) GetTransactionHistory(ctx context.Context, userID string, limit, offset int) ([]reader.HistoryEntry, error) {
	f.lastLimit, f.lastOffset = limit, offset
	return f.history, f.err
}

func noopDriver() *retry.Driver {
	return retry.New(1, time.Millisecond, 0, nil)
}

func TestTopUpRejectsMissingIdempotencyKey(t *testing.T) {
	h := NewHandler(&fakeMovements{}, &fakeReads{}, noopDriver())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/wallet/top-up", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()

	h.TopUp(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTopUpRejectsMalformedBody(t *testing.T) {
	h := NewHandler(&fakeMovements{}, &fakeReads{}, noopDriver())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/wallet/top-up", bytes.NewBufferString(`not json`))
	req.Header.Set("Idempotency-Key", "k1")
	rec := httptest.NewRecorder()

	h.TopUp(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTopUpRejectsUnparseableAmount(t *testing.T) {
	h := NewHandler(&fakeMovements{}, &fakeReads{}, noopDriver())
	body := `{"userId":"u1","assetCode":"GOLD_COIN","amount":"not-a-number"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/wallet/top-up", bytes.NewBufferString(body))
	req.Header.Set("Idempotency-Key", "k1")
	rec := httptest.NewRecorder()

	h.TopUp(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTopUpSucceeds(t *testing.T) {
	fm := &fakeMovements{response: &orchestrator.Response{
		TransactionID: uuid.New(),
		UserID:        "u1",
		AssetCode:     "GOLD_COIN",
		Amount:        "10.00000000",
		NewBalance:    "110.00000000",
		Timestamp:     time.Now(),
	}}
	h := NewHandler(fm, &fakeReads{}, noopDriver())

	body := `{"userId":"u1","assetCode":"GOLD_COIN","amount":"10"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/wallet/top-up", bytes.NewBufferString(body))
	req.Header.Set("Idempotency-Key", "k1")
	rec := httptest.NewRecorder()

	h.TopUp(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp orchestrator.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "110.00000000", resp.NewBalance)
	assert.Equal(t, money.FromInt(10).String(), fm.lastReq.Amount.String())
	assert.Equal(t, "k1", fm.lastReq.IdempotencyKey)
}

func TestPurchaseMapsInsufficientFundsTo422(t *testing.T) {
	fm := &fakeMovements{err: ledgerr.New("ledger.Append", ledgerr.KindInsufficientFunds, ledgerr.ErrInsufficientFunds)}
	h := NewHandler(fm, &fakeReads{}, noopDriver())

	body := `{"userId":"u1","assetCode":"GOLD_COIN","amount":"10"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/wallet/purchase", bytes.NewBufferString(body))
	req.Header.Set("Idempotency-Key", "k1")
	rec := httptest.NewRecorder()

	h.Purchase(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestTopUpMapsNotFoundTo404(t *testing.T) {
	fm := &fakeMovements{err: ledgerr.New("orchestrator.resolveAccounts", ledgerr.KindNotFound, ledgerr.ErrAssetNotFound)}
	h := NewHandler(fm, &fakeReads{}, noopDriver())

	body := `{"userId":"u1","assetCode":"NOPE","amount":"10"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/wallet/top-up", bytes.NewBufferString(body))
	req.Header.Set("Idempotency-Key", "k1")
	rec := httptest.NewRecorder()

	h.TopUp(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetBalanceWithAssetCodeScopesToOneAsset(t *testing.T) {
	fr := &fakeReads{balance: reader.Balance{AssetCode: "GOLD_COIN", AssetName: "Gold Coin", Balance: money.FromInt(5)}}
	h := NewHandler(&fakeMovements{}, fr, noopDriver())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet/u1/balance?assetCode=GOLD_COIN", nil)
	req = mux.SetURLVars(req, map[string]string{"userId": "u1"})
	rec := httptest.NewRecorder()

	h.GetBalance(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var bal reader.Balance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bal))
	assert.Equal(t, "GOLD_COIN", bal.AssetCode)
}

func TestGetBalanceWithoutAssetCodeReturnsAll(t *testing.T) {
	fr := &fakeReads{balances: []reader.Balance{
		{AssetCode: "GOLD_COIN", Balance: money.FromInt(5)},
		{AssetCode: "SILVER_COIN", Balance: money.FromInt(0)},
	}}
	h := NewHandler(&fakeMovements{}, fr, noopDriver())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet/u1/balance", nil)
	req = mux.SetURLVars(req, map[string]string{"userId": "u1"})
	rec := httptest.NewRecorder()

	h.GetBalance(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var balances []reader.Balance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &balances))
	assert.Len(t, balances, 2)
}

func TestGetHistoryPassesThroughLimitAndOffset(t *testing.T) {
	fr := &fakeReads{}
	h := NewHandler(&fakeMovements{}, fr, noopDriver())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet/u1/history?limit=5&offset=10", nil)
	req = mux.SetURLVars(req, map[string]string{"userId": "u1"})
	rec := httptest.NewRecorder()

	h.GetHistory(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, fr.lastLimit)
	assert.Equal(t, 10, fr.lastOffset)
}

func TestHealthCheckReportsOK(t *testing.T) {
	h := NewHandler(&fakeMovements{}, &fakeReads{}, noopDriver())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	h.HealthCheck(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

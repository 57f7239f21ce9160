package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouterDispatchesWalletRoutes(t *testing.T) {
	h := NewHandler(&fakeMovements{response: nil}, &fakeReads{}, noopDriver())
	router := NewRouter(h)

	cases := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodGet, "/health", ""},
		{http.MethodGet, "/api/v1/wallet/u1/balance", ""},
		{http.MethodGet, "/api/v1/wallet/u1/history", ""},
	}

	for _, c := range cases {
		req := httptest.NewRequest(c.method, c.path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.NotEqual(t, http.StatusNotFound, rec.Code, "%s %s should route somewhere", c.method, c.path)
	}
}

func TestRouterRejectsWrongMethod(t *testing.T) {
	h := NewHandler(&fakeMovements{}, &fakeReads{}, noopDriver())
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet/top-up", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

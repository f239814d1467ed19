package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/papertrade/market"
	"github.com/rustyeddy/papertrade/portfolio"
	"github.com/rustyeddy/papertrade/store"
	"github.com/rustyeddy/papertrade/watchlist"
)

func newTestServer(t *testing.T) (http.Handler, *market.Cache) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Init(10000, []string{"AAPL"}))

	cache := market.NewCache()
	acct := portfolio.NewAccountant(st, cache, portfolio.SellAtMarket, zerolog.Nop())
	watch := watchlist.NewService(st, cache)
	require.NoError(t, watch.Sync())

	srv := New(acct, watch, cache, nil, zerolog.Nop())
	return srv.Handler(), cache
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t)
	rec := doJSON(t, h, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestTradeFlowOverHTTP(t *testing.T) {
	h, cache := newTestServer(t)
	cache.Update("AAPL", 150)

	rec := doJSON(t, h, http.MethodPost, "/api/portfolio/trade",
		`{"ticker":"aapl","side":"buy","quantity":10}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		ID       string  `json:"id"`
		Ticker   string  `json:"ticker"`
		Side     string  `json:"side"`
		Quantity float64 `json:"quantity"`
		Price    float64 `json:"price"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "AAPL", resp.Ticker)
	assert.Equal(t, 150.0, resp.Price)

	rec = doJSON(t, h, http.MethodGet, "/api/portfolio", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var sum portfolio.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.InDelta(t, 8500, sum.CashBalance, 1e-9)
	require.Len(t, sum.Positions, 1)
	assert.Equal(t, "AAPL", sum.Positions[0].Ticker)

	rec = doJSON(t, h, http.MethodGet, "/api/portfolio/trades", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), resp.ID)

	// The post-trade snapshot shows up in history.
	rec = doJSON(t, h, http.MethodGet, "/api/portfolio/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history []snapshotResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Len(t, history, 1)
}

func TestTradeErrorMapping(t *testing.T) {
	h, cache := newTestServer(t)
	cache.Update("AAPL", 150)

	cases := []struct {
		name   string
		body   string
		status int
		detail string
	}{
		{"bad side", `{"ticker":"AAPL","side":"hold","quantity":1}`, http.StatusBadRequest, "side must be"},
		{"bad quantity", `{"ticker":"AAPL","side":"buy","quantity":0}`, http.StatusBadRequest, "quantity must be positive"},
		{"no price", `{"ticker":"ZZZZ","side":"buy","quantity":1}`, http.StatusBadRequest, "no price available for ZZZZ"},
		{"insufficient cash", `{"ticker":"AAPL","side":"buy","quantity":1000}`, http.StatusBadRequest, "insufficient cash"},
		{"insufficient shares", `{"ticker":"AAPL","side":"sell","quantity":5}`, http.StatusBadRequest, "insufficient shares"},
		{"garbage body", `{"ticker":`, http.StatusBadRequest, "invalid request body"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/api/portfolio/trade", tc.body)
			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.detail)
		})
	}
}

func TestPricesEndpoint(t *testing.T) {
	h, cache := newTestServer(t)
	cache.Update("AAPL", 190)

	rec := doJSON(t, h, http.MethodGet, "/api/prices", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []market.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "AAPL", entries[0].Ticker)
	assert.Equal(t, market.Flat, entries[0].Direction)
}

func TestWatchlistEndpoints(t *testing.T) {
	h, cache := newTestServer(t)
	cache.Update("AAPL", 190)

	rec := doJSON(t, h, http.MethodGet, "/api/watchlist", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "AAPL")

	rec = doJSON(t, h, http.MethodPost, "/api/watchlist", `{"ticker":"nvda"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "NVDA")

	rec = doJSON(t, h, http.MethodPost, "/api/watchlist", `{"ticker":"NVDA"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/watchlist", `{"ticker":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodDelete, "/api/watchlist/NVDA", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodDelete, "/api/watchlist/NVDA", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

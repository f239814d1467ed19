// Package api exposes the trading core over HTTP: prices, portfolio, trade
// execution, history, watchlist, the websocket price stream, and metrics.
// Both the browser UI and the chat/intent layer submit trades through the
// same POST /api/portfolio/trade entry point.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/papertrade/market"
	"github.com/rustyeddy/papertrade/metrics"
	"github.com/rustyeddy/papertrade/portfolio"
	"github.com/rustyeddy/papertrade/stream"
	"github.com/rustyeddy/papertrade/watchlist"
)

type Server struct {
	acct  *portfolio.Accountant
	watch *watchlist.Service
	cache *market.Cache
	hub   *stream.Hub
	log   zerolog.Logger
}

func New(acct *portfolio.Accountant, watch *watchlist.Service, cache *market.Cache, hub *stream.Hub, log zerolog.Logger) *Server {
	return &Server{acct: acct, watch: watch, cache: cache, hub: hub, log: log}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/prices", s.handlePrices)
	mux.HandleFunc("GET /api/portfolio", s.handlePortfolio)
	mux.HandleFunc("POST /api/portfolio/trade", s.handleTrade)
	mux.HandleFunc("GET /api/portfolio/history", s.handleHistory)
	mux.HandleFunc("GET /api/portfolio/trades", s.handleTrades)
	mux.HandleFunc("GET /api/watchlist", s.handleWatchlistGet)
	mux.HandleFunc("POST /api/watchlist", s.handleWatchlistAdd)
	mux.HandleFunc("DELETE /api/watchlist/{ticker}", s.handleWatchlistRemove)
	if s.hub != nil {
		mux.Handle("GET /api/stream/prices", s.hub)
	}
	mux.Handle("GET /metrics", metrics.Handler())

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.All())
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	sum, err := s.acct.Summary()
	if err != nil {
		s.internalError(w, err, "portfolio summary")
		return
	}
	if sum.Positions == nil {
		sum.Positions = []portfolio.PositionView{}
	}
	writeJSON(w, http.StatusOK, sum)
}

type tradeRequest struct {
	Ticker   string  `json:"ticker"`
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
}

type tradeResponse struct {
	ID         string  `json:"id"`
	Ticker     string  `json:"ticker"`
	Side       string  `json:"side"`
	Quantity   float64 `json:"quantity"`
	Price      float64 `json:"price"`
	ExecutedAt string  `json:"executed_at"`
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	trade, err := s.acct.Execute(req.Ticker, portfolio.Side(req.Side), req.Quantity)
	if err != nil {
		s.tradeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tradeResponse{
		ID:         trade.ID,
		Ticker:     trade.Ticker,
		Side:       trade.Side,
		Quantity:   trade.Quantity,
		Price:      trade.Price,
		ExecutedAt: trade.ExecutedAt.Format(timeLayout),
	})
}

// tradeError maps the accountant's taxonomy onto status codes: user-input
// and state errors are 400 with the error's own display detail, anything
// else is a 500.
func (s *Server) tradeError(w http.ResponseWriter, err error) {
	var (
		noPrice      *portfolio.NoPriceError
		insufficient *portfolio.InsufficientCashError
		shares       *portfolio.InsufficientSharesError
	)
	switch {
	case errors.Is(err, portfolio.ErrInvalidSide),
		errors.Is(err, portfolio.ErrInvalidQuantity),
		errors.As(err, &noPrice),
		errors.As(err, &insufficient),
		errors.As(err, &shares):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.internalError(w, err, "execute trade")
	}
}

type snapshotResponse struct {
	TotalValue float64 `json:"total_value"`
	RecordedAt string  `json:"recorded_at"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.acct.History()
	if err != nil {
		s.internalError(w, err, "portfolio history")
		return
	}

	out := make([]snapshotResponse, 0, len(snaps))
	for _, sn := range snaps {
		out = append(out, snapshotResponse{
			TotalValue: sn.TotalValue,
			RecordedAt: sn.RecordedAt.Format(timeLayout),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.acct.TradeLog(100)
	if err != nil {
		s.internalError(w, err, "trade log")
		return
	}

	out := make([]tradeResponse, 0, len(trades))
	for _, t := range trades {
		out = append(out, tradeResponse{
			ID:         t.ID,
			Ticker:     t.Ticker,
			Side:       t.Side,
			Quantity:   t.Quantity,
			Price:      t.Price,
			ExecutedAt: t.ExecutedAt.Format(timeLayout),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type watchRequest struct {
	Ticker string `json:"ticker"`
}

func (s *Server) handleWatchlistGet(w http.ResponseWriter, r *http.Request) {
	items, err := s.watch.List()
	if err != nil {
		s.internalError(w, err, "list watchlist")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleWatchlistAdd(w http.ResponseWriter, r *http.Request) {
	var req watchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := s.watch.Add(req.Ticker)
	if err != nil {
		var dup *watchlist.AlreadyWatchedError
		switch {
		case errors.Is(err, watchlist.ErrEmptyTicker):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &dup):
			writeError(w, http.StatusConflict, err.Error())
		default:
			s.internalError(w, err, "add watchlist ticker")
		}
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleWatchlistRemove(w http.ResponseWriter, r *http.Request) {
	err := s.watch.Remove(r.PathValue("ticker"))
	if err != nil {
		var missing *watchlist.NotWatchedError
		switch {
		case errors.Is(err, watchlist.ErrEmptyTicker):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &missing):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			s.internalError(w, err, "remove watchlist ticker")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) internalError(w http.ResponseWriter, err error, op string) {
	s.log.Error().Err(err).Str("op", op).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

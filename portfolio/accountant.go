// Package portfolio is the trade ledger and accounting engine for the single
// account: it executes orders against cached prices, maintains cash and
// positions under conservation invariants, and records immutable trade and
// value-snapshot history.
package portfolio

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/papertrade/market"
	"github.com/rustyeddy/papertrade/metrics"
	"github.com/rustyeddy/papertrade/pkg/id"
	"github.com/rustyeddy/papertrade/store"
)

// Side of an order.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// SellPolicy selects the price sells realize proceeds at. SellAtMarket is
// the P&L-consistent default; SellAtCost realizes at the position's average
// cost instead.
type SellPolicy string

const (
	SellAtMarket SellPolicy = "market"
	SellAtCost   SellPolicy = "cost"
)

// PositionView is a position marked to the current cached price.
type PositionView struct {
	Ticker        string  `json:"ticker"`
	Quantity      float64 `json:"quantity"`
	AvgCost       float64 `json:"avg_cost"`
	CurrentPrice  float64 `json:"current_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	PnLPercent    float64 `json:"pnl_percent"`
}

// Summary is the whole account marked to market.
type Summary struct {
	CashBalance float64        `json:"cash_balance"`
	TotalValue  float64        `json:"total_value"`
	Positions   []PositionView `json:"positions"`
}

// Accountant is the only writer of account state. Every trade runs inside
// one mutex-guarded critical section spanning the price read, the invariant
// checks, and the resulting mutation, so two concurrent orders can never
// both pass their checks against the same stale balance. The storage side
// of a trade lands as a single transaction via store.ApplyTrade.
type Accountant struct {
	mu         sync.Mutex
	store      store.Store
	cache      *market.Cache
	log        zerolog.Logger
	sellPolicy SellPolicy

	now func() time.Time // test hook
}

func NewAccountant(st store.Store, cache *market.Cache, policy SellPolicy, log zerolog.Logger) *Accountant {
	if policy == "" {
		policy = SellAtMarket
	}
	return &Accountant{
		store:      st,
		cache:      cache,
		log:        log,
		sellPolicy: policy,
		now:        time.Now,
	}
}

// Execute fills a market order at the current cached price and commits its
// full effect (cash, position, trade row, post-trade snapshot) atomically.
func (a *Accountant) Execute(ticker string, side Side, quantity float64) (store.Trade, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	if side != Buy && side != Sell {
		return store.Trade{}, ErrInvalidSide
	}
	if quantity <= 0 {
		return store.Trade{}, ErrInvalidQuantity
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.cache.Get(ticker)
	if !ok {
		return store.Trade{}, &NoPriceError{Ticker: ticker}
	}
	price := entry.Price

	cash, err := a.store.CashBalance()
	if err != nil {
		return store.Trade{}, err
	}

	now := a.now().UTC()
	var commit store.TradeCommit
	execPrice := price

	switch side {
	case Buy:
		cost := quantity * price
		if cost > cash {
			return store.Trade{}, &InsufficientCashError{Need: cost, Have: cash}
		}

		pos, held, err := a.store.Position(ticker)
		if err != nil {
			return store.Trade{}, err
		}

		next := store.Position{Ticker: ticker, Quantity: quantity, AvgCost: price, UpdatedAt: now}
		if held {
			next.Quantity = pos.Quantity + quantity
			next.AvgCost = (pos.Quantity*pos.AvgCost + quantity*price) / next.Quantity
		}
		commit = store.TradeCommit{Cash: cash - cost, Position: &next}

	case Sell:
		pos, held, err := a.store.Position(ticker)
		if err != nil {
			return store.Trade{}, err
		}
		if !held || pos.Quantity < quantity {
			var heldQty float64
			if held {
				heldQty = pos.Quantity
			}
			return store.Trade{}, &InsufficientSharesError{Ticker: ticker, Want: quantity, Held: heldQty}
		}

		if a.sellPolicy == SellAtCost {
			execPrice = pos.AvgCost
		}

		// A sell never alters the cost basis of the remaining shares.
		var next *store.Position
		if remaining := pos.Quantity - quantity; remaining > 0 {
			next = &store.Position{Ticker: ticker, Quantity: remaining, AvgCost: pos.AvgCost, UpdatedAt: now}
		}
		commit = store.TradeCommit{Cash: cash + quantity*execPrice, Position: next}
	}

	commit.Trade = store.Trade{
		ID:         id.New(),
		Ticker:     ticker,
		Side:       string(side),
		Quantity:   quantity,
		Price:      execPrice,
		ExecutedAt: now,
	}

	total, err := a.postTradeValue(commit, ticker)
	if err != nil {
		return store.Trade{}, err
	}
	commit.Snapshot = store.Snapshot{ID: id.New(), TotalValue: round2(total), RecordedAt: now}

	if err := a.store.ApplyTrade(commit); err != nil {
		return store.Trade{}, fmt.Errorf("commit trade: %w", err)
	}

	metrics.TradesTotal.WithLabelValues(string(side)).Inc()
	metrics.SnapshotsTotal.Inc()
	a.log.Info().
		Str("trade_id", commit.Trade.ID).
		Str("ticker", ticker).
		Str("side", string(side)).
		Float64("quantity", quantity).
		Float64("price", execPrice).
		Float64("cash", commit.Cash).
		Msg("trade executed")

	return commit.Trade, nil
}

// postTradeValue computes total account value as it will stand once the
// commit lands: committed cash plus every position marked to the cache,
// with the traded ticker's row replaced by the commit's version.
func (a *Accountant) postTradeValue(commit store.TradeCommit, traded string) (float64, error) {
	positions, err := a.store.Positions()
	if err != nil {
		return 0, err
	}

	total := commit.Cash
	for _, p := range positions {
		if p.Ticker == traded {
			continue
		}
		total += p.Quantity * a.markPrice(p)
	}
	if commit.Position != nil {
		total += commit.Position.Quantity * a.markPrice(*commit.Position)
	}
	return total, nil
}

// markPrice is the cached price for a position's ticker, falling back to the
// position's average cost when no price is cached.
func (a *Accountant) markPrice(p store.Position) float64 {
	if e, ok := a.cache.Get(p.Ticker); ok {
		return e.Price
	}
	return p.AvgCost
}

// Valuation returns cash plus the marked value of every position.
func (a *Accountant) Valuation() (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.valuationLocked()
}

func (a *Accountant) valuationLocked() (float64, error) {
	cash, err := a.store.CashBalance()
	if err != nil {
		return 0, err
	}
	positions, err := a.store.Positions()
	if err != nil {
		return 0, err
	}

	total := cash
	for _, p := range positions {
		total += p.Quantity * a.markPrice(p)
	}
	return total, nil
}

// Summary returns cash, total value, and every position with unrealized P&L
// at current cached prices.
func (a *Accountant) Summary() (Summary, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cash, err := a.store.CashBalance()
	if err != nil {
		return Summary{}, err
	}
	positions, err := a.store.Positions()
	if err != nil {
		return Summary{}, err
	}

	out := Summary{CashBalance: round2(cash), TotalValue: cash}
	for _, p := range positions {
		current := a.markPrice(p)
		out.TotalValue += p.Quantity * current
		out.Positions = append(out.Positions, PositionView{
			Ticker:        p.Ticker,
			Quantity:      p.Quantity,
			AvgCost:       round2(p.AvgCost),
			CurrentPrice:  round2(current),
			UnrealizedPnL: round2(UnrealizedPnL(p.Quantity, p.AvgCost, current)),
			PnLPercent:    round2(PnLPercent(p.AvgCost, current)),
		})
	}
	out.TotalValue = round2(out.TotalValue)
	return out, nil
}

// TakeSnapshot records the current total account value.
func (a *Accountant) TakeSnapshot() (store.Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	total, err := a.valuationLocked()
	if err != nil {
		return store.Snapshot{}, err
	}

	snap := store.Snapshot{ID: id.New(), TotalValue: round2(total), RecordedAt: a.now().UTC()}
	if err := a.store.AppendSnapshot(snap); err != nil {
		return store.Snapshot{}, err
	}

	metrics.SnapshotsTotal.Inc()
	return snap, nil
}

// History returns every recorded snapshot, oldest first.
func (a *Accountant) History() ([]store.Snapshot, error) {
	return a.store.Snapshots()
}

// TradeLog returns the most recent trades, newest first.
func (a *Accountant) TradeLog(limit int) ([]store.Trade, error) {
	return a.store.Trades(limit)
}

// UnrealizedPnL is (current - avgCost) * quantity.
func UnrealizedPnL(quantity, avgCost, current float64) float64 {
	return (current - avgCost) * quantity
}

// PnLPercent is the unrealized move in percent of cost basis, zero when the
// basis is zero.
func PnLPercent(avgCost, current float64) float64 {
	if avgCost == 0 {
		return 0
	}
	return (current - avgCost) / avgCost * 100
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

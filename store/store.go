// Package store persists the single trading account: cash balance,
// positions, the append-only trade log, portfolio value snapshots, and the
// watchlist. The accountant depends only on the Store interface, not on any
// engine; SQLite is the shipped implementation.
package store

import "time"

// Position is one holding. Quantity is always > 0 while the row exists; a
// position sold down to zero is deleted, never retained.
type Position struct {
	Ticker    string
	Quantity  float64
	AvgCost   float64
	UpdatedAt time.Time
}

// Trade is an immutable executed-order record. Rows are appended and never
// mutated or deleted.
type Trade struct {
	ID         string
	Ticker     string
	Side       string
	Quantity   float64
	Price      float64
	ExecutedAt time.Time
}

// Snapshot is an immutable (total account value, time) pair.
type Snapshot struct {
	ID         string
	TotalValue float64
	RecordedAt time.Time
}

// TradeCommit is the complete effect of one executed trade. Implementations
// apply it atomically: either every row lands or none do.
type TradeCommit struct {
	Cash     float64   // post-trade cash balance
	Position *Position // post-trade position; nil deletes the trade's ticker
	Trade    Trade
	Snapshot Snapshot
}

// Store is the narrow persistence contract the trading core depends on.
type Store interface {
	CashBalance() (float64, error)
	Position(ticker string) (Position, bool, error)
	Positions() ([]Position, error)
	ApplyTrade(TradeCommit) error
	Trades(limit int) ([]Trade, error)
	AppendSnapshot(Snapshot) error
	Snapshots() ([]Snapshot, error)
	Watchlist() ([]string, error)
	AddWatch(ticker string, at time.Time) (bool, error)
	RemoveWatch(ticker string) (bool, error)
	Close() error
}

package store

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*SQLite, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	s, err := NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s, path
}

func TestSchemaCreated(t *testing.T) {
	t.Parallel()

	s, path := newTestStore(t)
	require.NoError(t, s.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table'
		AND name IN ('account','positions','trades','snapshots','watchlist')`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	require.NoError(t, rows.Err())

	for _, table := range []string{"account", "positions", "trades", "snapshots", "watchlist"} {
		assert.True(t, found[table], "missing table %s", table)
	}
}

func TestInitSeedsOnce(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	defaults := []string{"AAPL", "MSFT", "JPM"}

	require.NoError(t, s.Init(10000, defaults))

	cash, err := s.CashBalance()
	require.NoError(t, err)
	assert.Equal(t, 10000.0, cash)

	watch, err := s.Watchlist()
	require.NoError(t, err)
	assert.Len(t, watch, 3)

	// Re-initializing must not duplicate seed cash or watchlist rows, and a
	// removed ticker must stay removed.
	removed, err := s.RemoveWatch("JPM")
	require.NoError(t, err)
	assert.True(t, removed)

	require.NoError(t, s.Init(10000, defaults))

	cash, err = s.CashBalance()
	require.NoError(t, err)
	assert.Equal(t, 10000.0, cash)

	watch, err = s.Watchlist()
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, watch)
}

func TestApplyTradeUpsertsPosition(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	require.NoError(t, s.Init(10000, nil))

	now := time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC)

	require.NoError(t, s.ApplyTrade(TradeCommit{
		Cash:     8500,
		Position: &Position{Ticker: "AAPL", Quantity: 10, AvgCost: 150, UpdatedAt: now},
		Trade:    Trade{ID: "T1", Ticker: "AAPL", Side: "buy", Quantity: 10, Price: 150, ExecutedAt: now},
		Snapshot: Snapshot{ID: "S1", TotalValue: 10000, RecordedAt: now},
	}))

	cash, err := s.CashBalance()
	require.NoError(t, err)
	assert.Equal(t, 8500.0, cash)

	pos, ok, err := s.Position("AAPL")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10.0, pos.Quantity)
	assert.Equal(t, 150.0, pos.AvgCost)

	// Second buy replaces the row in place.
	later := now.Add(time.Minute)
	require.NoError(t, s.ApplyTrade(TradeCommit{
		Cash:     6900,
		Position: &Position{Ticker: "AAPL", Quantity: 20, AvgCost: 155, UpdatedAt: later},
		Trade:    Trade{ID: "T2", Ticker: "AAPL", Side: "buy", Quantity: 10, Price: 160, ExecutedAt: later},
		Snapshot: Snapshot{ID: "S2", TotalValue: 10100, RecordedAt: later},
	}))

	pos, ok, err = s.Position("AAPL")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 20.0, pos.Quantity)
	assert.Equal(t, 155.0, pos.AvgCost)

	positions, err := s.Positions()
	require.NoError(t, err)
	assert.Len(t, positions, 1)
}

func TestApplyTradeDeletesPosition(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	require.NoError(t, s.Init(10000, nil))

	now := time.Now().UTC()
	require.NoError(t, s.ApplyTrade(TradeCommit{
		Cash:     8500,
		Position: &Position{Ticker: "AAPL", Quantity: 10, AvgCost: 150, UpdatedAt: now},
		Trade:    Trade{ID: "T1", Ticker: "AAPL", Side: "buy", Quantity: 10, Price: 150, ExecutedAt: now},
		Snapshot: Snapshot{ID: "S1", TotalValue: 10000, RecordedAt: now},
	}))

	// Sell-all commit carries a nil position: the row must go away.
	require.NoError(t, s.ApplyTrade(TradeCommit{
		Cash:     10000,
		Position: nil,
		Trade:    Trade{ID: "T2", Ticker: "AAPL", Side: "sell", Quantity: 10, Price: 150, ExecutedAt: now.Add(time.Second)},
		Snapshot: Snapshot{ID: "S2", TotalValue: 10000, RecordedAt: now.Add(time.Second)},
	}))

	_, ok, err := s.Position("AAPL")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApplyTradeIsAtomic(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	require.NoError(t, s.Init(10000, nil))

	now := time.Now().UTC()
	commit := TradeCommit{
		Cash:     8500,
		Position: &Position{Ticker: "AAPL", Quantity: 10, AvgCost: 150, UpdatedAt: now},
		Trade:    Trade{ID: "T1", Ticker: "AAPL", Side: "buy", Quantity: 10, Price: 150, ExecutedAt: now},
		Snapshot: Snapshot{ID: "S1", TotalValue: 10000, RecordedAt: now},
	}
	require.NoError(t, s.ApplyTrade(commit))

	// Re-applying the same commit violates the trades primary key; nothing
	// from the failed transaction may stick.
	commit.Cash = 7000
	require.Error(t, s.ApplyTrade(commit))

	cash, err := s.CashBalance()
	require.NoError(t, err)
	assert.Equal(t, 8500.0, cash)

	snaps, err := s.Snapshots()
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestTradesNewestFirstWithLimit(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	require.NoError(t, s.Init(10000, nil))

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"T1", "T2", "T3"} {
		require.NoError(t, s.ApplyTrade(TradeCommit{
			Cash:     10000,
			Position: &Position{Ticker: "AAPL", Quantity: 1, AvgCost: 100, UpdatedAt: base},
			Trade:    Trade{ID: id, Ticker: "AAPL", Side: "buy", Quantity: 1, Price: 100, ExecutedAt: base.Add(time.Duration(i) * time.Minute)},
			Snapshot: Snapshot{ID: "S" + id, TotalValue: 10000, RecordedAt: base},
		}))
	}

	trades, err := s.Trades(2)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "T3", trades[0].ID)
	assert.Equal(t, "T2", trades[1].ID)

	all, err := s.Trades(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSnapshotsOrderedByTime(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	require.NoError(t, s.Init(10000, nil))

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.AppendSnapshot(Snapshot{ID: "S2", TotalValue: 10100, RecordedAt: base.Add(time.Minute)}))
	require.NoError(t, s.AppendSnapshot(Snapshot{ID: "S1", TotalValue: 10000, RecordedAt: base}))

	snaps, err := s.Snapshots()
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "S1", snaps[0].ID)
	assert.Equal(t, "S2", snaps[1].ID)
}

func TestWatchlistAddRemove(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	require.NoError(t, s.Init(10000, nil))

	now := time.Now().UTC()

	added, err := s.AddWatch("NVDA", now)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.AddWatch("NVDA", now)
	require.NoError(t, err)
	assert.False(t, added, "duplicate add must report false")

	removed, err := s.RemoveWatch("NVDA")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.RemoveWatch("NVDA")
	require.NoError(t, err)
	assert.False(t, removed, "missing remove must report false")
}

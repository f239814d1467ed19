package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite implements Store on a local SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at path and ensures the
// schema exists.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// A single writer connection sidesteps SQLITE_BUSY under concurrent
	// trade/snapshot commits.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Init seeds the default account and watchlist exactly once. Calling it
// against an already-seeded database changes nothing: the seed cash is not
// re-applied and watchlist rows are not duplicated or resurrected.
func (s *SQLite) Init(seedCash float64, watchlist []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM account`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(
		`INSERT INTO account (id, cash_balance, created_at) VALUES (?, ?, ?)`,
		accountID, seedCash, now,
	); err != nil {
		return err
	}
	for _, ticker := range watchlist {
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO watchlist (ticker, added_at) VALUES (?, ?)`,
			ticker, now,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLite) CashBalance() (float64, error) {
	var cash float64
	err := s.db.QueryRow(
		`SELECT cash_balance FROM account WHERE id = ?`, accountID,
	).Scan(&cash)
	if err != nil {
		return 0, fmt.Errorf("read cash balance: %w", err)
	}
	return cash, nil
}

func (s *SQLite) Position(ticker string) (Position, bool, error) {
	var p Position
	err := s.db.QueryRow(
		`SELECT ticker, quantity, avg_cost, updated_at FROM positions WHERE ticker = ?`,
		ticker,
	).Scan(&p.Ticker, &p.Quantity, &p.AvgCost, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return Position{}, false, nil
	}
	if err != nil {
		return Position{}, false, err
	}
	return p, true, nil
}

func (s *SQLite) Positions() ([]Position, error) {
	rows, err := s.db.Query(
		`SELECT ticker, quantity, avg_cost, updated_at FROM positions ORDER BY ticker`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p.Ticker, &p.Quantity, &p.AvgCost, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ApplyTrade lands the cash update, the position upsert-or-delete, the trade
// row, and the post-trade snapshot in one transaction.
func (s *SQLite) ApplyTrade(c TradeCommit) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE account SET cash_balance = ? WHERE id = ?`, c.Cash, accountID,
	); err != nil {
		return err
	}

	if c.Position != nil {
		if _, err := tx.Exec(
			`INSERT INTO positions (ticker, quantity, avg_cost, updated_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(ticker) DO UPDATE SET
			   quantity = excluded.quantity,
			   avg_cost = excluded.avg_cost,
			   updated_at = excluded.updated_at`,
			c.Position.Ticker, c.Position.Quantity, c.Position.AvgCost, c.Position.UpdatedAt,
		); err != nil {
			return err
		}
	} else {
		if _, err := tx.Exec(
			`DELETE FROM positions WHERE ticker = ?`, c.Trade.Ticker,
		); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(
		`INSERT INTO trades (trade_id, ticker, side, quantity, price, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.Trade.ID, c.Trade.Ticker, c.Trade.Side, c.Trade.Quantity, c.Trade.Price, c.Trade.ExecutedAt,
	); err != nil {
		return err
	}

	if _, err := tx.Exec(
		`INSERT INTO snapshots (snapshot_id, total_value, recorded_at) VALUES (?, ?, ?)`,
		c.Snapshot.ID, c.Snapshot.TotalValue, c.Snapshot.RecordedAt,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// Trades returns the most recent trades, newest first. limit <= 0 returns
// everything.
func (s *SQLite) Trades(limit int) ([]Trade, error) {
	q := `SELECT trade_id, ticker, side, quantity, price, executed_at
	      FROM trades ORDER BY executed_at DESC, trade_id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.ID, &t.Ticker, &t.Side, &t.Quantity, &t.Price, &t.ExecutedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLite) AppendSnapshot(snap Snapshot) error {
	_, err := s.db.Exec(
		`INSERT INTO snapshots (snapshot_id, total_value, recorded_at) VALUES (?, ?, ?)`,
		snap.ID, snap.TotalValue, snap.RecordedAt,
	)
	return err
}

// Snapshots returns every snapshot ordered by recorded time.
func (s *SQLite) Snapshots() ([]Snapshot, error) {
	rows, err := s.db.Query(
		`SELECT snapshot_id, total_value, recorded_at FROM snapshots ORDER BY recorded_at, snapshot_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var sn Snapshot
		if err := rows.Scan(&sn.ID, &sn.TotalValue, &sn.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, sn)
	}
	return out, rows.Err()
}

func (s *SQLite) Watchlist() ([]string, error) {
	rows, err := s.db.Query(`SELECT ticker FROM watchlist ORDER BY added_at, ticker`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// AddWatch inserts a watchlist row; it reports false when the ticker was
// already present.
func (s *SQLite) AddWatch(ticker string, at time.Time) (bool, error) {
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO watchlist (ticker, added_at) VALUES (?, ?)`,
		ticker, at,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RemoveWatch deletes a watchlist row; it reports false when the ticker was
// not present.
func (s *SQLite) RemoveWatch(ticker string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM watchlist WHERE ticker = ?`, ticker)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

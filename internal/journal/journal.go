// Package journal persists executed trades to SQLite for audit and
// offline analysis. The in-memory trade log remains the source of
// truth; the journal is written off the hot path and never read back
// into the simulator.
package journal

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"cryptobot/internal/model"
)

// Journal appends trades to a SQLite database.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (or creates) the journal database.
func Open(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id          TEXT PRIMARY KEY,
		pair        TEXT NOT NULL,
		side        TEXT NOT NULL,
		price       REAL NOT NULL,
		amount      REAL NOT NULL,
		usd_value   REAL NOT NULL,
		confidence  REAL DEFAULT 0,
		trig        TEXT NOT NULL,
		reasoning   TEXT,
		executed_at DATETIME NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_trades_pair ON trades(pair);
	CREATE INDEX IF NOT EXISTS idx_trades_executed_at ON trades(executed_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// DB exposes the underlying handle for health probes.
func (j *Journal) DB() *sql.DB { return j.db }

// Record persists one trade.
func (j *Journal) Record(trade model.Trade) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT OR IGNORE INTO trades (id, pair, side, price, amount, usd_value, confidence, trig, reasoning, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.ID,
		trade.Pair,
		string(trade.Side),
		trade.Price,
		trade.Amount,
		trade.USDValue,
		trade.Confidence,
		string(trade.Trigger),
		trade.Reasoning,
		trade.Timestamp.Format(time.RFC3339),
	)
	return err
}

// Recent returns the last N journaled trades, newest first.
func (j *Journal) Recent(limit int) ([]model.Trade, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, pair, side, price, amount, usd_value, confidence, trig, reasoning, executed_at
		 FROM trades ORDER BY executed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var side, trig, executedAt string
		if err := rows.Scan(&t.ID, &t.Pair, &side, &t.Price, &t.Amount,
			&t.USDValue, &t.Confidence, &trig, &t.Reasoning, &executedAt); err != nil {
			continue
		}
		t.Side = model.TradeSide(side)
		t.Trigger = model.Trigger(trig)
		if ts, err := time.Parse(time.RFC3339, executedAt); err == nil {
			t.Timestamp = ts
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Package store provides the on-disk trade journal.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"neo-terminal/internal/models"
	"neo-terminal/internal/paper"
)

// TradeJournal is an append-only record of simulated executions. It is
// a write-mostly audit log; the in-memory engine never reads it back
// at startup.
type TradeJournal struct {
	db *sql.DB
}

const journalSchema = `
CREATE TABLE IF NOT EXISTS fills (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	order_id TEXT NOT NULL,
	trading_symbol TEXT NOT NULL,
	exchange_segment TEXT NOT NULL,
	transaction_type TEXT NOT NULL,
	product TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	price REAL NOT NULL,
	filled_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fills_symbol ON fills(trading_symbol);
CREATE INDEX IF NOT EXISTS idx_fills_filled_at ON fills(filled_at);
`

// OpenJournal opens (creating if necessary) the journal database at
// path.
func OpenJournal(path string) (*TradeJournal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing journal schema: %w", err)
	}
	return &TradeJournal{db: db}, nil
}

// LogFill appends one execution.
func (j *TradeJournal) LogFill(f paper.Fill) error {
	_, err := j.db.Exec(
		`INSERT INTO fills (order_id, trading_symbol, exchange_segment, transaction_type, product, quantity, price, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.OrderID, f.TradingSymbol, f.ExchangeSegment, string(f.TransactionType), string(f.Product),
		f.Quantity, f.Price, f.FilledAt,
	)
	if err != nil {
		return fmt.Errorf("journaling fill: %w", err)
	}
	return nil
}

// RecentFills returns up to limit executions, newest first.
func (j *TradeJournal) RecentFills(limit int) ([]paper.Fill, error) {
	rows, err := j.db.Query(
		`SELECT order_id, trading_symbol, exchange_segment, transaction_type, product, quantity, price, filled_at
		 FROM fills ORDER BY filled_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying fills: %w", err)
	}
	defer rows.Close()

	var fills []paper.Fill
	for rows.Next() {
		var f paper.Fill
		var txn, product string
		var filledAt time.Time
		if err := rows.Scan(&f.OrderID, &f.TradingSymbol, &f.ExchangeSegment, &txn, &product, &f.Quantity, &f.Price, &filledAt); err != nil {
			return nil, fmt.Errorf("scanning fill: %w", err)
		}
		f.TransactionType = models.TransactionType(txn)
		f.Product = models.ProductType(product)
		f.FilledAt = filledAt
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// Close closes the underlying database.
func (j *TradeJournal) Close() error {
	return j.db.Close()
}

package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/trade_engine/internal/domain"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			ticket INTEGER NOT NULL DEFAULT 0,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			action TEXT NOT NULL,
			volume REAL NOT NULL,
			price REAL NOT NULL,
			stop_loss REAL NOT NULL,
			take_profit REAL NOT NULL,
			fill_mode TEXT NOT NULL DEFAULT '',
			comment TEXT NOT NULL,
			dry_run BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol);`,
		`CREATE TABLE IF NOT EXISTS position_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			volume REAL NOT NULL,
			entry_price REAL NOT NULL,
			exit_price REAL NOT NULL,
			profit REAL NOT NULL,
			closed_at DATETIME NOT NULL
		);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}

	return nil
}

// OrderRepository Implementation

func (s *SQLiteStore) SaveOrder(ctx context.Context, order *domain.ExecutedOrder) error {
	query := `INSERT OR REPLACE INTO orders (id, ticket, symbol, side, action, volume, price, stop_loss, take_profit, fill_mode, comment, dry_run, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		order.ID, order.Ticket, order.Symbol, order.Side, order.Action, order.Volume,
		order.Price, order.StopLoss, order.TakeProfit, order.FillMode, order.Comment,
		order.DryRun, order.CreatedAt)
	return err
}

func (s *SQLiteStore) ListOrders(ctx context.Context, limit int) ([]*domain.ExecutedOrder, error) {
	query := `SELECT id, ticket, symbol, side, action, volume, price, stop_loss, take_profit, fill_mode, comment, dry_run, created_at
			  FROM orders ORDER BY created_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*domain.ExecutedOrder
	for rows.Next() {
		var o domain.ExecutedOrder
		if err := rows.Scan(&o.ID, &o.Ticket, &o.Symbol, &o.Side, &o.Action, &o.Volume,
			&o.Price, &o.StopLoss, &o.TakeProfit, &o.FillMode, &o.Comment, &o.DryRun, &o.CreatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, &o)
	}
	return orders, rows.Err()
}

func (s *SQLiteStore) SavePositionHistory(ctx context.Context, history *domain.PositionHistory) error {
	query := `INSERT INTO position_history (symbol, side, volume, entry_price, exit_price, profit, closed_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		history.Symbol, history.Side, history.Volume, history.EntryPrice,
		history.ExitPrice, history.Profit, history.ClosedAt)
	return err
}

func (s *SQLiteStore) ListPositionHistory(ctx context.Context, limit int) ([]*domain.PositionHistory, error) {
	query := `SELECT id, symbol, side, volume, entry_price, exit_price, profit, closed_at
			  FROM position_history ORDER BY closed_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.PositionHistory
	for rows.Next() {
		var h domain.PositionHistory
		if err := rows.Scan(&h.ID, &h.Symbol, &h.Side, &h.Volume, &h.EntryPrice,
			&h.ExitPrice, &h.Profit, &h.ClosedAt); err != nil {
			return nil, err
		}
		items = append(items, &h)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

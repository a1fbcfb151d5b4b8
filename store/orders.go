package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"ffcentral/orders"
)

const orderColumns = `order_id, order_type, workpiece_type, workpiece_id, state, stock_location,
	order_update_id, steps, received_at, started_at, stopped_at`

// SaveOrder inserts or replaces the order with its steps.
func (db *DB) SaveOrder(o *orders.Order) error {
	steps, err := json.Marshal(o.Steps)
	if err != nil {
		return fmt.Errorf("encode steps of %s: %w", o.OrderID, err)
	}
	_, err = db.Exec(db.Q(`INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (order_id) DO UPDATE SET
			state=excluded.state,
			workpiece_id=excluded.workpiece_id,
			stock_location=excluded.stock_location,
			order_update_id=excluded.order_update_id,
			steps=excluded.steps,
			started_at=excluded.started_at,
			stopped_at=excluded.stopped_at,
			updated_at={{now}}`),
		o.OrderID, string(o.OrderType), o.Type, o.WorkpieceID, string(o.State), o.StockLocation,
		o.OrderUpdateID, string(steps), formatTime(o.ReceivedAt), nullTime(o.StartedAt), nullTime(o.StoppedAt))
	return err
}

func scanOrder(scanner interface{ Scan(...any) error }) (*orders.Order, error) {
	var o orders.Order
	var orderType, state string
	var steps []byte
	var receivedAt, startedAt, stoppedAt any
	err := scanner.Scan(&o.OrderID, &orderType, &o.Type, &o.WorkpieceID, &state, &o.StockLocation,
		&o.OrderUpdateID, &steps, &receivedAt, &startedAt, &stoppedAt)
	if err != nil {
		return nil, err
	}
	o.OrderType = orders.OrderType(orderType)
	o.State = orders.State(state)
	o.ReceivedAt = parseTime(receivedAt)
	o.StartedAt = parseTimePtr(startedAt)
	o.StoppedAt = parseTimePtr(stoppedAt)
	if err := json.Unmarshal(steps, &o.Steps); err != nil {
		return nil, fmt.Errorf("decode steps of %s: %w", o.OrderID, err)
	}
	return &o, nil
}

func (db *DB) GetOrder(orderID string) (*orders.Order, error) {
	row := db.QueryRow(db.Q(`SELECT `+orderColumns+` FROM orders WHERE order_id=?`), orderID)
	return scanOrder(row)
}

// ListOrders returns orders in the given states oldest first, or every order when none are given.
func (db *DB) ListOrders(states ...orders.State) ([]*orders.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	args := make([]any, len(states))
	if len(states) > 0 {
		marks := make([]string, len(states))
		for i, s := range states {
			marks[i] = "?"
			args[i] = string(s)
		}
		query += ` WHERE state IN (` + strings.Join(marks, ", ") + `)`
	}
	query += ` ORDER BY received_at, order_id`
	rows, err := db.Query(db.Q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*orders.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListOpenOrders returns the queued and in-progress orders to restore after a restart.
func (db *DB) ListOpenOrders() ([]*orders.Order, error) {
	return db.ListOrders(orders.Enqueued, orders.InProgress)
}

// ListRecentOrders returns up to limit finished, failed or cancelled orders, newest first.
func (db *DB) ListRecentOrders(limit int) ([]*orders.Order, error) {
	rows, err := db.Query(db.Q(`SELECT `+orderColumns+` FROM orders
		WHERE state NOT IN (?, ?) ORDER BY stopped_at DESC LIMIT ?`),
		string(orders.Enqueued), string(orders.InProgress), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*orders.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// DeleteOrder removes an order row. It reports sql.ErrNoRows for unknown ids.
func (db *DB) DeleteOrder(orderID string) error {
	res, err := db.Exec(db.Q(`DELETE FROM orders WHERE order_id=?`), orderID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// StockLocation is one warehouse slot. An empty WorkpieceType means the slot is empty.
type StockLocation struct {
	Location      string    `json:"location"`
	WorkpieceType string    `json:"workpieceType,omitempty"`
	WorkpieceID   string    `json:"workpieceId,omitempty"`
	ReservedBy    string    `json:"reservedBy,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// SeedLocations creates missing warehouse slots. Existing slots keep their contents.
func (db *DB) SeedLocations(locations []string) error {
	for _, loc := range locations {
		_, err := db.Exec(db.Q(`INSERT INTO stock_locations (location) VALUES (?) ON CONFLICT (location) DO NOTHING`), loc)
		if err != nil {
			return fmt.Errorf("seed stock location %s: %w", loc, err)
		}
	}
	return nil
}

func (db *DB) ListStock() ([]*StockLocation, error) {
	rows, err := db.Query(`SELECT location, workpiece_type, workpiece_id, reserved_by, updated_at FROM stock_locations ORDER BY location`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*StockLocation
	for rows.Next() {
		var s StockLocation
		var updatedAt any
		if err := rows.Scan(&s.Location, &s.WorkpieceType, &s.WorkpieceID, &s.ReservedBy, &updatedAt); err != nil {
			return nil, err
		}
		s.UpdatedAt = parseTime(updatedAt)
		out = append(out, &s)
	}
	return out, rows.Err()
}

// SetStock places a workpiece into a slot, or empties it when workpieceType is "".
func (db *DB) SetStock(location, workpieceType, workpieceID string) error {
	res, err := db.Exec(db.Q(`UPDATE stock_locations SET workpiece_type=?, workpiece_id=?, updated_at={{now}} WHERE location=?`),
		workpieceType, workpieceID, location)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("unknown stock location %s", location)
	}
	return nil
}

// reserve claims the first unreserved slot whose workpiece type equals want for orderID.
// A slot already held by orderID is returned again.
func (db *DB) reserve(orderID, want string) (string, error) {
	tx, err := db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var loc string
	err = tx.QueryRow(db.Q(`SELECT location FROM stock_locations WHERE reserved_by=? ORDER BY location LIMIT 1`), orderID).Scan(&loc)
	if err == nil {
		return loc, tx.Commit()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	err = tx.QueryRow(db.Q(`SELECT location FROM stock_locations WHERE workpiece_type=? AND reserved_by='' ORDER BY location LIMIT 1`), want).Scan(&loc)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if _, err := tx.Exec(db.Q(`UPDATE stock_locations SET reserved_by=?, updated_at={{now}} WHERE location=?`), orderID, loc); err != nil {
		return "", err
	}
	return loc, tx.Commit()
}

// ReserveWorkpiece reserves a slot holding a workpiece of workpieceType, returning "" when none is free.
func (db *DB) ReserveWorkpiece(orderID, workpieceType string) (string, error) {
	if workpieceType == "" {
		return "", fmt.Errorf("workpiece type required")
	}
	return db.reserve(orderID, workpieceType)
}

// ReserveEmptyBay reserves an empty slot, returning "" when the warehouse is full.
func (db *DB) ReserveEmptyBay(orderID, workpieceType string) (string, error) {
	return db.reserve(orderID, "")
}

func (db *DB) RemoveReservation(orderID string) error {
	_, err := db.Exec(db.Q(`UPDATE stock_locations SET reserved_by='', updated_at={{now}} WHERE reserved_by=?`), orderID)
	return err
}

// CompleteRemoval empties the slot reserved by orderID once its workpiece left the warehouse.
func (db *DB) CompleteRemoval(orderID string) error {
	_, err := db.Exec(db.Q(`UPDATE stock_locations SET workpiece_type='', workpiece_id='', reserved_by='', updated_at={{now}}
		WHERE reserved_by=?`), orderID)
	return err
}

// CompleteStorage fills the slot reserved by orderID with the stored workpiece.
func (db *DB) CompleteStorage(orderID, workpieceType, workpieceID string) error {
	_, err := db.Exec(db.Q(`UPDATE stock_locations SET workpiece_type=?, workpiece_id=?, reserved_by='', updated_at={{now}}
		WHERE reserved_by=?`), workpieceType, workpieceID, orderID)
	return err
}

func (db *DB) ClearReservations() error {
	_, err := db.Exec(db.Q(`UPDATE stock_locations SET reserved_by='', updated_at={{now}} WHERE reserved_by<>''`))
	return err
}

// ClearStock empties every slot and drops all reservations.
func (db *DB) ClearStock() error {
	_, err := db.Exec(db.Q(`UPDATE stock_locations SET workpiece_type='', workpiece_id='', reserved_by='', updated_at={{now}}`))
	return err
}

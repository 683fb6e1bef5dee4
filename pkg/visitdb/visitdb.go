// Package visitdb persists finalized visits in a local sqlite database and
// restores the last detected visit weight across restarts.
package visitdb

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Visit denotes a single persisted visit record
type Visit struct {
	ID          int64     `json:"id"`
	RecordedAt  time.Time `json:"recorded_at"`
	VisitWeight float64   `json:"visit_weight"`
	WasteWeight float64   `json:"waste_weight"`
}

// DB denotes a handle to the visit database
type DB struct {
	*sql.DB
}

// Open opens (and if necessary initializes) the visit database at the given path
func Open(path string) (*DB, error) {

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS visits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			recorded_at TIMESTAMP NOT NULL,
			visit_weight DOUBLE NOT NULL,
			waste_weight DOUBLE NOT NULL DEFAULT 0
		);
	`); err != nil {
		return nil, fmt.Errorf("failed to initialize visit table: %w", err)
	}

	return &DB{db}, nil
}

// RecordVisit appends a finalized visit and returns its row ID
func (db *DB) RecordVisit(recordedAt time.Time, visitWeight float64) (int64, error) {

	res, err := db.Exec("INSERT INTO visits (recorded_at, visit_weight) VALUES (?, ?)",
		recordedAt, visitWeight)
	if err != nil {
		return 0, err
	}

	return res.LastInsertId()
}

// SetWasteWeight records the residual mass for a previously recorded visit,
// once the baseline has re-settled
func (db *DB) SetWasteWeight(id int64, wasteWeight float64) error {

	_, err := db.Exec("UPDATE visits SET waste_weight = ? WHERE id = ?", wasteWeight, id)
	return err
}

// LastVisitWeight returns the most recently recorded visit weight, and false
// if no visit has been recorded yet
func (db *DB) LastVisitWeight() (float64, bool, error) {

	var weight float64
	err := db.QueryRow("SELECT visit_weight FROM visits ORDER BY id DESC LIMIT 1").Scan(&weight)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	return weight, true, nil
}

// RecentVisits returns up to limit visits, newest first
func (db *DB) RecentVisits(limit int) ([]Visit, error) {

	rows, err := db.Query("SELECT id, recorded_at, visit_weight, waste_weight FROM visits ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var visits []Visit
	for rows.Next() {
		var v Visit
		if err := rows.Scan(&v.ID, &v.RecordedAt, &v.VisitWeight, &v.WasteWeight); err != nil {
			return nil, err
		}
		visits = append(visits, v)
	}

	return visits, rows.Err()
}

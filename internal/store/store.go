// Package store persists calibration artifacts (the solved intrinsic
// model and the operator-supplied extrinsic pose) in SQLite. Writes are
// transactional replace-wholesale: a failed save can never corrupt the
// previously stored artifact, and readers only ever see a complete row.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/aquasight/sonarcam/internal/camera"
)

// Store wraps the calibration database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the calibration database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS intrinsics (
			id          INTEGER PRIMARY KEY CHECK (id = 1),
			body        TEXT NOT NULL,
			rms_px      DOUBLE,
			saved_at    TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS extrinsics (
			id          INTEGER PRIMARY KEY CHECK (id = 1),
			body        TEXT NOT NULL,
			saved_at    TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// SaveIntrinsics replaces the stored intrinsic model. The replace happens
// inside a transaction; on any failure the previous model remains.
func (s *Store) SaveIntrinsics(in *camera.Intrinsics, rmsPx float64) error {
	if err := in.CheckValid(); err != nil {
		return fmt.Errorf("refusing to persist invalid intrinsics: %w", err)
	}
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return s.replaceRow(
		`INSERT INTO intrinsics (id, body, rms_px, saved_at) VALUES (1, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(id) DO UPDATE SET body = excluded.body, rms_px = excluded.rms_px, saved_at = excluded.saved_at`,
		string(body), rmsPx)
}

// LoadIntrinsics returns the stored model, its RMS reprojection error and
// whether a model exists.
func (s *Store) LoadIntrinsics() (*camera.Intrinsics, float64, bool, error) {
	var body string
	var rms sql.NullFloat64
	err := s.db.QueryRow(`SELECT body, rms_px FROM intrinsics WHERE id = 1`).Scan(&body, &rms)
	if err == sql.ErrNoRows {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, err
	}
	var in camera.Intrinsics
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		return nil, 0, false, fmt.Errorf("stored intrinsics are unreadable: %w", err)
	}
	return &in, rms.Float64, true, nil
}

// SaveExtrinsics replaces the stored sonar-to-camera pose. Last saved
// wins; there is no history.
func (s *Store) SaveExtrinsics(p *camera.Pose) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("refusing to persist invalid pose: %w", err)
	}
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.replaceRow(
		`INSERT INTO extrinsics (id, body, saved_at) VALUES (1, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(id) DO UPDATE SET body = excluded.body, saved_at = excluded.saved_at`,
		string(body))
}

// LoadExtrinsics returns the stored pose and whether one exists.
func (s *Store) LoadExtrinsics() (*camera.Pose, bool, error) {
	var body string
	err := s.db.QueryRow(`SELECT body FROM extrinsics WHERE id = 1`).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var p camera.Pose
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil, false, fmt.Errorf("stored extrinsics are unreadable: %w", err)
	}
	return &p, true, nil
}

func (s *Store) replaceRow(query string, args ...any) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(query, args...); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

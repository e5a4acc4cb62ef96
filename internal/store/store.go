// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package store keeps a history of calibration results in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no calibration matches a query.
var ErrNotFound = errors.New("store: calibration not found")

// Record is one stored calibration. Document holds the full result JSON.
type Record struct {
	ID            string    `json:"id"`
	Source        string    `json:"source"`
	CalibratedAt  time.Time `json:"calibrated_at"`
	FieldStrength float64   `json:"field_strength"`
	SampleCount   int       `json:"sample_count"`
	Confidence    float64   `json:"confidence"`
	Document      []byte    `json:"-"`
}

// DB wraps the history database.
type DB struct {
	*sql.DB
}

// Open opens (or creates) the database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// a single connection keeps ":memory:" databases coherent
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS calibrations (
			calibration_id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			calibrated_at INTEGER NOT NULL,
			field_strength DOUBLE NOT NULL,
			sample_count INTEGER NOT NULL,
			confidence DOUBLE NOT NULL,
			document TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_calibrations_source_time
			ON calibrations (source, calibrated_at DESC);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &DB{db}, nil
}

// Save inserts rec, assigning an ID when empty, and returns the stored ID.
func (db *DB) Save(rec Record) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	_, err := db.Exec(`INSERT INTO calibrations
		(calibration_id, source, calibrated_at, field_strength, sample_count, confidence, document)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Source, rec.CalibratedAt.UTC().UnixNano(), rec.FieldStrength,
		rec.SampleCount, rec.Confidence, string(rec.Document))
	if err != nil {
		return "", fmt.Errorf("store: insert calibration: %w", err)
	}
	return rec.ID, nil
}

const selectColumns = `SELECT calibration_id, source, calibrated_at, field_strength, sample_count, confidence, document FROM calibrations`

// Latest returns the most recent calibration, restricted to source when it
// is not empty.
func (db *DB) Latest(source string) (Record, error) {
	var row *sql.Row
	if source == "" {
		row = db.QueryRow(selectColumns + ` ORDER BY calibrated_at DESC LIMIT 1`)
	} else {
		row = db.QueryRow(selectColumns+` WHERE source = ? ORDER BY calibrated_at DESC LIMIT 1`, source)
	}
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// Get returns the calibration with the given ID.
func (db *DB) Get(id string) (Record, error) {
	rec, err := scanRecord(db.QueryRow(selectColumns+` WHERE calibration_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// List returns up to limit calibrations, newest first.
func (db *DB) List(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(selectColumns+` ORDER BY calibrated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list calibrations: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list calibrations: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var (
		rec Record
		ns  int64
		doc string
	)
	if err := s.Scan(&rec.ID, &rec.Source, &ns, &rec.FieldStrength, &rec.SampleCount, &rec.Confidence, &doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("store: scan calibration: %w", err)
	}
	rec.CalibratedAt = time.Unix(0, ns).UTC()
	rec.Document = []byte(doc)
	return rec, nil
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/relabs-tech/magcal/internal/config"
	"github.com/relabs-tech/magcal/internal/magcal"
	"github.com/relabs-tech/magcal/internal/report"
	"github.com/relabs-tech/magcal/internal/store"
)

// ResultFileName returns <source>_<unix>_mag_calibration.json.
func ResultFileName(res Result) string {
	return fmt.Sprintf("%s_%d_mag_calibration.json", res.Source, res.CalibrationAt.Unix())
}

// WriteResult writes res as indented JSON into dir and returns the path.
func WriteResult(dir string, res Result) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal calibration result: %w", err)
	}
	path := filepath.Join(dir, ResultFileName(res))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write calibration file: %w", err)
	}
	return path, nil
}

// ReadResult loads a result written by WriteResult.
func ReadResult(path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read calibration file: %w", err)
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return Result{}, fmt.Errorf("invalid calibration file %s: %w", path, err)
	}
	if res.SchemaVersion != ResultSchemaVersion {
		return Result{}, fmt.Errorf("calibration file %s: unsupported schema_version %d", path, res.SchemaVersion)
	}
	return res, nil
}

// Persisted lists what PersistResult produced.
type Persisted struct {
	Result Result
	File   string
	Plots  []string
}

// PersistResult writes the JSON document into CAL_OUTPUT_DIR, records it in
// the history database when db is non-nil, and renders the diagnostic plots
// when CAL_PLOT is set. Only the JSON write is fatal.
func PersistResult(cfg *config.Config, db *store.DB, res Result, samples []magcal.Sample) (Persisted, error) {
	if db != nil {
		res.ID = uuid.New().String()
		doc, err := json.Marshal(res)
		if err == nil {
			_, err = db.Save(store.Record{
				ID:            res.ID,
				Source:        res.Source,
				CalibratedAt:  res.CalibrationAt,
				FieldStrength: res.FieldStrength,
				SampleCount:   res.SampleCount,
				Confidence:    res.Quality.Confidence,
				Document:      doc,
			})
		}
		if err != nil {
			log.Printf("calibrator: history save failed: %v", err)
			res.ID = ""
		}
	}

	path, err := WriteResult(cfg.CalOutputDir, res)
	if err != nil {
		return Persisted{Result: res}, err
	}
	log.Printf("calibrator: saved results to %s", path)
	out := Persisted{Result: res, File: path}

	if cfg.CalPlot {
		prefix := strings.TrimSuffix(path, ".json")
		plots, err := report.SavePlots(prefix, res.Calibration(), samples)
		if err != nil {
			log.Printf("calibrator: plot failed: %v", err)
		}
		out.Plots = plots
	}
	return out, nil
}

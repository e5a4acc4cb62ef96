// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/relabs-tech/magcal/internal/config"
	"github.com/relabs-tech/magcal/internal/coverage"
	"github.com/relabs-tech/magcal/internal/imu"
	"github.com/relabs-tech/magcal/internal/magcal"
)

// ResultSchemaVersion is written into every result document.
const ResultSchemaVersion = 1

// ErrNotEnoughSamples is returned by Finish before CAL_MIN_SAMPLES readings.
var ErrNotEnoughSamples = errors.New("calibrator: not enough samples")

// Progress is a snapshot of a running calibration.
type Progress struct {
	Samples  int     `json:"samples"`
	Target   int     `json:"target"`
	Percent  float64 `json:"percent"`
	Coverage float64 `json:"coverage"`
	MeanNorm float64 `json:"mean_norm"`
	Ready    bool    `json:"ready"` // enough samples to finish
}

// Result is the calibration document written to disk and published.
type Result struct {
	SchemaVersion int            `json:"schema_version"`
	ID            string         `json:"id,omitempty"`
	CalibrationAt time.Time      `json:"calibration_at"`
	Source        string         `json:"source"`
	Offset        [3]float64     `json:"offset"`
	Transform     [3][3]float64  `json:"transform"`
	FieldStrength float64        `json:"field_strength"`
	SampleCount   int            `json:"sample_count"`
	Quality       magcal.Quality `json:"quality"`
	Coverage      float64        `json:"coverage"`
}

// Calibration returns the correction carried by the result.
func (r Result) Calibration() magcal.Calibration {
	return magcal.Calibration{
		Offset:        r.Offset,
		Transform:     r.Transform,
		FieldStrength: r.FieldStrength,
		SampleCount:   r.SampleCount,
	}
}

// Calibrator owns one magcal session and its coverage grid. It is safe for
// concurrent use.
type Calibrator struct {
	mu      sync.Mutex
	source  string
	session *magcal.Session
	grid    *coverage.Grid
	min     int
	max     int
	now     func() time.Time
}

// NewCalibrator starts an empty run for readings from source.
func NewCalibrator(source string, cfg *config.Config) *Calibrator {
	opts := magcal.DefaultOptions()
	opts.ImagTolerance = cfg.CalImagTolerance
	opts.MaxCondition = cfg.CalMaxCondition
	return &Calibrator{
		source:  source,
		session: magcal.NewSessionWithOptions(opts),
		grid:    coverage.New(coverage.DefaultCapacity),
		min:     cfg.CalMinSamples,
		max:     cfg.CalMaxSamples,
		now:     time.Now,
	}
}

// Source returns the name the run was started with.
func (c *Calibrator) Source() string { return c.source }

// Add ingests one reading. full reports that CAL_MAX_SAMPLES was reached;
// readings past that point are dropped.
func (c *Calibrator) Add(raw imu.MagRaw) (p Progress, full bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.Count() < c.max && !c.session.Finalized() {
		s := raw.Sample()
		c.session.Ingest(s)
		c.grid.Add(s)
	}
	return c.progressLocked(), c.session.Count() >= c.max
}

// Progress returns the current snapshot.
func (c *Calibrator) Progress() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progressLocked()
}

func (c *Calibrator) progressLocked() Progress {
	n := c.session.Count()
	mean, _ := c.session.MeanNorm()
	return Progress{
		Samples:  n,
		Target:   c.max,
		Percent:  100 * float64(n) / float64(c.max),
		Coverage: c.grid.Fraction(),
		MeanNorm: mean,
		Ready:    n >= c.min,
	}
}

// Finish solves the fit and returns the result document.
func (c *Calibrator) Finish() (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n := c.session.Count(); n < c.min && !c.session.Finalized() {
		return Result{}, fmt.Errorf("%w: have %d, need %d", ErrNotEnoughSamples, n, c.min)
	}
	cal, err := c.session.Finalize()
	if err != nil {
		return Result{}, fmt.Errorf("calibrator: %s: %w", c.source, err)
	}
	return Result{
		SchemaVersion: ResultSchemaVersion,
		CalibrationAt: c.now().UTC(),
		Source:        c.source,
		Offset:        cal.Offset,
		Transform:     cal.Transform,
		FieldStrength: cal.FieldStrength,
		SampleCount:   cal.SampleCount,
		Quality:       magcal.Evaluate(cal, c.grid.Samples()),
		Coverage:      c.grid.Fraction(),
	}, nil
}

// Samples returns the retained (decimated) raw samples.
func (c *Calibrator) Samples() []magcal.Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grid.Samples()
}

// RenderCoverage writes the coverage map as PNG.
func (c *Calibrator) RenderCoverage(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grid.RenderPNG(w, c.source+" magnetometer coverage")
}

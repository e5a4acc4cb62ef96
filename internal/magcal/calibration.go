// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package magcal

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Calibration is the affine correction recovered by a session.
// A corrected reading is Transform · (raw − Offset).
type Calibration struct {
	Offset        [3]float64    `json:"offset"`
	Transform     [3][3]float64 `json:"transform"`
	FieldStrength float64       `json:"field_strength"`
	SampleCount   int           `json:"sample_count"`
}

// Matrix returns the 4×3 calibration matrix: row 0 holds the offset and
// rows 1 to 3 the linear map.
func (c Calibration) Matrix() *mat.Dense {
	m := mat.NewDense(4, 3, nil)
	m.SetRow(0, c.Offset[:])
	for i := range c.Transform {
		m.SetRow(i+1, c.Transform[i][:])
	}
	return m
}

// Apply corrects one raw reading.
func (c Calibration) Apply(s Sample) Sample {
	d := s.Sub(Sample{X: c.Offset[0], Y: c.Offset[1], Z: c.Offset[2]})
	t := c.Transform
	return Sample{
		X: t[0][0]*d.X + t[0][1]*d.Y + t[0][2]*d.Z,
		Y: t[1][0]*d.X + t[1][1]*d.Y + t[1][2]*d.Z,
		Z: t[2][0]*d.X + t[2][1]*d.Y + t[2][2]*d.Z,
	}
}

func (c Calibration) finite() bool {
	ok := func(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
	if !ok(c.FieldStrength) {
		return false
	}
	for i := 0; i < 3; i++ {
		if !ok(c.Offset[i]) {
			return false
		}
		for j := 0; j < 3; j++ {
			if !ok(c.Transform[i][j]) {
				return false
			}
		}
	}
	return true
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package magcal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestCalibrationMatrixLayout(t *testing.T) {
	c := Calibration{
		Offset:    [3]float64{1, 2, 3},
		Transform: [3][3]float64{{4, 5, 6}, {7, 8, 9}, {10, 11, 12}},
	}
	want := mat.NewDense(4, 3, []float64{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
		10, 11, 12,
	})
	assert.True(t, mat.Equal(want, c.Matrix()))
}

func TestCalibrationApply(t *testing.T) {
	c := Calibration{
		Offset:    [3]float64{10, -5, 2},
		Transform: [3][3]float64{{2, 0, 0}, {0, 1, 1}, {0, 0, 0.5}},
	}
	got := c.Apply(Sample{X: 11, Y: -3, Z: 6})
	assert.Equal(t, Sample{X: 2, Y: 6, Z: 2}, got)
}

func TestCalibrationFinite(t *testing.T) {
	c := Calibration{Transform: [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, FieldStrength: 1}
	assert.True(t, c.finite())

	c.Transform[1][2] = math.NaN()
	assert.False(t, c.finite())

	c.Transform[1][2] = 0
	c.Offset[0] = math.Inf(-1)
	assert.False(t, c.finite())
}

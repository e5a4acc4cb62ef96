// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package magcal

import "math"

// Sample is one raw 3-axis magnetometer reading.
type Sample struct {
	X, Y, Z float64
}

// Norm returns the Euclidean length of the reading.
func (s Sample) Norm() float64 {
	return math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z)
}

// Sub returns s − o.
func (s Sample) Sub(o Sample) Sample {
	return Sample{X: s.X - o.X, Y: s.Y - o.Y, Z: s.Z - o.Z}
}

// DesignLen is the number of monomials in the implicit ellipsoid equation.
const DesignLen = 10

// DesignVector returns the quadratic monomials of s in the order
// x², y², z², 2yz, 2xz, 2xy, 2x, 2y, 2z, 1.
func DesignVector(s Sample) [DesignLen]float64 {
	x, y, z := s.X, s.Y, s.Z
	return [DesignLen]float64{
		x * x,
		y * y,
		z * z,
		2 * y * z,
		2 * x * z,
		2 * x * y,
		2 * x,
		2 * y,
		2 * z,
		1,
	}
}

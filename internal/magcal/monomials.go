// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package magcal

import (
	"fmt"
	"math"
)

// Monomial describes one entry of the design vector: coef · x^PX · y^PY · z^PZ.
type Monomial struct {
	PX, PY, PZ int
	Coef       float64
}

// Degree returns the total degree of the monomial.
func (m Monomial) Degree() int { return m.PX + m.PY + m.PZ }

// Eval evaluates the monomial at s.
func (m Monomial) Eval(s Sample) float64 {
	return m.Coef * ipow(s.X, m.PX) * ipow(s.Y, m.PY) * ipow(s.Z, m.PZ)
}

// Monomials lists the design vector layout. Entries 0–5 form the quadratic
// block (S11), entries 6–9 the linear and constant block (S22).
var Monomials = [DesignLen]Monomial{
	{2, 0, 0, 1},
	{0, 2, 0, 1},
	{0, 0, 2, 1},
	{0, 1, 1, 2},
	{1, 0, 1, 2},
	{1, 1, 0, 2},
	{1, 0, 0, 2},
	{0, 1, 0, 2},
	{0, 0, 1, 2},
	{0, 0, 0, 1},
}

// quadraticTerms is the size of the degree-2 block of the design vector.
const quadraticTerms = 6

func init() {
	if err := checkMonomials(); err != nil {
		panic(err)
	}
}

// checkMonomials verifies the table against the block partition used by the
// solver and against DesignVector.
func checkMonomials() error {
	for i, m := range Monomials {
		want := 2
		switch {
		case i == DesignLen-1:
			want = 0
		case i >= quadraticTerms:
			want = 1
		}
		if m.Degree() != want {
			return fmt.Errorf("magcal: monomial %d has degree %d, want %d", i, m.Degree(), want)
		}
	}
	probe := Sample{X: 1.5, Y: -2.25, Z: 3.125}
	dv := DesignVector(probe)
	for i, m := range Monomials {
		if got := m.Eval(probe); math.Abs(got-dv[i]) > 1e-12 {
			return fmt.Errorf("magcal: design vector entry %d = %g, monomial gives %g", i, dv[i], got)
		}
	}
	return nil
}

func ipow(v float64, n int) float64 {
	out := 1.0
	for ; n > 0; n-- {
		out *= v
	}
	return out
}

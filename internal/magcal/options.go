// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package magcal

// Default solver tolerances.
const (
	DefaultImagTolerance = 1e-9
	DefaultMaxCondition  = 1e12
)

// Options tunes the numeric guards of the solve.
type Options struct {
	// ImagTolerance bounds |Im λ| / max|λ| for the selected eigenvalue of the
	// constrained problem. Larger imaginary parts fail with ErrEigenvalueAmbiguity.
	ImagTolerance float64

	// MaxCondition is the largest LU condition number accepted when inverting
	// S22 and Q. Worse-conditioned matrices fail with ErrSingularMatrix.
	// The condition of S22 grows with (|offset| / radius)², so hard-iron
	// offsets of tens of field radii need a higher limit.
	MaxCondition float64
}

// DefaultOptions returns the tolerances used by NewSession.
func DefaultOptions() Options {
	return Options{
		ImagTolerance: DefaultImagTolerance,
		MaxCondition:  DefaultMaxCondition,
	}
}

func (o Options) withDefaults() Options {
	if o.ImagTolerance <= 0 {
		o.ImagTolerance = DefaultImagTolerance
	}
	if o.MaxCondition <= 0 {
		o.MaxCondition = DefaultMaxCondition
	}
	return o
}

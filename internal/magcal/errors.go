// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package magcal

import "errors"

// Errors returned by Finalize and Peek. Callers match them with errors.Is;
// the returned error usually wraps one of these with the failing step.
var (
	// ErrEmptyInput is returned when no samples were ingested.
	ErrEmptyInput = errors.New("magcal: no samples ingested")

	// ErrSingularMatrix is returned when S22 or the shape matrix Q cannot be
	// inverted, which happens for degenerate sample geometry (coplanar or
	// repeated readings).
	ErrSingularMatrix = errors.New("magcal: singular matrix")

	// ErrNonPositiveDefinite is returned when the fitted quadric is not an
	// ellipsoid: Q has a negative eigenvalue or Bᵀ·Q·B − J is not positive.
	ErrNonPositiveDefinite = errors.New("magcal: quadric is not positive definite")

	// ErrEigenvalueAmbiguity is returned when the dominant eigenvalue of the
	// constrained problem has a non-negligible imaginary part, or the general
	// eigen-decomposition did not converge.
	ErrEigenvalueAmbiguity = errors.New("magcal: dominant eigenvalue is not real")

	// ErrFinalized is returned by Finalize on a session that was already consumed.
	ErrFinalized = errors.New("magcal: session already finalized")
)

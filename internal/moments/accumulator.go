// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package moments accumulates second moments (Σ rowᵀ·row) of a stream of
// fixed-length rows without keeping the rows themselves.
package moments

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Accumulator holds the running sum of outer products for rows of length Dim.
// The sum is stored as a symmetric matrix (one triangle), so it is symmetric
// by construction after every update.
//
// Accumulator is not safe for concurrent use.
type Accumulator struct {
	dim  int
	rows int
	sum  *mat.SymDense
	row  *mat.VecDense // scratch, reused by Feed
}

// New returns a zeroed accumulator for rows of length dim.
func New(dim int) *Accumulator {
	if dim <= 0 {
		panic(fmt.Sprintf("moments: invalid dimension %d", dim))
	}
	return &Accumulator{
		dim: dim,
		sum: mat.NewSymDense(dim, nil),
		row: mat.NewVecDense(dim, nil),
	}
}

// Dim returns the row length the accumulator was created for.
func (a *Accumulator) Dim() int { return a.dim }

// Rows returns how many rows have been fed so far.
func (a *Accumulator) Rows() int { return a.rows }

// Feed adds row ⊗ row to the running sum. It panics if len(row) != Dim().
func (a *Accumulator) Feed(row []float64) {
	if len(row) != a.dim {
		panic(fmt.Sprintf("moments: row length %d, want %d", len(row), a.dim))
	}
	copy(a.row.RawVector().Data, row)
	a.FeedVec(a.row)
}

// FeedVec is Feed for a gonum vector.
func (a *Accumulator) FeedVec(row mat.Vector) {
	if row.Len() != a.dim {
		panic(fmt.Sprintf("moments: row length %d, want %d", row.Len(), a.dim))
	}
	// sum = sum + 1·row·rowᵀ (BLAS dsyr on the stored triangle)
	a.sum.SymRankOne(a.sum, 1, row)
	a.rows++
}

// Matrix returns a copy of the accumulated matrix.
func (a *Accumulator) Matrix() *mat.SymDense {
	out := mat.NewSymDense(a.dim, nil)
	out.CopySym(a.sum)
	return out
}

// Clone returns an independent copy of the accumulator.
func (a *Accumulator) Clone() *Accumulator {
	return &Accumulator{
		dim:  a.dim,
		rows: a.rows,
		sum:  a.Matrix(),
		row:  mat.NewVecDense(a.dim, nil),
	}
}

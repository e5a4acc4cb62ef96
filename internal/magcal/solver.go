// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package magcal

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// constraint is the pre-inverted ellipsoid constraint matrix (k = 4) applied
// to the quadratic block.
var constraint = mat.NewDense(6, 6, []float64{
	0.0, 0.5, 0.5, 0.0, 0.0, 0.0,
	0.5, 0.0, 0.5, 0.0, 0.0, 0.0,
	0.5, 0.5, 0.0, 0.0, 0.0, 0.0,
	0.0, 0.0, 0.0, -0.25, 0.0, 0.0,
	0.0, 0.0, 0.0, 0.0, -0.25, 0.0,
	0.0, 0.0, 0.0, 0.0, 0.0, -0.25,
})

// solve runs the ellipsoid-specific fit on the accumulated Gram matrix.
//
//	S   = [S11 S12; S12ᵀ S22]           (6+4 partition)
//	SS  = S11 − S12·S22⁻¹·S12ᵀ
//	v1  = dominant eigenvector of C·SS
//	v2  = −S22⁻¹·S12ᵀ·v1 = [U; J]
//	B   = −Q⁻¹·U,  A = √Q · hm / √(BᵀQB − J)
func solve(gram *mat.SymDense, count int, sumNorms float64, opts Options) (Calibration, error) {
	if count == 0 {
		return Calibration{}, ErrEmptyInput
	}
	hm := sumNorms / float64(count)

	s := mat.DenseCopyOf(gram)
	const k = quadraticTerms
	s11 := s.Slice(0, k, 0, k)
	s12 := s.Slice(0, k, k, DesignLen)
	s12t := s.Slice(k, DesignLen, 0, k)
	s22 := s.Slice(k, DesignLen, k, DesignLen)

	s22inv, err := invertLU(s22, opts.MaxCondition)
	if err != nil {
		return Calibration{}, fmt.Errorf("magcal: invert S22: %w", err)
	}

	// S22a = S22⁻¹·S12ᵀ (4×6), reused for v2.
	var s22a mat.Dense
	s22a.Mul(s22inv, s12t)
	var s22b mat.Dense
	s22b.Mul(s12, &s22a)
	var ss mat.Dense
	ss.Sub(s11, &s22b)

	var e mat.Dense
	e.Mul(constraint, &ss)

	v1, err := dominantEigenvector(&e, opts.ImagTolerance)
	if err != nil {
		return Calibration{}, fmt.Errorf("magcal: constrained eigenproblem: %w", err)
	}
	// v1 is defined up to sign; pin it so Q has a positive leading entry.
	if v1.AtVec(0) < 0 {
		v1.ScaleVec(-1, v1)
	}

	var v2 mat.VecDense
	v2.MulVec(&s22a, v1)
	v2.ScaleVec(-1, &v2)

	q := mat.NewSymDense(3, []float64{
		v1.AtVec(0), v1.AtVec(5), v1.AtVec(4),
		v1.AtVec(5), v1.AtVec(1), v1.AtVec(3),
		v1.AtVec(4), v1.AtVec(3), v1.AtVec(2),
	})
	u := v2.SliceVec(0, 3)
	j := v2.AtVec(3)

	qinv, err := invertLU(q, opts.MaxCondition)
	if err != nil {
		return Calibration{}, fmt.Errorf("magcal: invert Q: %w", err)
	}
	var b mat.VecDense
	b.MulVec(qinv, u)
	b.ScaleVec(-1, &b)

	btqb := mat.Inner(&b, q, &b)

	sq, err := sqrtSym(q)
	if err != nil {
		return Calibration{}, fmt.Errorf("magcal: square root of Q: %w", err)
	}

	radius := btqb - j
	if !(radius > 0) {
		return Calibration{}, fmt.Errorf("magcal: BᵀQB − J = %g: %w", radius, ErrNonPositiveDefinite)
	}
	hmb := math.Sqrt(radius)

	var a mat.Dense
	a.Scale(hm/hmb, sq)

	cal := Calibration{
		FieldStrength: hm,
		SampleCount:   count,
	}
	for i := 0; i < 3; i++ {
		cal.Offset[i] = b.AtVec(i)
		for k := 0; k < 3; k++ {
			cal.Transform[i][k] = a.At(i, k)
		}
	}
	if !cal.finite() {
		return Calibration{}, fmt.Errorf("magcal: non-finite calibration: %w", ErrSingularMatrix)
	}
	return cal, nil
}

// invertLU inverts a square matrix through its LU factorization.
func invertLU(a mat.Matrix, maxCond float64) (*mat.Dense, error) {
	var lu mat.LU
	lu.Factorize(a)
	if c := lu.Cond(); math.IsNaN(c) || c > maxCond {
		return nil, fmt.Errorf("condition number %g: %w", c, ErrSingularMatrix)
	}
	n, _ := a.Dims()
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	var inv mat.Dense
	if err := lu.SolveTo(&inv, false, mat.NewDiagDense(n, ones)); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrSingularMatrix)
	}
	return &inv, nil
}

// dominantEigenvector returns the unit right eigenvector of e belonging to the
// eigenvalue with the largest real part. Ties keep the lowest index. The
// selected eigenvalue must be real up to tol·max|λ|; the real part of its
// eigenvector is used.
func dominantEigenvector(e mat.Matrix, tol float64) (*mat.VecDense, error) {
	var eig mat.Eigen
	if ok := eig.Factorize(e, mat.EigenRight); !ok {
		return nil, fmt.Errorf("factorization failed: %w", ErrEigenvalueAmbiguity)
	}
	values := eig.Values(nil)

	idx := 0
	var scale float64
	for i, v := range values {
		if real(v) > real(values[idx]) {
			idx = i
		}
		scale = math.Max(scale, cmplx.Abs(v))
	}
	lambda := values[idx]
	if math.IsNaN(real(lambda)) || math.Abs(imag(lambda)) > tol*scale {
		return nil, fmt.Errorf("λ = %v: %w", lambda, ErrEigenvalueAmbiguity)
	}

	var vecs mat.CDense
	eig.VectorsTo(&vecs)
	v := mat.NewVecDense(len(values), nil)
	for i := range values {
		v.SetVec(i, real(vecs.At(i, idx)))
	}
	norm := mat.Norm(v, 2)
	if !(norm > 0) || math.IsInf(norm, 0) {
		return nil, fmt.Errorf("degenerate eigenvector: %w", ErrEigenvalueAmbiguity)
	}
	v.ScaleVec(1/norm, v)
	return v, nil
}

// sqrtSym returns V·diag(√λ)·Vᵀ for the symmetric matrix q.
func sqrtSym(q mat.Symmetric) (*mat.Dense, error) {
	var es mat.EigenSym
	if ok := es.Factorize(q, true); !ok {
		return nil, fmt.Errorf("symmetric eigen-decomposition failed: %w", ErrNonPositiveDefinite)
	}
	n := q.SymmetricDim()
	values := es.Values(nil)
	for i, l := range values {
		if l < 0 || math.IsNaN(l) {
			return nil, fmt.Errorf("eigenvalue %g: %w", l, ErrNonPositiveDefinite)
		}
		values[i] = math.Sqrt(l)
	}

	var vecs mat.Dense
	es.VectorsTo(&vecs)
	for c := 0; c < n; c++ {
		norm := mat.Norm(vecs.ColView(c), 2)
		for r := 0; r < n; r++ {
			vecs.Set(r, c, vecs.At(r, c)/norm)
		}
	}

	var vd, out mat.Dense
	vd.Mul(&vecs, mat.NewDiagDense(n, values))
	out.Mul(&vd, vecs.T())
	return &out, nil
}

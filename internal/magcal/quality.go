// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package magcal

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// minConfidence keeps a usable-but-poor fit distinguishable from no fit.
const minConfidence = 0.05

// Quality summarizes how well a calibration maps samples onto the sphere of
// radius FieldStrength.
type Quality struct {
	MeanNorm    float64 `json:"mean_norm"`
	StdDev      float64 `json:"std_dev"`
	MaxAbsError float64 `json:"max_abs_error"`
	RMSError    float64 `json:"rms_error"`
	Confidence  float64 `json:"confidence"`
	Samples     int     `json:"samples"`
}

// Evaluate corrects every sample with cal and measures the spread of the
// corrected magnitudes around cal.FieldStrength.
func Evaluate(cal Calibration, samples []Sample) Quality {
	if len(samples) == 0 {
		return Quality{}
	}
	norms := make([]float64, len(samples))
	errs := make([]float64, len(samples))
	for i, s := range samples {
		norms[i] = cal.Apply(s).Norm()
		errs[i] = norms[i] - cal.FieldStrength
	}

	q := Quality{Samples: len(samples)}
	if len(samples) > 1 {
		q.MeanNorm, q.StdDev = stat.MeanStdDev(norms, nil)
	} else {
		q.MeanNorm = norms[0]
	}
	q.RMSError = floats.Norm(errs, 2) / math.Sqrt(float64(len(errs)))
	for _, e := range errs {
		q.MaxAbsError = math.Max(q.MaxAbsError, math.Abs(e))
	}

	q.Confidence = minConfidence
	if q.MeanNorm > 0 {
		cv := q.StdDev / q.MeanNorm
		q.Confidence = math.Max(minConfidence, clamp01(1-cv/0.5))
	}
	return q
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

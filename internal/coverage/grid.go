// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package coverage tracks how much of the sphere of field directions a
// calibration run has visited.
package coverage

import (
	"math"

	"github.com/relabs-tech/magcal/internal/magcal"
)

// Grid dimensions. Elevation bands are equal-area (uniform in sin(el)).
const (
	AzimuthBins   = 12
	ElevationBins = 6
)

// DefaultCapacity bounds the retained sample buffer.
const DefaultCapacity = 4096

// Grid bins sample directions around the midpoint of the observed
// per-axis range. The midpoint moves as samples arrive, so bins are
// recomputed from a bounded, decimated sample buffer.
//
// Grid is not safe for concurrent use.
type Grid struct {
	min, max magcal.Sample
	seen     int

	buf    []magcal.Sample
	limit  int
	stride int
}

// New returns a grid retaining at most capacity samples (DefaultCapacity
// when capacity < 2). Odd capacities are rounded down.
func New(capacity int) *Grid {
	if capacity < 2 {
		capacity = DefaultCapacity
	}
	return &Grid{limit: capacity &^ 1, stride: 1}
}

// Add records one raw sample.
func (g *Grid) Add(s magcal.Sample) {
	if g.seen == 0 {
		g.min, g.max = s, s
	} else {
		g.min = magcal.Sample{X: math.Min(g.min.X, s.X), Y: math.Min(g.min.Y, s.Y), Z: math.Min(g.min.Z, s.Z)}
		g.max = magcal.Sample{X: math.Max(g.max.X, s.X), Y: math.Max(g.max.Y, s.Y), Z: math.Max(g.max.Z, s.Z)}
	}
	idx := g.seen
	g.seen++

	// the buffer holds every stride-th sample
	if idx%g.stride != 0 {
		return
	}
	g.buf = append(g.buf, s)
	if len(g.buf) == g.limit {
		n := 0
		for i := 0; i < len(g.buf); i += 2 {
			g.buf[n] = g.buf[i]
			n++
		}
		g.buf = g.buf[:n]
		g.stride *= 2
	}
}

// Seen returns the number of samples added.
func (g *Grid) Seen() int { return g.seen }

// Samples returns a copy of the retained samples.
func (g *Grid) Samples() []magcal.Sample {
	return append([]magcal.Sample(nil), g.buf...)
}

// Center returns the midpoint of the observed per-axis range.
func (g *Grid) Center() magcal.Sample {
	return magcal.Sample{
		X: (g.min.X + g.max.X) / 2,
		Y: (g.min.Y + g.max.Y) / 2,
		Z: (g.min.Z + g.max.Z) / 2,
	}
}

// Occupancy returns the number of retained samples per bin, indexed
// [elevation][azimuth] with elevation 0 the southernmost band.
func (g *Grid) Occupancy() [ElevationBins][AzimuthBins]int {
	var occ [ElevationBins][AzimuthBins]int
	c := g.Center()
	for _, s := range g.buf {
		if el, az, ok := Bin(s.Sub(c)); ok {
			occ[el][az]++
		}
	}
	return occ
}

// Fraction returns the share of bins holding at least one sample.
func (g *Grid) Fraction() float64 {
	occ := g.Occupancy()
	filled := 0
	for el := range occ {
		for az := range occ[el] {
			if occ[el][az] > 0 {
				filled++
			}
		}
	}
	return float64(filled) / float64(AzimuthBins*ElevationBins)
}

// Bin maps a direction to its elevation band and azimuth sector. ok is
// false for the zero vector.
func Bin(d magcal.Sample) (el, az int, ok bool) {
	r := d.Norm()
	if r == 0 || math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, 0, false
	}
	el = int(math.Floor((d.Z/r + 1) / 2 * ElevationBins))
	if el >= ElevationBins {
		el = ElevationBins - 1
	}
	phi := math.Atan2(d.Y, d.X)
	if phi < 0 {
		phi += 2 * math.Pi
	}
	az = int(phi / (2 * math.Pi) * AzimuthBins)
	if az >= AzimuthBins {
		az = AzimuthBins - 1
	}
	return el, az, true
}

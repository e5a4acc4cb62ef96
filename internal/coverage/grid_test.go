// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package coverage

import (
	"bytes"
	"image/png"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/magcal/internal/magcal"
)

func TestBin(t *testing.T) {
	tests := []struct {
		name   string
		d      magcal.Sample
		el, az int
		ok     bool
	}{
		{"east on equator", magcal.Sample{X: 1, Y: 0.01}, 3, 0, true},
		{"north pole", magcal.Sample{Z: 5}, 5, 0, true},
		{"south pole", magcal.Sample{Z: -5}, 0, 0, true},
		{"west", magcal.Sample{X: -1, Y: -0.01}, 3, 6, true},
		{"just below east", magcal.Sample{X: 1, Y: -0.01}, 3, 11, true},
		{"zero", magcal.Sample{}, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			el, az, ok := Bin(tt.d)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.el, el)
			assert.Equal(t, tt.az, az)
		})
	}
}

func TestFractionFullSphere(t *testing.T) {
	rng := rand.New(rand.NewPCG(21, 22))
	g := New(0)
	offset := magcal.Sample{X: 30, Y: -12, Z: 8}
	for i := 0; i < 20000; i++ {
		d := magcal.Sample{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}
		n := d.Norm()
		g.Add(magcal.Sample{X: offset.X + 45*d.X/n, Y: offset.Y + 45*d.Y/n, Z: offset.Z + 45*d.Z/n})
	}
	assert.Equal(t, 1.0, g.Fraction())
	c := g.Center()
	assert.InDelta(t, offset.X, c.X, 1)
	assert.InDelta(t, offset.Y, c.Y, 1)
	assert.InDelta(t, offset.Z, c.Z, 1)
}

func TestFractionEquatorOnly(t *testing.T) {
	g := New(0)
	for i := 0; i < 360; i++ {
		th := float64(i) * math.Pi / 180
		g.Add(magcal.Sample{X: 40 * math.Cos(th), Y: 40 * math.Sin(th), Z: 0.001 * float64(i%2)})
	}
	// one elevation band out of six, split across the two central bands at most
	assert.LessOrEqual(t, g.Fraction(), 2.0/ElevationBins)
	assert.Greater(t, g.Fraction(), 0.0)
}

func TestDecimation(t *testing.T) {
	g := New(8)
	for i := 0; i < 100; i++ {
		g.Add(magcal.Sample{X: float64(i)})
	}
	assert.Equal(t, 100, g.Seen())
	samples := g.Samples()
	require.NotEmpty(t, samples)
	assert.Less(t, len(samples), 8)
	step := samples[1].X - samples[0].X
	for i := 1; i < len(samples); i++ {
		assert.Equal(t, step, samples[i].X-samples[i-1].X, "uneven spacing at %d", i)
	}
	assert.Equal(t, 0.0, samples[0].X)
}

func TestRenderPNG(t *testing.T) {
	g := New(0)
	g.Add(magcal.Sample{X: 1})
	g.Add(magcal.Sample{X: -1})

	var buf bytes.Buffer
	require.NoError(t, g.RenderPNG(&buf, "hmc"))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	b := img.Bounds()
	assert.Equal(t, marginLeft*2+AzimuthBins*(cellSize+cellGap), b.Dx())
	assert.Equal(t, headerH+ElevationBins*(cellSize+cellGap)+cellGap, b.Dy())
}

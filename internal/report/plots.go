// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package report renders diagnostic plots of a calibration.
package report

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/relabs-tech/magcal/internal/magcal"
)

// ErrNoSamples is returned when there is nothing to plot.
var ErrNoSamples = errors.New("report: no samples")

const histogramBins = 40

var (
	colorRaw       = color.RGBA{R: 160, G: 160, B: 160, A: 255}
	colorCorrected = color.RGBA{R: 32, G: 160, B: 64, A: 255}
)

// Residuals returns |Apply(s)| − FieldStrength for every sample.
func Residuals(cal magcal.Calibration, samples []magcal.Sample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = cal.Apply(s).Norm() - cal.FieldStrength
	}
	return out
}

// ResidualHistogram plots the distribution of corrected magnitude errors.
func ResidualHistogram(cal magcal.Calibration, samples []magcal.Sample) (*plot.Plot, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Corrected field residuals (%d samples)", len(samples))
	p.X.Label.Text = "|corrected| - field strength (µT)"
	p.Y.Label.Text = "count"

	h, err := plotter.NewHist(plotter.Values(Residuals(cal, samples)), histogramBins)
	if err != nil {
		return nil, fmt.Errorf("report: histogram: %w", err)
	}
	h.FillColor = colorCorrected
	p.Add(h, plotter.NewGrid())
	return p, nil
}

// Projection scatters raw and corrected samples on the X-Y plane.
func Projection(cal magcal.Calibration, samples []magcal.Sample) (*plot.Plot, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	p := plot.New()
	p.Title.Text = "X-Y projection"
	p.X.Label.Text = "X (µT)"
	p.Y.Label.Text = "Y (µT)"

	raw := make(plotter.XYs, len(samples))
	corrected := make(plotter.XYs, len(samples))
	for i, s := range samples {
		c := cal.Apply(s)
		raw[i] = plotter.XY{X: s.X, Y: s.Y}
		corrected[i] = plotter.XY{X: c.X, Y: c.Y}
	}

	rawPts, err := plotter.NewScatter(raw)
	if err != nil {
		return nil, fmt.Errorf("report: raw scatter: %w", err)
	}
	rawPts.GlyphStyle.Color = colorRaw
	rawPts.GlyphStyle.Radius = vg.Points(1)
	rawPts.GlyphStyle.Shape = draw.CircleGlyph{}

	corrPts, err := plotter.NewScatter(corrected)
	if err != nil {
		return nil, fmt.Errorf("report: corrected scatter: %w", err)
	}
	corrPts.GlyphStyle.Color = colorCorrected
	corrPts.GlyphStyle.Radius = vg.Points(1)
	corrPts.GlyphStyle.Shape = draw.CircleGlyph{}

	p.Add(plotter.NewGrid(), rawPts, corrPts)
	p.Legend.Add("raw", rawPts)
	p.Legend.Add("corrected", corrPts)
	p.Legend.Top = true
	return p, nil
}

// WritePNG renders p as a PNG of the given size in inches.
func WritePNG(w io.Writer, p *plot.Plot, width, height float64) error {
	wt, err := p.WriterTo(vg.Length(width)*vg.Inch, vg.Length(height)*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("report: png canvas: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("report: write png: %w", err)
	}
	return nil
}

// SavePlots writes <prefix>_residuals.png and <prefix>_projection.png.
func SavePlots(prefix string, cal magcal.Calibration, samples []magcal.Sample) ([]string, error) {
	hist, err := ResidualHistogram(cal, samples)
	if err != nil {
		return nil, err
	}
	proj, err := Projection(cal, samples)
	if err != nil {
		return nil, err
	}

	var written []string
	for _, out := range []struct {
		path string
		p    *plot.Plot
	}{
		{prefix + "_residuals.png", hist},
		{prefix + "_projection.png", proj},
	} {
		if err := savePNG(out.path, out.p); err != nil {
			return written, err
		}
		written = append(written, out.path)
	}
	return written, nil
}

func savePNG(path string, p *plot.Plot) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	return WritePNG(f, p, 8, 6)
}

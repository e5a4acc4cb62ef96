// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package coverage

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Layout of the rendered map.
const (
	cellSize   = 24
	cellGap    = 2
	headerH    = 32
	marginLeft = 8
)

var (
	colorBackground = color.RGBA{0x1e, 0x1e, 0x1e, 0xff}
	colorEmpty      = color.RGBA{0x44, 0x44, 0x44, 0xff}
	colorText       = color.RGBA{0xee, 0xee, 0xee, 0xff}
)

// cellColor shades a bin by its count relative to the fullest bin.
func cellColor(n, peak int) color.RGBA {
	if n == 0 || peak == 0 {
		return colorEmpty
	}
	f := float64(n) / float64(peak)
	return color.RGBA{R: 0x20, G: uint8(0x60 + f*0x9f), B: 0x40, A: 0xff}
}

// Render draws the azimuth×elevation map with a two-line header.
// North (highest elevation) is the top row.
func (g *Grid) Render(title string) *image.RGBA {
	w := marginLeft*2 + AzimuthBins*(cellSize+cellGap)
	h := headerH + ElevationBins*(cellSize+cellGap) + cellGap
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{colorBackground}, image.Point{}, draw.Src)

	occ := g.Occupancy()
	peak := 0
	for el := range occ {
		for az := range occ[el] {
			peak = max(peak, occ[el][az])
		}
	}
	for el := 0; el < ElevationBins; el++ {
		row := ElevationBins - 1 - el
		for az := 0; az < AzimuthBins; az++ {
			x0 := marginLeft + az*(cellSize+cellGap)
			y0 := headerH + row*(cellSize+cellGap)
			r := image.Rect(x0, y0, x0+cellSize, y0+cellSize)
			draw.Draw(img, r, &image.Uniform{cellColor(occ[el][az], peak)}, image.Point{}, draw.Src)
		}
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{colorText},
		Face: basicfont.Face7x13,
	}
	drawer.Dot = fixed.P(marginLeft, 13)
	drawer.DrawString(title)
	drawer.Dot = fixed.P(marginLeft, 27)
	drawer.DrawString(fmt.Sprintf("coverage %3.0f%%  samples %d", g.Fraction()*100, g.Seen()))
	return img
}

// RenderPNG encodes Render(title) as PNG.
func (g *Grid) RenderPNG(w io.Writer, title string) error {
	if err := png.Encode(w, g.Render(title)); err != nil {
		return fmt.Errorf("coverage: encode png: %w", err)
	}
	return nil
}

package sift

import (
	"image"
	"math"
)

// NewGridFromData copies data (row-major, len == width*height) into a new grid.
func NewGridFromData(width, height int, data []float32) Grid {
	g := NewGrid(width, height)
	copy(g.Data(), data[:width*height])
	return g
}

// GridFromImage converts img to a luminance grid with values in [0, 1].
func GridFromImage(img image.Image) Grid {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	g := NewGrid(w, h)
	dst := g.Data()

	if gray, ok := img.(*image.Gray); ok {
		for y := 0; y < h; y++ {
			row := gray.Pix[y*gray.Stride : y*gray.Stride+w]
			for x, v := range row {
				dst[y*w+x] = float32(v) / 255
			}
		}
		return g
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, gr, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			lum := (19595*r + 38470*gr + 7471*b + 1<<15) >> 16
			dst[y*w+x] = float32(lum) / 65535
		}
	}
	return g
}

// At returns the sample at (x, y). Out of range coordinates panic.
func (g Grid) At(x, y int) float32 {
	return g.Data()[y*g.Width()+x]
}

// Set stores v at (x, y).
func (g Grid) Set(x, y int, v float32) {
	g.Data()[y*g.Width()+x] = v
}

// AtMirror returns the sample at (x, y) with coordinates mirrored into range.
func (g Grid) AtMirror(x, y int) float32 {
	w, h := g.Width(), g.Height()
	return g.Data()[reflectIndex(y, h)*w+reflectIndex(x, w)]
}

// AtZero returns the sample at (x, y) or 0 outside the grid.
func (g Grid) AtZero(x, y int) float32 {
	w, h := g.Width(), g.Height()
	if x < 0 || y < 0 || x >= w || y >= h {
		return 0
	}
	return g.Data()[y*w+x]
}

// Downsample writes every second sample of every second row of src into dst.
// dst must be ceil(src.w/2) x ceil(src.h/2).
func Downsample(src Grid, dst *Grid) {
	sw, sh := src.Width(), src.Height()
	dw, dh := (sw+1)/2, (sh+1)/2
	if dst.Width() != dw || dst.Height() != dh {
		panic("sift: downsample target has wrong size")
	}
	sd := src.Data()
	dd := dst.Data()
	for y := 0; y < dh; y++ {
		srow := 2 * y * sw
		drow := y * dw
		for x := 0; x < dw; x++ {
			dd[drow+x] = sd[srow+2*x]
		}
	}
}

// reflectIndex mirrors idx into [0, size) without repeating the edge sample.
func reflectIndex(idx, size int) int {
	if size == 1 {
		return 0
	}
	if idx < 0 {
		idx = -idx
	}
	for idx >= size {
		idx = 2*size - 2 - idx
		if idx < 0 {
			idx = -idx
		}
	}
	return idx
}

func clampIndex(idx, size int) int {
	if idx < 0 {
		return 0
	}
	if idx >= size {
		return size - 1
	}
	return idx
}

func minMax(data []float32) (float32, float32) {
	lo := float32(math.MaxFloat32)
	hi := float32(-math.MaxFloat32)
	for _, v := range data {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

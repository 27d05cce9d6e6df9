//go:build purego || js

package sift

import (
	"fmt"
	"image"
	"image/color"
	"os"

	"golang.org/x/image/tiff"
)

// Grid is a pure Go row-major float32 image.
type Grid struct {
	data   []float32
	width  int
	height int
}

// NewGrid allocates a zeroed width x height grid.
func NewGrid(width, height int) Grid {
	return Grid{
		data:   make([]float32, width*height),
		width:  width,
		height: height,
	}
}

func (g Grid) Width() int  { return g.width }
func (g Grid) Height() int { return g.height }
func (g Grid) Empty() bool { return g.data == nil || g.width == 0 || g.height == 0 }

// Data returns the backing buffer. len(Data()) == Width()*Height().
func (g Grid) Data() []float32 { return g.data }

func (g Grid) Clone() Grid {
	data := make([]float32, len(g.data))
	copy(data, g.data)
	return Grid{data: data, width: g.width, height: g.height}
}

func (g *Grid) Close() {
	g.data = nil
	g.width = 0
	g.height = 0
}

// sepFilter convolves src horizontally with kernelX and then vertically with
// kernelY. Borders are mirrored without repeating the edge sample.
func sepFilter(src Grid, dst *Grid, kernelX, kernelY []float32) {
	cols, rows := src.width, src.height
	srcData := src.data
	kxLen, kyLen := len(kernelX), len(kernelY)
	kxHalf, kyHalf := kxLen/2, kyLen/2

	if dst.width != cols || dst.height != rows || dst.data == nil {
		*dst = NewGrid(cols, rows)
	}

	temp := make([]float32, rows*cols)

	// Horizontal pass, border columns go through reflectIndex
	for r := 0; r < rows; r++ {
		rowOff := r * cols
		for c := 0; c < cols; c++ {
			var sum float32
			if c >= kxHalf && c < cols-kxHalf {
				base := rowOff + c - kxHalf
				for k := 0; k < kxLen; k++ {
					sum += srcData[base+k] * kernelX[k]
				}
			} else {
				for k := 0; k < kxLen; k++ {
					cc := reflectIndex(c+k-kxHalf, cols)
					sum += srcData[rowOff+cc] * kernelX[k]
				}
			}
			temp[rowOff+c] = sum
		}
	}

	// Vertical pass with precomputed row offsets
	dstData := dst.data
	rowOffs := make([]int, kyLen)
	for r := 0; r < rows; r++ {
		for k := 0; k < kyLen; k++ {
			rowOffs[k] = reflectIndex(r+k-kyHalf, rows) * cols
		}
		dstOff := r * cols
		for c := 0; c < cols; c++ {
			var sum float32
			for k := 0; k < kyLen; k++ {
				sum += temp[rowOffs[k]+c] * kernelY[k]
			}
			dstData[dstOff+c] = sum
		}
	}
}

// writeGrid stores g as a min/max stretched 16-bit TIFF.
func writeGrid(path string, g Grid) error {
	lo, hi := minMax(g.data)
	scale := float32(0)
	if hi > lo {
		scale = 65535 / (hi - lo)
	}
	img := image.NewGray16(image.Rect(0, 0, g.width, g.height))
	for y := 0; y < g.height; y++ {
		for x := 0; x < g.width; x++ {
			v := (g.data[y*g.width+x] - lo) * scale
			img.SetGray16(x, y, color.Gray16{Y: uint16(v)})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create debug image: %w", err)
	}
	defer f.Close()
	if err := tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		return fmt.Errorf("encode debug image: %w", err)
	}
	return nil
}

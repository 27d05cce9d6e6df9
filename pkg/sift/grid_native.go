//go:build !purego && !js

package sift

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Grid wraps a single channel CV_32F gocv.Mat.
type Grid struct {
	m  gocv.Mat
	ok bool
}

// NewGrid allocates a zeroed width x height grid.
func NewGrid(width, height int) Grid {
	return Grid{
		m:  gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), height, width, gocv.MatTypeCV32F),
		ok: true,
	}
}

// GridFromMat converts any single channel Mat to a grid, scaling values by
// scale on the way (1/255 for 8-bit input).
func GridFromMat(src gocv.Mat, scale float32) Grid {
	dst := gocv.NewMat()
	src.ConvertToWithParams(&dst, gocv.MatTypeCV32F, scale, 0)
	return Grid{m: dst, ok: true}
}

func (g Grid) Width() int {
	if !g.ok {
		return 0
	}
	return g.m.Cols()
}

func (g Grid) Height() int {
	if !g.ok {
		return 0
	}
	return g.m.Rows()
}

func (g Grid) Empty() bool { return !g.ok || g.m.Empty() }

// Data returns a view of the Mat memory. The slice is valid until Close.
func (g Grid) Data() []float32 {
	if !g.ok {
		return nil
	}
	data, _ := g.m.DataPtrFloat32()
	return data
}

func (g Grid) Clone() Grid {
	if !g.ok {
		return Grid{}
	}
	return Grid{m: g.m.Clone(), ok: true}
}

func (g *Grid) Close() {
	if g.ok {
		g.m.Close()
	}
	g.ok = false
}

func kernelMat(k []float32) gocv.Mat {
	m := gocv.NewMatWithSize(len(k), 1, gocv.MatTypeCV32F)
	for i, v := range k {
		m.SetFloatAt(i, 0, v)
	}
	return m
}

func sepFilter(src Grid, dst *Grid, kernelX, kernelY []float32) {
	kx := kernelMat(kernelX)
	defer kx.Close()
	ky := kernelMat(kernelY)
	defer ky.Close()

	if !dst.ok {
		*dst = Grid{m: gocv.NewMat(), ok: true}
	}
	gocv.SepFilter2D(src.m, &dst.m, gocv.MatTypeCV32F, kx, ky, image.Pt(-1, -1), 0, gocv.BorderReflect101)
}

// writeGrid stores g as a min/max stretched 16-bit image.
func writeGrid(path string, g Grid) error {
	lo, hi, _, _ := gocv.MinMaxLoc(g.m)
	alpha := float32(0)
	if hi > lo {
		alpha = 65535 / (hi - lo)
	}
	out := gocv.NewMat()
	defer out.Close()
	g.m.ConvertToWithParams(&out, gocv.MatTypeCV16U, alpha, -lo*alpha)
	if !gocv.IMWrite(path, out) {
		return fmt.Errorf("write debug image %s", path)
	}
	return nil
}

//go:build !purego && !js

package main

import (
	"fmt"

	"gocv.io/x/gocv"

	"siftmatch/pkg/imageio"
	"siftmatch/pkg/sift"
)

// loadGrid decodes FITS through imageio and everything else through OpenCV.
func loadGrid(path string) (sift.Grid, error) {
	if imageio.IsFits(path) {
		return imageio.LoadGrid(path)
	}

	src := gocv.IMRead(path, gocv.IMReadAnyDepth|gocv.IMReadGrayScale)
	if src.Empty() {
		return sift.Grid{}, fmt.Errorf("could not load image: %s", path)
	}
	defer src.Close()

	scale := float32(1.0 / 255.0)
	if src.Type() == gocv.MatTypeCV16U {
		scale = 1.0 / 65535.0
	}
	return sift.GridFromMat(src, scale), nil
}

//go:build purego || js

package main

import (
	"siftmatch/pkg/imageio"
	"siftmatch/pkg/sift"
)

func loadGrid(path string) (sift.Grid, error) {
	return imageio.LoadGrid(path)
}

package imageio

import (
	"bytes"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"siftmatch/pkg/sift"
)

// IsFits reports whether path has a FITS extension.
func IsFits(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".fits", ".fit", ".fts":
		return true
	}
	return false
}

// LoadImage decodes any registered raster format and applies the EXIF
// orientation.
func LoadImage(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to load image %s: %w", path, err)
	}
	return img, nil
}

// LoadGrid loads path as a luminance grid with samples in [0, 1].
func LoadGrid(path string) (sift.Grid, error) {
	if IsFits(path) {
		fits, err := ReadFits(path)
		if err != nil {
			return sift.Grid{}, fmt.Errorf("failed to load FITS %s: %w", path, err)
		}
		return fits.Grid(), nil
	}

	img, err := LoadImage(path)
	if err != nil {
		return sift.Grid{}, err
	}
	return sift.GridFromImage(imaging.Grayscale(img)), nil
}

// IsFitsData reports whether data starts with a FITS primary header.
func IsFitsData(data []byte) bool {
	return bytes.HasPrefix(data, []byte("SIMPLE  ="))
}

// DecodeGrid decodes an in-memory FITS or raster image as a luminance grid.
func DecodeGrid(data []byte) (sift.Grid, error) {
	if IsFitsData(data) {
		fits, err := ReadFitsFromBytes(data)
		if err != nil {
			return sift.Grid{}, fmt.Errorf("failed to decode FITS: %w", err)
		}
		return fits.Grid(), nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return sift.Grid{}, fmt.Errorf("failed to decode image: %w", err)
	}
	return sift.GridFromImage(imaging.Grayscale(img)), nil
}

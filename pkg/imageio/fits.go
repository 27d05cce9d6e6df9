// Package imageio loads grayscale images for feature extraction.
package imageio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"siftmatch/pkg/sift"
)

const (
	fitsRecordSize = 80
	fitsBlockCards = 36

	// maxFitsPixels bounds NAXIS1*NAXIS2 before any pixel buffer is sized.
	maxFitsPixels = 1 << 28
)

var fitsBytesPerPixel = map[int]int{8: 1, 16: 2, 32: 4, -32: 4}

// FitsHeader holds parsed FITS header key-value pairs. Keys are upper case.
type FitsHeader map[string]string

func (h FitsHeader) GetString(key string) string {
	return h[strings.ToUpper(key)]
}

func (h FitsHeader) GetFloat(key string) (float64, bool) {
	v, ok := h[strings.ToUpper(key)]
	if !ok {
		return 0, false
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, false
	}
	return d, true
}

func (h FitsHeader) GetInt(key string) (int, bool) {
	v, ok := h[strings.ToUpper(key)]
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return i, true
}

// FitsImage is the primary HDU of a FITS file with samples scaled to [0, 1].
type FitsImage struct {
	Data   []float32
	Width  int
	Height int
	Bitpix int
	Header FitsHeader
}

// ReadFits reads the primary image of a FITS file.
func ReadFits(path string) (*FitsImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening FITS file: %w", err)
	}
	defer f.Close()
	return DecodeFits(f)
}

// ReadFitsFromBytes reads a FITS image held in memory.
func ReadFitsFromBytes(data []byte) (*FitsImage, error) {
	return DecodeFits(bytes.NewReader(data))
}

// DecodeFits parses headers and pixel data. BZERO and BSCALE are applied.
// Integer data is normalized by its type range, float data by its maximum
// when that exceeds 1. Images with BAYERPAT=RGGB are converted to luminance.
func DecodeFits(r io.Reader) (*FitsImage, error) {
	header, err := readFitsHeader(r)
	if err != nil {
		return nil, err
	}

	bitpix, _ := header.GetInt("BITPIX")
	naxis, _ := header.GetInt("NAXIS")
	width, _ := header.GetInt("NAXIS1")
	height, _ := header.GetInt("NAXIS2")
	if naxis < 2 || width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid FITS: NAXIS=%d, NAXIS1=%d, NAXIS2=%d", naxis, width, height)
	}
	bzero, ok := header.GetFloat("BZERO")
	if !ok {
		bzero = 0
	}
	bscale, ok := header.GetFloat("BSCALE")
	if !ok {
		bscale = 1
	}

	bytesPerPixel, ok := fitsBytesPerPixel[bitpix]
	if !ok {
		return nil, fmt.Errorf("unsupported BITPIX: %d", bitpix)
	}
	if width > maxFitsPixels/height {
		return nil, fmt.Errorf("invalid FITS: %dx%d image exceeds %d pixels", width, height, maxFitsPixels)
	}
	numPixels := width * height

	// Grow the buffer with the data actually present instead of trusting
	// NAXIS1*NAXIS2.
	want := int64(numPixels * bytesPerPixel)
	raw, err := io.ReadAll(io.LimitReader(r, want))
	if err != nil {
		return nil, fmt.Errorf("reading %d-bit pixel data: %w", bitpix, err)
	}
	if int64(len(raw)) < want {
		return nil, fmt.Errorf("reading %d-bit pixel data: %w: got %d of %d bytes", bitpix, io.ErrUnexpectedEOF, len(raw), want)
	}

	physical := make([]float64, numPixels)
	var maxVal float64

	switch bitpix {
	case 8:
		for i, v := range raw {
			physical[i] = float64(v)*bscale + bzero
		}
		maxVal = 255

	case 16:
		for i := range physical {
			physical[i] = float64(int16(binary.BigEndian.Uint16(raw[i*2:])))*bscale + bzero
		}
		maxVal = 65535

	case 32:
		for i := range physical {
			physical[i] = float64(int32(binary.BigEndian.Uint32(raw[i*4:])))*bscale + bzero
		}
		maxVal = 65535

	case -32:
		maxVal = 1
		for i := range physical {
			v := float64(math.Float32frombits(binary.BigEndian.Uint32(raw[i*4:])))*bscale + bzero
			if math.IsNaN(v) {
				v = 0
			}
			physical[i] = v
			maxVal = math.Max(maxVal, v)
		}
	}

	data := make([]float32, numPixels)
	for i, v := range physical {
		data[i] = float32(clampFloat64(v/maxVal, 0, 1))
	}
	if strings.EqualFold(strings.TrimSpace(header.GetString("BAYERPAT")), "RGGB") {
		data = DebayerRGGB(data, width, height)
	}

	return &FitsImage{
		Data:   data,
		Width:  width,
		Height: height,
		Bitpix: bitpix,
		Header: header,
	}, nil
}

// Grid copies the image into a new grid.
func (img *FitsImage) Grid() sift.Grid {
	return sift.NewGridFromData(img.Width, img.Height, img.Data)
}

// readFitsHeader consumes header blocks up to and including the one holding
// END.
func readFitsHeader(r io.Reader) (FitsHeader, error) {
	header := make(FitsHeader)
	record := make([]byte, fitsRecordSize)
	for {
		for i := 0; i < fitsBlockCards; i++ {
			if _, err := io.ReadFull(r, record); err != nil {
				return nil, fmt.Errorf("reading FITS header record: %w", err)
			}
			card := string(record)
			keyword := strings.TrimSpace(card[:8])

			if keyword == "END" {
				if remaining := fitsBlockCards - 1 - i; remaining > 0 {
					if _, err := io.CopyN(io.Discard, r, int64(remaining*fitsRecordSize)); err != nil {
						return nil, fmt.Errorf("skipping FITS header padding: %w", err)
					}
				}
				return header, nil
			}

			if card[8] == '=' && card[9] == ' ' && keyword != "" {
				rawValue := strings.TrimSpace(strings.SplitN(card[10:], "/", 2)[0])
				if v := parseFitsValue(rawValue); v != "" {
					header[strings.ToUpper(keyword)] = v
				}
			}
		}
	}
}

func clampFloat64(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func parseFitsValue(rawValue string) string {
	if rawValue == "" {
		return ""
	}
	if rawValue == "T" {
		return "True"
	}
	if rawValue == "F" {
		return "False"
	}
	if strings.HasPrefix(rawValue, "'") {
		endQuote := strings.LastIndex(rawValue, "'")
		if endQuote > 0 {
			return strings.TrimRight(rawValue[1:endQuote], " ")
		}
		return strings.TrimLeft(strings.TrimRight(rawValue, " "), "'")
	}
	return rawValue
}

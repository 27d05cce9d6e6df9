package sift

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// featureHeaderSize is the size of the scale, orientation, x and y fields.
const featureHeaderSize = 16

// Feature is a keypoint in input image coordinates with its descriptor.
type Feature struct {
	Scale       float32
	Orientation float32 // radians in [-pi, pi)
	X           float32
	Y           float32
	Descriptor  []float32
}

// EncodedSize returns the serialized size of f in bytes.
func (f Feature) EncodedSize() int {
	return featureHeaderSize + 4*len(f.Descriptor)
}

// MarshalBinary encodes f as little endian float32 values: scale,
// orientation, x, y, then the descriptor.
func (f Feature) MarshalBinary() ([]byte, error) {
	buf := make([]byte, f.EncodedSize())
	f.put(buf)
	return buf, nil
}

// AppendBinary appends the encoding of f to b.
func (f Feature) AppendBinary(b []byte) ([]byte, error) {
	n := len(b)
	b = append(b, make([]byte, f.EncodedSize())...)
	f.put(b[n:])
	return b, nil
}

func (f Feature) put(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(f.Scale))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(f.Orientation))
	binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(f.X))
	binary.LittleEndian.PutUint32(buf[12:], math.Float32bits(f.Y))
	for i, v := range f.Descriptor {
		binary.LittleEndian.PutUint32(buf[featureHeaderSize+4*i:], math.Float32bits(v))
	}
}

// UnmarshalBinary decodes data into f. The descriptor length is taken from
// the existing descriptor when it is non-empty, otherwise derived from
// len(data).
func (f *Feature) UnmarshalBinary(data []byte) error {
	n := len(f.Descriptor)
	if n == 0 {
		if len(data) < featureHeaderSize || (len(data)-featureHeaderSize)%4 != 0 {
			return fmt.Errorf("%w: %d bytes", ErrDescriptorLength, len(data))
		}
		n = (len(data) - featureHeaderSize) / 4
	}
	decoded, err := DecodeFeature(data, n)
	if err != nil {
		return err
	}
	*f = decoded
	return nil
}

// DecodeFeature decodes a feature whose descriptor has n components. data
// must be exactly 16+4n bytes long.
func DecodeFeature(data []byte, n int) (Feature, error) {
	if want := featureHeaderSize + 4*n; len(data) != want {
		return Feature{}, fmt.Errorf("%w: got %d bytes, want %d", ErrDescriptorLength, len(data), want)
	}
	f := Feature{
		Scale:       math.Float32frombits(binary.LittleEndian.Uint32(data[0:])),
		Orientation: math.Float32frombits(binary.LittleEndian.Uint32(data[4:])),
		X:           math.Float32frombits(binary.LittleEndian.Uint32(data[8:])),
		Y:           math.Float32frombits(binary.LittleEndian.Uint32(data[12:])),
		Descriptor:  make([]float32, n),
	}
	for i := range f.Descriptor {
		f.Descriptor[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[featureHeaderSize+4*i:]))
	}
	return f, nil
}

// Distance returns the Euclidean distance between two descriptors, or +Inf
// when their lengths differ.
func Distance(a, b Feature) float32 {
	if len(a.Descriptor) != len(b.Descriptor) {
		return float32(math.Inf(1))
	}
	var sum float32
	for i, v := range a.Descriptor {
		d := v - b.Descriptor[i]
		sum += d * d
	}
	return float32(math.Sqrt(float64(sum)))
}

// SortByScale orders features by descending scale. Equal scales keep their
// relative order.
func SortByScale(features []Feature) {
	sort.SliceStable(features, func(i, j int) bool {
		return features[i].Scale > features[j].Scale
	})
}

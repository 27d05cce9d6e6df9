// Package featurefile stores feature lists in a flat binary container: a
// fixed header followed by one 16+4N byte record per feature.
package featurefile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the fixed header size.
	HeaderSize = 32

	// Magic identifies a feature file.
	Magic = "SIFT"

	// FormatVersion is the current file format version.
	FormatVersion uint16 = 1

	// MaxDescriptorLen bounds the descriptor length accepted from a header.
	MaxDescriptorLen = 1 << 16
)

var (
	ErrBadMagic           = errors.New("featurefile: invalid magic")
	ErrUnsupportedVersion = errors.New("featurefile: unsupported format version")
	ErrTruncated          = errors.New("featurefile: truncated data")
	ErrCorrupt            = errors.New("featurefile: corrupt header")
)

// Header describes the records that follow it.
type Header struct {
	Magic         [4]byte
	Version       uint16
	Flags         uint16
	DescriptorLen uint32
	Count         uint32
	Width         uint32 // source image size, 0 when unknown
	Height        uint32
	Reserved      [8]byte // pad to 32 bytes
}

// RecordSize is the size of one serialized feature.
func (h *Header) RecordSize() int {
	return 16 + 4*int(h.DescriptorLen)
}

// EncodeHeader fills in magic and version and returns the HeaderSize bytes of h.
func EncodeHeader(h *Header) ([]byte, error) {
	if h == nil {
		return nil, errors.New("header is nil")
	}
	copy(h.Magic[:], Magic)
	h.Version = FormatVersion
	var w bytes.Buffer
	if err := binary.Write(&w, binary.LittleEndian, h); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// DecodeHeader reads and validates the header at the start of src.
func DecodeHeader(src []byte) (*Header, error) {
	if len(src) < HeaderSize {
		return nil, fmt.Errorf("%w: header needs %d bytes, got %d", ErrTruncated, HeaderSize, len(src))
	}
	var h Header
	if err := binary.Read(bytes.NewReader(src[:HeaderSize]), binary.LittleEndian, &h); err != nil {
		return nil, err
	}
	if string(h.Magic[:]) != Magic {
		return nil, ErrBadMagic
	}
	if h.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	if h.DescriptorLen > MaxDescriptorLen {
		return nil, fmt.Errorf("%w: descriptor length %d exceeds %d", ErrCorrupt, h.DescriptorLen, MaxDescriptorLen)
	}
	return &h, nil
}

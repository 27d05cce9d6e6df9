package featurefile

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"

	"siftmatch/pkg/sift"
)

// Mapped is a read-only memory mapped feature file. Records are decoded on
// access.
type Mapped struct {
	f      *os.File
	data   mmap.MMap
	header *Header
}

// Open maps path and validates its header and size.
func Open(path string) (*Mapped, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("map %s: %w", path, err)
	}
	mf := &Mapped{f: f, data: m}

	h, err := DecodeHeader(m)
	if err != nil {
		mf.Close()
		return nil, err
	}
	if want := HeaderSize + int(h.Count)*h.RecordSize(); len(m) < want {
		mf.Close()
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrTruncated, len(m), want)
	}
	mf.header = h
	return mf, nil
}

// Header returns the file header.
func (m *Mapped) Header() Header { return *m.header }

// Len returns the number of features.
func (m *Mapped) Len() int { return int(m.header.Count) }

// Record returns the raw bytes of feature i. The slice is valid until Close.
func (m *Mapped) Record(i int) []byte {
	size := m.header.RecordSize()
	off := HeaderSize + i*size
	return m.data[off : off+size]
}

// Feature decodes feature i.
func (m *Mapped) Feature(i int) (sift.Feature, error) {
	if i < 0 || i >= m.Len() {
		return sift.Feature{}, fmt.Errorf("feature index %d out of range [0, %d)", i, m.Len())
	}
	return sift.DecodeFeature(m.Record(i), int(m.header.DescriptorLen))
}

// All decodes every feature.
func (m *Mapped) All() ([]sift.Feature, error) {
	out := make([]sift.Feature, m.Len())
	for i := range out {
		f, err := m.Feature(i)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// Close unmaps the file and closes it.
func (m *Mapped) Close() error {
	if m.data != nil {
		if err := m.data.Unmap(); err != nil {
			return err
		}
		m.data = nil
	}
	if m.f != nil {
		err := m.f.Close()
		m.f = nil
		return err
	}
	return nil
}

package featurefile

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"siftmatch/pkg/sift"
)

// Write stores features with their source image size. All descriptors must
// have the same length.
func Write(w io.Writer, features []sift.Feature, width, height int) error {
	h := &Header{
		Count:  uint32(len(features)),
		Width:  uint32(width),
		Height: uint32(height),
	}
	if len(features) > 0 {
		h.DescriptorLen = uint32(len(features[0].Descriptor))
	}
	hdr, err := EncodeHeader(h)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(hdr); err != nil {
		return err
	}
	buf := make([]byte, 0, h.RecordSize())
	for i, f := range features {
		if len(f.Descriptor) != int(h.DescriptorLen) {
			return fmt.Errorf("feature %d: %w: descriptor has %d components, want %d",
				i, sift.ErrDescriptorLength, len(f.Descriptor), h.DescriptorLen)
		}
		buf, _ = f.AppendBinary(buf[:0])
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

const maxPrealloc = 1 << 16

// Read parses a whole feature file from r.
func Read(r io.Reader) (*Header, []sift.Feature, error) {
	hdr := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	h, err := DecodeHeader(hdr)
	if err != nil {
		return nil, nil, err
	}

	br := bufio.NewReader(r)
	rec := make([]byte, h.RecordSize())
	// Count is only trusted as far as records actually arrive.
	features := make([]sift.Feature, 0, min(int(h.Count), maxPrealloc))
	for i := 0; i < int(h.Count); i++ {
		if _, err := io.ReadFull(br, rec); err != nil {
			return nil, nil, fmt.Errorf("%w: record %d of %d: %v", ErrTruncated, i, h.Count, err)
		}
		f, err := sift.DecodeFeature(rec, int(h.DescriptorLen))
		if err != nil {
			return nil, nil, err
		}
		features = append(features, f)
	}
	return h, features, nil
}

// Save writes the file atomically (write to path+".tmp", then rename).
func Save(path string, features []sift.Feature, width, height int) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if err := Write(f, features, width, height); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Load reads a whole feature file.
func Load(path string) (*Header, []sift.Feature, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return Read(f)
}

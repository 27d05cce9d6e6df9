package featurefile

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"siftmatch/pkg/sift"
)

func sampleFeatures(n, dim int) []sift.Feature {
	fs := make([]sift.Feature, n)
	for i := range fs {
		d := make([]float32, dim)
		for j := range d {
			d[j] = float32(i*dim+j) / float32(n*dim)
		}
		fs[i] = sift.Feature{
			Scale:       1.6 * float32(i+1),
			Orientation: float32(-math.Pi) + float32(i)*0.1,
			X:           float32(i) * 3.25,
			Y:           100 - float32(i),
			Descriptor:  d,
		}
	}
	return fs
}

func TestHeaderRoundTrip(t *testing.T) {
	h := &Header{DescriptorLen: 128, Count: 7, Width: 640, Height: 480}
	b, err := EncodeHeader(h)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != HeaderSize {
		t.Fatalf("header is %d bytes, want %d", len(b), HeaderSize)
	}
	got, err := DecodeHeader(b)
	if err != nil {
		t.Fatal(err)
	}
	if *got != *h {
		t.Errorf("decoded %+v, want %+v", got, h)
	}
	if got.RecordSize() != 16+4*128 {
		t.Errorf("record size %d", got.RecordSize())
	}
}

func TestDecodeHeaderErrors(t *testing.T) {
	good, _ := EncodeHeader(&Header{})
	badMagic := append([]byte(nil), good...)
	copy(badMagic, "JPEG")
	badVersion := append([]byte(nil), good...)
	badVersion[4] = 9
	hugeDescriptor, _ := EncodeHeader(&Header{DescriptorLen: 1 << 30})

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"short", good[:10], ErrTruncated},
		{"magic", badMagic, ErrBadMagic},
		{"version", badVersion, ErrUnsupportedVersion},
		{"descriptor length", hugeDescriptor, ErrCorrupt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeHeader(tt.data); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestWriteRead(t *testing.T) {
	fs := sampleFeatures(5, 128)
	var buf bytes.Buffer
	if err := Write(&buf, fs, 320, 200); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != HeaderSize+5*(16+4*128) {
		t.Fatalf("wrote %d bytes", buf.Len())
	}

	h, got, err := Read(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if h.Width != 320 || h.Height != 200 || h.Count != 5 {
		t.Errorf("header %+v", h)
	}
	if !reflect.DeepEqual(got, fs) {
		t.Errorf("features differ after round trip")
	}

	_, _, err = Read(bytes.NewReader(buf.Bytes()[:buf.Len()-3]))
	if !errors.Is(err, ErrTruncated) {
		t.Errorf("truncated read err = %v", err)
	}
}

func TestReadHeaderOnly(t *testing.T) {
	tests := []struct {
		name string
		h    Header
		want error
	}{
		{"huge count", Header{DescriptorLen: 128, Count: 1 << 31}, ErrTruncated},
		{"max count", Header{DescriptorLen: 128, Count: math.MaxUint32}, ErrTruncated},
		{"huge descriptor", Header{DescriptorLen: math.MaxUint32, Count: 1}, ErrCorrupt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hdr, err := EncodeHeader(&tt.h)
			if err != nil {
				t.Fatal(err)
			}
			if _, _, err := Read(bytes.NewReader(hdr)); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}

			path := filepath.Join(t.TempDir(), "corrupt.sift")
			if err := os.WriteFile(path, hdr, 0644); err != nil {
				t.Fatal(err)
			}
			if m, err := Open(path); !errors.Is(err, tt.want) {
				if m != nil {
					m.Close()
				}
				t.Errorf("Open err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestWriteMixedDescriptors(t *testing.T) {
	fs := sampleFeatures(2, 8)
	fs[1].Descriptor = fs[1].Descriptor[:4]
	var buf bytes.Buffer
	if err := Write(&buf, fs, 0, 0); !errors.Is(err, sift.ErrDescriptorLength) {
		t.Errorf("err = %v, want ErrDescriptorLength", err)
	}
}

func TestSaveOpenMapped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "features.sift")
	fs := sampleFeatures(9, 32)
	if err := Save(path, fs, 64, 48); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temporary file left behind")
	}

	m, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if m.Len() != 9 || m.Header().Width != 64 {
		t.Fatalf("len = %d, header %+v", m.Len(), m.Header())
	}
	f3, err := m.Feature(3)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(f3, fs[3]) {
		t.Errorf("feature 3 = %+v, want %+v", f3, fs[3])
	}
	if _, err := m.Feature(9); err == nil {
		t.Errorf("expected out of range error")
	}
	all, err := m.All()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(all, fs) {
		t.Errorf("All differs from saved features")
	}
	raw, _ := fs[0].MarshalBinary()
	if !bytes.Equal(m.Record(0), raw) {
		t.Errorf("record bytes differ from MarshalBinary")
	}

	_, loaded, err := Load(path)
	if err != nil || !reflect.DeepEqual(loaded, fs) {
		t.Errorf("Load: %v", err)
	}

	if err := m.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestOpenTruncated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "short.sift")
	var buf bytes.Buffer
	if err := Write(&buf, sampleFeatures(3, 16), 0, 0); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes()[:buf.Len()-10], 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); !errors.Is(err, ErrTruncated) {
		t.Errorf("err = %v, want ErrTruncated", err)
	}
}

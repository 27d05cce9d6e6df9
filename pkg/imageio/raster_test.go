package imageio

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestIsFits(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"a.fits", true},
		{"b.FIT", true},
		{"c.fts", true},
		{"d.png", false},
		{"fits", false},
	}
	for _, tt := range tests {
		if got := IsFits(tt.path); got != tt.want {
			t.Errorf("IsFits(%q) = %v", tt.path, got)
		}
	}
}

func TestLoadGridPNG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	img.Set(0, 0, color.RGBA{255, 255, 255, 255})
	img.Set(1, 0, color.RGBA{0, 0, 0, 255})
	img.Set(2, 1, color.RGBA{255, 0, 0, 255})

	path := filepath.Join(t.TempDir(), "img.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	f.Close()

	g, err := LoadGrid(path)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()
	if g.Width() != 3 || g.Height() != 2 {
		t.Fatalf("size %dx%d", g.Width(), g.Height())
	}
	if g.At(0, 0) < 0.99 || g.At(1, 0) > 0.01 {
		t.Errorf("luminance %v, %v", g.At(0, 0), g.At(1, 0))
	}
	if v := g.At(2, 1); v < 0.2 || v > 0.4 {
		t.Errorf("red luminance = %v", v)
	}
}

func TestLoadGridMissing(t *testing.T) {
	if _, err := LoadGrid(filepath.Join(t.TempDir(), "none.png")); err == nil {
		t.Errorf("expected error")
	}
}

func TestDecodeGrid(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 3))
	img.SetGray(3, 2, color.Gray{Y: 255})
	var png8 bytes.Buffer
	if err := png.Encode(&png8, img); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		data    []byte
		w, h    int
		wantErr bool
	}{
		{"png", png8.Bytes(), 4, 3, false},
		{"fits", buildFits(8, 2, 2, nil, []byte{0, 64, 128, 255}), 2, 2, false},
		{"broken fits", buildFits(8, 50, 50, nil, nil), 0, 0, true},
		{"garbage", []byte("not an image"), 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := DecodeGrid(tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeGrid error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer g.Close()
			if g.Width() != tt.w || g.Height() != tt.h {
				t.Errorf("size %dx%d, want %dx%d", g.Width(), g.Height(), tt.w, tt.h)
			}
		})
	}
}

package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"siftmatch/pkg/featurefile"
	"siftmatch/pkg/sift"
)

// writeBlobPNG renders a deterministic scene of Gaussian blobs.
func writeBlobPNG(t *testing.T, path string, size int) {
	t.Helper()
	rng := rand.New(rand.NewSource(11))
	type blob struct{ x, y, sigma, amp float64 }
	blobs := make([]blob, 30)
	for i := range blobs {
		amp := 0.2 + 0.25*rng.Float64()
		if rng.Intn(2) == 0 {
			amp = -amp
		}
		blobs[i] = blob{
			x:     12 + float64(size-24)*rng.Float64(),
			y:     12 + float64(size-24)*rng.Float64(),
			sigma: 2 + 4*rng.Float64(),
			amp:   amp,
		}
	}

	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := 0.5
			for _, b := range blobs {
				dx, dy := float64(x)-b.x, float64(y)-b.y
				v += b.amp * math.Exp(-(dx*dx+dy*dy)/(2*b.sigma*b.sigma))
			}
			v = math.Max(0, math.Min(1, v))
			img.SetGray(x, y, color.Gray{Y: uint8(math.Round(v * 255))})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestRunCommands(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
		want    string
	}{
		{"no args", nil, true, "Usage:"},
		{"help", []string{"help"}, false, "Usage:"},
		{"version", []string{"version"}, false, "siftmatch dev"},
		{"unknown", []string{"frobnicate"}, true, "Usage:"},
		{"extract without input", []string{"extract"}, true, ""},
		{"match with one input", []string{"match", "a.png"}, true, ""},
		{"bad flag", []string{"extract", "-steps=x", "a.png"}, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := run(tt.args, &out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("run(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output %q does not contain %q", out.String(), tt.want)
			}
		})
	}
}

func TestExtractAndMatch(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "scene.png")
	writeBlobPNG(t, input, 160)

	var out bytes.Buffer
	if err := run([]string{"extract", "-coverage", input}, &out); err != nil {
		t.Fatalf("extract: %v\n%s", err, out.String())
	}
	output := filepath.Join(dir, "scene.sift")
	if !strings.Contains(out.String(), "Written:      "+output) {
		t.Errorf("extract output missing destination:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "=== Coverage (3x3) ===") {
		t.Errorf("extract output missing coverage:\n%s", out.String())
	}

	header, features, err := featurefile.Load(output)
	if err != nil {
		t.Fatal(err)
	}
	if header.Width != 160 || header.Height != 160 {
		t.Errorf("size = %dx%d, want 160x160", header.Width, header.Height)
	}
	if len(features) == 0 {
		t.Fatal("no features written")
	}

	out.Reset()
	if err := run([]string{"match", "-model", "translation", input, output}, &out); err != nil {
		t.Fatalf("match: %v\n%s", err, out.String())
	}
	for _, want := range []string{"Displacement: (0, 0) px", "Model:        translation"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("match output missing %q:\n%s", want, out.String())
		}
	}
}

func TestMatchBadModel(t *testing.T) {
	var out bytes.Buffer
	err := run([]string{"match", "-model", "projective", "a.png", "b.png"}, &out)
	if err == nil || !strings.Contains(err.Error(), "projective") {
		t.Fatalf("run error = %v, want unknown model", err)
	}
}

func TestMajorityDisplacement(t *testing.T) {
	at := func(x, y float32) sift.Feature { return sift.Feature{X: x, Y: y} }
	matches := []sift.Match{
		{A: at(0, 0), B: at(7.2, 3.9)},
		{A: at(10, 10), B: at(16.8, 14.1)},
		{A: at(20, 5), B: at(27, 9)},
		{A: at(3, 3), B: at(1, 1)},
		{A: at(5, 5), B: at(3, 3)},
	}
	dx, dy, votes := majorityDisplacement(matches)
	if dx != 7 || dy != 4 || votes != 3 {
		t.Errorf("majorityDisplacement = (%d, %d, %d), want (7, 4, 3)", dx, dy, votes)
	}

	// Equal votes resolve to the smaller offset.
	dx, dy, votes = majorityDisplacement(matches[1:])
	if dx != -2 || dy != -2 || votes != 2 {
		t.Errorf("tie = (%d, %d, %d), want (-2, -2, 2)", dx, dy, votes)
	}
}

func TestMedianMAD(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		median float64
		mad    float64
	}{
		{"constant", []float64{2, 2, 2}, 2, 0},
		{"odd", []float64{5, 1, 3}, 3, 1.4826 * 2},
		{"outlier", []float64{1, 2, 3, 4, 100}, 3, 1.4826},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			median, mad := medianMAD(tt.values)
			if math.Abs(median-tt.median) > 1e-9 || math.Abs(mad-tt.mad) > 1e-9 {
				t.Errorf("medianMAD(%v) = (%g, %g), want (%g, %g)", tt.values, median, mad, tt.median, tt.mad)
			}
		})
	}

	if m, _ := medianMAD(nil); !math.IsNaN(m) {
		t.Errorf("medianMAD(nil) = %g, want NaN", m)
	}
}

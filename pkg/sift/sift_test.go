package sift

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func extract(t *testing.T, g Grid, p *Params) *Result {
	t.Helper()
	res, err := Extract(context.Background(), g, p)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	return res
}

func TestExtractFlatImage(t *testing.T) {
	g := constantGrid(64, 64, 0.5)
	defer g.Close()

	fs, err := ComputeFeatures(g, 3, 1.6, 64, 1024)
	if err != nil {
		t.Fatal(err)
	}
	if len(fs) != 0 {
		t.Errorf("flat image produced %d features", len(fs))
	}
}

func TestExtractStraightEdge(t *testing.T) {
	w, h := 128, 128
	data := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x >= 64 {
				data[y*w+x] = 0.9
			} else {
				data[y*w+x] = 0.1
			}
		}
	}
	g := NewGridFromData(w, h, data)
	defer g.Close()

	p := NewParams()
	p.MinOctaveSize = 32
	res := extract(t, g, p)
	if len(res.Features) > 2 {
		t.Errorf("straight edge produced %d features, metrics %v", len(res.Features), res.Metrics)
	}
}

func TestExtractCheckerboard(t *testing.T) {
	const square = 15
	w, h := 16*square, 16*square
	data := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/square+y/square)%2 == 0 {
				data[y*w+x] = 0.9
			} else {
				data[y*w+x] = 0.1
			}
		}
	}
	g := NewGridFromData(w, h, data)
	defer g.Close()

	p := NewParams()
	p.MinOctaveSize = 32
	res := extract(t, g, p)
	if len(res.Features) == 0 {
		t.Fatalf("checkerboard produced no features, metrics %v", res.Metrics)
	}

	// Grid lines sit at multiples of square minus half a pixel. DoG is zero
	// at an X-junction, so keypoints land on square centers, not corners.
	lineOffset := func(v float32) float64 {
		return math.Mod(float64(v)+0.5, square)
	}
	centered := 0
	for _, f := range res.Features {
		ox, oy := lineOffset(f.X), lineOffset(f.Y)
		nearLine := func(o float64) bool { return o < 1.5 || o > square-1.5 }
		if nearLine(ox) && nearLine(oy) {
			t.Errorf("feature at (%.2f, %.2f) sits on a corner", f.X, f.Y)
		}
		if math.Abs(ox-square/2.0) <= square/4.0 && math.Abs(oy-square/2.0) <= square/4.0 {
			centered++
		}
	}
	if centered*5 < len(res.Features)*4 {
		t.Errorf("%d of %d features near square centers", centered, len(res.Features))
	}
}

func TestExtractFeatureBounds(t *testing.T) {
	g := blobGrid(200, 200, 0, 0)
	defer g.Close()
	p := NewParams()
	p.MinOctaveSize = 32

	res := extract(t, g, p)
	if len(res.Features) == 0 {
		t.Fatalf("no features, metrics %v", res.Metrics)
	}
	if res.Width != 200 || res.Height != 200 {
		t.Errorf("result size %dx%d", res.Width, res.Height)
	}
	if res.Metrics.Features != len(res.Features) {
		t.Errorf("metrics count %d, features %d", res.Metrics.Features, len(res.Features))
	}
	sum := 0
	for _, n := range res.Metrics.FeaturesByOctave {
		sum += n
	}
	if sum != len(res.Features) {
		t.Errorf("per octave counts sum to %d, want %d", sum, len(res.Features))
	}

	pi := float32(math.Pi)
	for _, f := range res.Features {
		if f.Orientation < -pi || f.Orientation >= pi {
			t.Errorf("orientation %v outside [-pi, pi)", f.Orientation)
		}
		if len(f.Descriptor) != 128 {
			t.Fatalf("descriptor length %d", len(f.Descriptor))
		}
		for _, v := range f.Descriptor {
			if v < 0 || v > 1 || math.IsNaN(float64(v)) {
				t.Fatalf("descriptor component %v outside [0, 1]", v)
			}
		}
		if f.X < 0 || f.Y < 0 || f.X > 200 || f.Y > 200 {
			t.Errorf("location (%v, %v) outside the image", f.X, f.Y)
		}
		if f.Scale < float32(p.InitialSigma) {
			t.Errorf("scale %v below initial sigma", f.Scale)
		}
	}
}

func TestExtractDeterministic(t *testing.T) {
	g := blobGrid(200, 200, 0, 0)
	defer g.Close()
	p := NewParams()
	p.MinOctaveSize = 32

	first := extract(t, g, p)
	second := extract(t, g, p)
	if !reflect.DeepEqual(first.Features, second.Features) {
		t.Errorf("repeated extraction differs")
	}

	p.Parallel = true
	par := extract(t, g, p)
	if !reflect.DeepEqual(first.Features, par.Features) {
		t.Errorf("parallel extraction differs from sequential")
	}
	if !reflect.DeepEqual(first.Metrics, par.Metrics) {
		t.Errorf("parallel metrics %v, sequential %v", par.Metrics, first.Metrics)
	}
}

func TestExtractTranslation(t *testing.T) {
	const dx, dy = 7, 4
	a := blobGrid(200, 200, 0, 0)
	defer a.Close()
	b := blobGrid(200, 200, dx, dy)
	defer b.Close()

	p := NewParams()
	p.MinOctaveSize = 32
	fa := extract(t, a, p).Features
	fb := extract(t, b, p).Features

	ms := MatchFeatures(fa, fb, NewMatchParams())
	if len(ms) == 0 {
		t.Fatalf("no matches between %d and %d features", len(fa), len(fb))
	}

	votes := make(map[[2]int]int)
	for _, m := range ms {
		key := [2]int{
			int(math.Round(float64(m.B.X - m.A.X))),
			int(math.Round(float64(m.B.Y - m.A.Y))),
		}
		votes[key]++
	}
	var best [2]int
	for k, n := range votes {
		if n > votes[best] || n == votes[best] && (k[0] < best[0] || k[0] == best[0] && k[1] < best[1]) {
			best = k
		}
	}
	if best != [2]int{dx, dy} {
		t.Errorf("dominant displacement %v (%d votes), want (%d, %d); votes %v", best, votes[best], dx, dy, votes)
	}
	if votes[best] < 3 {
		t.Errorf("only %d matches support the displacement", votes[best])
	}
}

func TestExtractSmallImage(t *testing.T) {
	g := blobGrid(40, 40, 0, 0)
	defer g.Close()
	res := extract(t, g, NewParams())
	if len(res.Features) != 0 || res.Metrics.Octaves != 0 {
		t.Errorf("image below min octave size produced %d features in %d octaves",
			len(res.Features), res.Metrics.Octaves)
	}
}

func TestExtractSkipsLargeOctaves(t *testing.T) {
	g := blobGrid(200, 200, 0, 0)
	defer g.Close()
	p := NewParams()
	p.MinOctaveSize = 32
	p.MaxOctaveSize = 128

	res := extract(t, g, p)
	if res.Metrics.Octaves != 3 || res.Metrics.SkippedOctaves != 1 {
		t.Errorf("octaves = %d, skipped = %d, want 3 and 1", res.Metrics.Octaves, res.Metrics.SkippedOctaves)
	}
	if res.Metrics.FeaturesByOctave[0] != 0 {
		t.Errorf("skipped octave produced features")
	}
	for _, f := range res.Features {
		if f.Scale < 2*float32(p.InitialSigma) {
			t.Errorf("feature scale %v from a skipped octave", f.Scale)
		}
	}
}

func TestExtractCanceled(t *testing.T) {
	g := blobGrid(100, 100, 0, 0)
	defer g.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Extract(ctx, g, NewParams()); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(p *Params)
	}{
		{"steps", func(p *Params) { p.Steps = 0 }},
		{"sigma", func(p *Params) { p.InitialSigma = 0 }},
		{"source sigma", func(p *Params) { p.SourceSigma = 2 }},
		{"min octave", func(p *Params) { p.MinOctaveSize = 2 }},
		{"max octave", func(p *Params) { p.MaxOctaveSize = 10 }},
		{"descriptor", func(p *Params) { p.FdBins = 0 }},
		{"edge ratio", func(p *Params) { p.EdgeRatio = 0 }},
		{"clip", func(p *Params) { p.DescriptorClip = 0 }},
		{"relocations", func(p *Params) { p.MaxRelocations = 0 }},
	}
	if err := NewParams().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParams()
			tt.modify(p)
			if err := p.Validate(); err == nil {
				t.Errorf("expected error")
			}
			g := NewGrid(64, 64)
			defer g.Close()
			if _, err := Extract(context.Background(), g, p); err == nil {
				t.Errorf("Extract accepted invalid params")
			}
		})
	}
}

func TestExtractDebugDumps(t *testing.T) {
	g := blobGrid(96, 96, 0, 0)
	defer g.Close()
	dir := t.TempDir()
	p := NewParams()
	p.MinOctaveSize = 32
	p.DebugPath = dir

	res := extract(t, g, p)
	if res.Metrics.DebugWriteErrors != 0 {
		t.Errorf("DebugWriteErrors = %d, want 0", res.Metrics.DebugWriteErrors)
	}

	want := []string{"00-params.txt", "o00-l00.tif", fmt.Sprintf("o00-dog%02d.tif", p.Steps+1)}
	for _, name := range want {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing debug file %s: %v", name, err)
		}
	}

	// A missing directory disables dumps.
	p.DebugPath = filepath.Join(dir, "missing")
	extract(t, g, p)
	if _, err := os.Stat(p.DebugPath); !os.IsNotExist(err) {
		t.Errorf("debug directory was created: %v", err)
	}

	// A regular file exists but cannot hold dumps; every write is counted.
	p.DebugPath = filepath.Join(dir, "00-params.txt")
	res = extract(t, g, p)
	octaves := res.Metrics.Octaves - res.Metrics.SkippedOctaves
	if want := 1 + octaves*(2*p.Steps+5); res.Metrics.DebugWriteErrors != want {
		t.Errorf("DebugWriteErrors = %d, want %d", res.Metrics.DebugWriteErrors, want)
	}
}

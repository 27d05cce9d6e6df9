// Package sift detects scale invariant keypoints, describes them with
// gradient orientation histograms and matches them between images.
package sift

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"
)

// Extract runs the full pipeline on src. src is not modified or released.
// Features are returned in octave order and within an octave in detection
// order.
func Extract(ctx context.Context, src Grid, p *Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if src.Empty() {
		return nil, fmt.Errorf("empty source image")
	}

	width, height := src.Width(), src.Height()
	result := &Result{Metrics: &Metrics{}, Width: width, Height: height}
	result.Metrics.DebugWriteErrors += maybeSaveText(p.DebugPath, "00-params.txt",
		fmt.Sprintf("Params: Steps=%d, InitialSigma=%f, MinOctaveSize=%d, MaxOctaveSize=%d, MinContrast=%f, EdgeRatio=%f",
			p.Steps, p.InitialSigma, p.MinOctaveSize, p.MaxOctaveSize, p.MinContrast, p.EdgeRatio))
	if min(width, height) < p.MinOctaveSize {
		return result, nil
	}

	octaves, err := buildPyramid(ctx, src, p)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, o := range octaves {
			o.Clear()
		}
	}()

	metrics := result.Metrics
	metrics.Octaves = len(octaves)
	metrics.FeaturesByOctave = make([]int, len(octaves))

	perOctave := make([][]Feature, len(octaves))
	perMetrics := make([]Metrics, len(octaves))
	builder := newDescriptorBuilder(p)

	run := func(oi int) {
		perOctave[oi] = processOctave(octaves[oi], oi, p, builder, &perMetrics[oi])
	}

	if p.Parallel {
		var wg sync.WaitGroup
		for oi := range octaves {
			if skipOctave(octaves[oi], p) {
				continue
			}
			wg.Add(1)
			go func(oi int) {
				defer wg.Done()
				if ctx.Err() != nil {
					return
				}
				run(oi)
			}(oi)
		}
		wg.Wait()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	} else {
		for oi := range octaves {
			if skipOctave(octaves[oi], p) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			run(oi)
		}
	}

	for oi, o := range octaves {
		if skipOctave(o, p) {
			metrics.SkippedOctaves++
			continue
		}
		metrics.add(&perMetrics[oi])
		metrics.FeaturesByOctave[oi] = len(perOctave[oi])
		result.Features = append(result.Features, perOctave[oi]...)
	}
	return result, nil
}

// buildPyramid creates one stub octave per halving of src until a side drops
// below MinOctaveSize.
func buildPyramid(ctx context.Context, src Grid, p *Params) ([]*Octave, error) {
	sk := NewScaleKernels(p.Steps, p.InitialSigma)

	var base Grid
	if sigma := math.Sqrt(p.InitialSigma*p.InitialSigma - p.SourceSigma*p.SourceSigma); sigma > 0 {
		base = Smooth(src, sigma)
	} else {
		base = src.Clone()
	}

	var octaves []*Octave
	cur := base
	for {
		if err := ctx.Err(); err != nil {
			cur.Close()
			for _, o := range octaves {
				o.Clear()
			}
			return nil, err
		}

		o := NewOctaveWithKernels(cur, sk)
		o.BuildStub()
		octaves = append(octaves, o)

		nw, nh := (o.Width+1)/2, (o.Height+1)/2
		if min(nw, nh) < p.MinOctaveSize {
			break
		}
		next := NewGrid(nw, nh)
		Downsample(o.Stub(), &next)
		cur = next
	}
	return octaves, nil
}

func skipOctave(o *Octave, p *Params) bool {
	return max(o.Width, o.Height) > p.MaxOctaveSize
}

// processOctave builds o, detects and describes its keypoints and releases
// its grids. Features are rescaled to source image coordinates.
func processOctave(o *Octave, index int, p *Params, builder *descriptorBuilder, m *Metrics) []Feature {
	defer o.Clear()
	o.Build()
	m.DebugWriteErrors += maybeSaveOctave(o, index, p.DebugPath)

	factor := math.Ldexp(1, index)
	candidates := detectCandidates(o, p, m)

	var features []Feature
	for _, c := range candidates {
		scale := float32(p.InitialSigma * math.Pow(2, c.S/float64(p.Steps)) * factor)
		x := float32(c.X * factor)
		y := float32(c.Y * factor)
		for _, lf := range builder.describe(o, c) {
			features = append(features, Feature{
				Scale:       scale,
				Orientation: lf.orientation,
				X:           x,
				Y:           y,
				Descriptor:  lf.descriptor,
			})
		}
	}
	m.Features = len(features)
	return features
}

// ComputeFeatures extracts features from img with default parameters apart
// from the given pyramid settings.
func ComputeFeatures(img Grid, steps int, initialSigma float64, minOctaveSize, maxOctaveSize int) ([]Feature, error) {
	p := NewParams()
	p.Steps = steps
	p.InitialSigma = initialSigma
	p.MinOctaveSize = minOctaveSize
	p.MaxOctaveSize = maxOctaveSize
	res, err := Extract(context.Background(), img, p)
	if err != nil {
		return nil, err
	}
	return res.Features, nil
}

// ComputeFeaturesImage converts img to luminance and extracts its features.
func ComputeFeaturesImage(ctx context.Context, img image.Image, p *Params) (*Result, error) {
	g := GridFromImage(img)
	defer g.Close()
	return Extract(ctx, g, p)
}

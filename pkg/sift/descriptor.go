package sift

import "math"

const (
	orientationBins = 36
	// orientationSigmaFactor scales the octave sigma to the orientation
	// histogram window.
	orientationSigmaFactor = 1.5
)

// descriptorIndex flattens (cellY, cellX, bin) in row-major order.
func descriptorIndex(cellY, cellX, bin, fdSize, fdBins int) int {
	return (cellY*fdSize+cellX)*fdBins + bin
}

// descriptorBuilder holds the per-pipeline constants shared by every
// candidate: the sampling mask and the descriptor geometry.
type descriptorBuilder struct {
	fdSize     int
	fdBins     int
	regionSize int
	mask       []float32
	peakRatio  float64
	clip       float64
}

func newDescriptorBuilder(p *Params) *descriptorBuilder {
	region := 4 * p.FdSize
	return &descriptorBuilder{
		fdSize:     p.FdSize,
		fdBins:     p.FdBins,
		regionSize: region,
		mask:       descriptorMask(region),
		peakRatio:  p.OrientationPeakRatio,
		clip:       p.DescriptorClip,
	}
}

// descriptorMask is a Gaussian over the region with sigma = region/2,
// centered between the two middle samples.
func descriptorMask(region int) []float32 {
	mask := make([]float32, region*region)
	sigma := float64(region) / 2
	c := float64(region)/2 - 0.5
	for v := 0; v < region; v++ {
		dy := float64(v) - c
		for u := 0; u < region; u++ {
			dx := float64(u) - c
			mask[v*region+u] = float32(math.Exp(-(dx*dx + dy*dy) / (2 * sigma * sigma)))
		}
	}
	return mask
}

// localFeature is a feature in octave coordinates before rescaling.
type localFeature struct {
	orientation float32
	descriptor  []float32
}

// describe returns one descriptor per significant orientation of c.
func (b *descriptorBuilder) describe(o *Octave, c Candidate) []localFeature {
	octaveSigma := o.Sigma(0) * math.Pow(2, c.S/float64(o.Steps))

	level := int(math.Round(c.S))
	if level < 0 {
		level = 0
	}
	if level > o.Steps+2 {
		level = o.Steps + 2
	}
	grad := o.Gradients(level)

	hist := orientationHistogram(grad, c, octaveSigma)
	orientations := dominantOrientations(hist, b.peakRatio)

	features := make([]localFeature, 0, len(orientations))
	for _, theta := range orientations {
		features = append(features, localFeature{
			orientation: theta,
			descriptor:  b.descriptor(grad, c, octaveSigma, float64(theta)),
		})
	}
	return features
}

// orientationHistogram accumulates Gaussian weighted gradient amplitudes of a
// circular window around c into 36 bins covering [-pi, pi).
func orientationHistogram(grad *Gradient, c Candidate, octaveSigma float64) []float64 {
	hist := make([]float64, orientationBins)
	amp := grad.Amplitude.Data()
	ori := grad.Orientation.Data()
	w, h := grad.Amplitude.Width(), grad.Amplitude.Height()

	sigma := orientationSigmaFactor * octaveSigma
	radius := int(3 * sigma)
	r2 := radius * radius
	inv2s2 := 1 / (2 * sigma * sigma)
	binSize := 2 * math.Pi / orientationBins

	xi := int(math.Round(c.X))
	yi := int(math.Round(c.Y))
	fx := c.X - float64(xi)
	fy := c.Y - float64(yi)

	for dy := -radius; dy <= radius; dy++ {
		py := yi + dy
		if py < 0 || py >= h {
			continue
		}
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy > r2 {
				continue
			}
			px := xi + dx
			if px < 0 || px >= w {
				continue
			}
			ox := float64(dx) - fx
			oy := float64(dy) - fy
			weight := math.Exp(-(ox*ox + oy*oy) * inv2s2)

			idx := py*w + px
			bin := int((float64(ori[idx]) + math.Pi) / binSize)
			if bin >= orientationBins || bin < 0 {
				bin = 0
			}
			hist[bin] += float64(amp[idx]) * weight
		}
	}
	return hist
}

// dominantOrientations returns the interpolated angle of the histogram peak
// followed by every other local peak above ratio times the maximum that is
// not adjacent to it.
func dominantOrientations(hist []float64, ratio float64) []float32 {
	n := len(hist)
	peak := 0
	for i := 1; i < n; i++ {
		if hist[i] > hist[peak] {
			peak = i
		}
	}

	out := []float32{interpolatePeak(hist, peak)}
	if hist[peak] <= 0 {
		return out
	}

	threshold := ratio * hist[peak]
	left := (peak + n - 1) % n
	right := (peak + 1) % n
	for i := 0; i < n; i++ {
		if i == peak || i == left || i == right {
			continue
		}
		v := hist[i]
		if v <= threshold {
			continue
		}
		if v > hist[(i+n-1)%n] && v > hist[(i+1)%n] {
			out = append(out, interpolatePeak(hist, i))
		}
	}
	return out
}

// interpolatePeak fits a parabola through bin i and its neighbors and returns
// the vertex as an angle in [-pi, pi).
func interpolatePeak(hist []float64, i int) float32 {
	n := len(hist)
	hl := hist[(i+n-1)%n]
	hc := hist[i]
	hr := hist[(i+1)%n]

	off := 0.0
	if denom := hl - 2*hc + hr; denom != 0 {
		off = 0.5 * (hl - hr) / denom
	}
	binSize := 2 * math.Pi / float64(n)
	return wrapOrientation((float64(i)+0.5+off)*binSize - math.Pi)
}

// wrapOrientation maps theta to [-pi, pi) in float32 precision.
func wrapOrientation(theta float64) float32 {
	for theta < -math.Pi {
		theta += 2 * math.Pi
	}
	for theta >= math.Pi {
		theta -= 2 * math.Pi
	}
	o := float32(theta)
	if o >= float32(math.Pi) {
		o = -float32(math.Pi)
	}
	if o < -float32(math.Pi) {
		o = -float32(math.Pi)
	}
	return o
}

// descriptor samples the rotated region around c and builds the normalized
// gradient histogram vector.
func (b *descriptorBuilder) descriptor(grad *Gradient, c Candidate, octaveSigma, theta float64) []float32 {
	desc := make([]float32, b.fdSize*b.fdSize*b.fdBins)
	amp := grad.Amplitude.Data()
	ori := grad.Orientation.Data()
	w, h := grad.Amplitude.Width(), grad.Amplitude.Height()

	region := b.regionSize
	step := octaveSigma / orientationSigmaFactor
	half := float64(region)/2 - 0.5
	sinT, cosT := math.Sincos(theta)
	binScale := float64(b.fdBins) / (2 * math.Pi)

	for v := 0; v < region; v++ {
		ly := (float64(v) - half) * step
		cellY := v / 4
		for u := 0; u < region; u++ {
			lx := (float64(u) - half) * step
			px := c.X + cosT*lx - sinT*ly
			py := c.Y + sinT*lx + cosT*ly
			ix := reflectIndex(int(math.Round(px)), w)
			iy := reflectIndex(int(math.Round(py)), h)
			idx := iy*w + ix

			weight := float64(b.mask[v*region+u]) * float64(amp[idx])
			if weight == 0 {
				continue
			}

			rel := float64(ori[idx]) - theta
			rel = math.Mod(rel, 2*math.Pi)
			if rel < 0 {
				rel += 2 * math.Pi
			}

			pos := rel * binScale
			b0 := int(pos)
			frac := pos - float64(b0)
			b0 %= b.fdBins
			b1 := (b0 + 1) % b.fdBins

			cellX := u / 4
			desc[descriptorIndex(cellY, cellX, b0, b.fdSize, b.fdBins)] += float32(weight * (1 - frac))
			desc[descriptorIndex(cellY, cellX, b1, b.fdSize, b.fdBins)] += float32(weight * frac)
		}
	}

	normalizeDescriptor(desc, b.clip)
	return desc
}

// normalizeDescriptor divides by clip*max and caps every component at 1.
func normalizeDescriptor(desc []float32, clip float64) {
	var peak float32
	for _, v := range desc {
		if v > peak {
			peak = v
		}
	}
	if peak <= 0 {
		return
	}
	scale := float32(1 / (float64(peak) * clip))
	for i, v := range desc {
		v *= scale
		if v > 1 {
			v = 1
		}
		desc[i] = v
	}
}

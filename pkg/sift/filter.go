package sift

import "math"

// GaussianKernel returns a normalized 1D Gaussian of the given sigma with
// 2*ceil(3*sigma)+1 taps (at least 3).
func GaussianKernel(sigma float64) []float32 {
	radius := int(math.Ceil(3 * sigma))
	if radius < 1 {
		radius = 1
	}
	size := 2*radius + 1
	kernel := make([]float32, size)
	sum := 0.0
	for i := 0; i < size; i++ {
		x := float64(i - radius)
		val := math.Exp(-x * x / (2 * sigma * sigma))
		kernel[i] = float32(val)
		sum += val
	}
	for i := range kernel {
		kernel[i] = float32(float64(kernel[i]) / sum)
	}
	return kernel
}

// Convolve applies the separable kernel horizontally then vertically.
func Convolve(src Grid, dst *Grid, kernel []float32) {
	sepFilter(src, dst, kernel, kernel)
}

// Smooth blurs src by sigma into a new grid.
func Smooth(src Grid, sigma float64) Grid {
	dst := NewGrid(src.Width(), src.Height())
	Convolve(src, &dst, GaussianKernel(sigma))
	return dst
}

// Gradient holds the amplitude and orientation fields of one blur level.
type Gradient struct {
	Amplitude   Grid
	Orientation Grid
}

// Close releases both fields.
func (g *Gradient) Close() {
	g.Amplitude.Close()
	g.Orientation.Close()
}

// ComputeGradient derives central difference gradients from src. Orientation
// is atan2(dy, dx) in [-pi, pi]. Borders use the nearest valid sample.
func ComputeGradient(src Grid) *Gradient {
	w, h := src.Width(), src.Height()
	amp := NewGrid(w, h)
	ori := NewGrid(w, h)
	sd := src.Data()
	ad := amp.Data()
	od := ori.Data()

	for y := 0; y < h; y++ {
		above := clampIndex(y-1, h) * w
		below := clampIndex(y+1, h) * w
		row := y * w
		for x := 0; x < w; x++ {
			left := clampIndex(x-1, w)
			right := clampIndex(x+1, w)
			dx := float64(sd[row+right]-sd[row+left]) / 2
			dy := float64(sd[below+x]-sd[above+x]) / 2
			ad[row+x] = float32(math.Hypot(dx, dy))
			od[row+x] = float32(math.Atan2(dy, dx))
		}
	}
	return &Gradient{Amplitude: amp, Orientation: ori}
}

package sift

import (
	"fmt"
	"math"
)

// OctaveState tracks which levels of an Octave are materialized.
type OctaveState int

const (
	// OctaveEmpty holds level 0 only.
	OctaveEmpty OctaveState = iota
	// OctaveStub holds level 0 and level Steps, enough to seed the next octave.
	OctaveStub
	// OctaveComplete holds all blur levels and DoG levels.
	OctaveComplete
)

func (s OctaveState) String() string {
	switch s {
	case OctaveEmpty:
		return "empty"
	case OctaveStub:
		return "stub"
	case OctaveComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// ScaleKernels holds the per-level blur of an octave and the kernels that
// take level 0 to each level. Octaves of one pyramid share a ScaleKernels.
type ScaleKernels struct {
	Steps     int
	Sigma     []float64   // Sigma[i] = sigma0 * 2^(i/Steps), len Steps+3
	SigmaDiff []float64   // SigmaDiff[i] = sqrt(Sigma[i]^2 - Sigma[0]^2)
	Kernels   [][]float32 // Kernels[0] is nil
}

// NewScaleKernels precomputes the blur schedule for steps levels per octave.
func NewScaleKernels(steps int, initialSigma float64) *ScaleKernels {
	n := steps + 3
	sk := &ScaleKernels{
		Steps:     steps,
		Sigma:     make([]float64, n),
		SigmaDiff: make([]float64, n),
		Kernels:   make([][]float32, n),
	}
	k := math.Pow(2, 1/float64(steps))
	sk.Sigma[0] = initialSigma
	for i := 1; i < n; i++ {
		sk.Sigma[i] = initialSigma * math.Pow(k, float64(i))
		sk.SigmaDiff[i] = math.Sqrt(sk.Sigma[i]*sk.Sigma[i] - initialSigma*initialSigma)
		sk.Kernels[i] = GaussianKernel(sk.SigmaDiff[i])
	}
	return sk
}

// Octave is one power-of-two resolution of the scale space.
type Octave struct {
	Steps  int
	Width  int
	Height int
	K      float64 // 2^(1/Steps)

	kernels   *ScaleKernels
	kMin1Inv  float32
	levels    []Grid
	dog       []Grid
	gradients []*Gradient
	state     OctaveState
}

// NewOctave creates an octave from src with its own blur schedule. The
// octave takes ownership of src.
func NewOctave(src Grid, steps int, initialSigma float64) *Octave {
	return NewOctaveWithKernels(src, NewScaleKernels(steps, initialSigma))
}

// NewOctaveWithKernels creates an octave from src sharing precomputed
// kernels. The octave takes ownership of src.
func NewOctaveWithKernels(src Grid, sk *ScaleKernels) *Octave {
	k := math.Pow(2, 1/float64(sk.Steps))
	o := &Octave{
		Steps:     sk.Steps,
		Width:     src.Width(),
		Height:    src.Height(),
		K:         k,
		kernels:   sk,
		kMin1Inv:  float32(1 / (k - 1)),
		levels:    make([]Grid, sk.Steps+3),
		dog:       make([]Grid, sk.Steps+2),
		gradients: make([]*Gradient, sk.Steps+3),
		state:     OctaveEmpty,
	}
	o.levels[0] = src
	return o
}

// State returns the current materialization state.
func (o *Octave) State() OctaveState { return o.state }

// Sigma returns the blur of level i relative to this octave's resolution.
func (o *Octave) Sigma(i int) float64 { return o.kernels.Sigma[i] }

// Level returns blur level i. Only valid levels for the current state are
// non-empty.
func (o *Octave) Level(i int) Grid { return o.levels[i] }

// DoG returns difference level i.
func (o *Octave) DoG(i int) Grid { return o.dog[i] }

// Stub returns the level used to seed the next octave.
func (o *Octave) Stub() Grid { return o.levels[o.Steps] }

// NumDoG returns the number of DoG levels, Steps+2.
func (o *Octave) NumDoG() int { return len(o.dog) }

// BuildStub computes level Steps only.
func (o *Octave) BuildStub() {
	if o.state != OctaveEmpty {
		panic(fmt.Sprintf("sift: BuildStub on %s octave", o.state))
	}
	o.requireSource()
	o.blurLevel(o.Steps)
	o.state = OctaveStub
}

// Build computes all blur and DoG levels. DoG[i] = (L[i+1] - L[i]) / (k - 1).
func (o *Octave) Build() {
	if o.state == OctaveComplete {
		panic("sift: Build on complete octave")
	}
	o.requireSource()
	for i := 1; i < len(o.levels); i++ {
		if o.state == OctaveStub && i == o.Steps {
			continue
		}
		o.blurLevel(i)
	}

	n := o.Width * o.Height
	for i := range o.dog {
		o.dog[i].Close()
		o.dog[i] = NewGrid(o.Width, o.Height)
		lo := o.levels[i].Data()
		hi := o.levels[i+1].Data()
		d := o.dog[i].Data()
		for j := 0; j < n; j++ {
			d[j] = (hi[j] - lo[j]) * o.kMin1Inv
		}
	}

	o.clearGradients()
	o.state = OctaveComplete
}

// Gradients returns the gradient fields of level i, computing them on first
// use.
func (o *Octave) Gradients(i int) *Gradient {
	if o.state != OctaveComplete {
		panic(fmt.Sprintf("sift: Gradients on %s octave", o.state))
	}
	if o.gradients[i] == nil {
		o.gradients[i] = ComputeGradient(o.levels[i])
	}
	return o.gradients[i]
}

// Clear releases every grid including the source. The octave cannot be built
// again afterwards.
func (o *Octave) Clear() {
	for i := range o.levels {
		o.levels[i].Close()
	}
	for i := range o.dog {
		o.dog[i].Close()
	}
	o.clearGradients()
	o.state = OctaveEmpty
}

func (o *Octave) clearGradients() {
	for i, g := range o.gradients {
		if g != nil {
			g.Close()
			o.gradients[i] = nil
		}
	}
}

func (o *Octave) requireSource() {
	if o.levels[0].Empty() {
		panic("sift: octave source has been released")
	}
}

func (o *Octave) blurLevel(i int) {
	o.levels[i].Close()
	o.levels[i] = NewGrid(o.Width, o.Height)
	Convolve(o.levels[0], &o.levels[i], o.kernels.Kernels[i])
}

package sift

import (
	"errors"
	"fmt"
)

// ErrDescriptorLength is returned when a serialized feature does not have the
// expected size.
var ErrDescriptorLength = errors.New("sift: serialized feature length mismatch")

// Params contains all parameters for feature extraction.
type Params struct {
	// Steps is the number of blur levels per octave that are searched for
	// extrema. Each octave holds Steps+3 levels.
	Steps int
	// InitialSigma is the blur of level 0 in every octave.
	InitialSigma float64
	// SourceSigma is the blur assumed to be present in the input image.
	SourceSigma float64
	// MinOctaveSize stops the pyramid once either side drops below it.
	MinOctaveSize int
	// MaxOctaveSize skips detection in octaves with a side larger than it.
	MaxOctaveSize int

	FdSize int // descriptor grid is FdSize x FdSize cells
	FdBins int // orientation bins per descriptor cell

	MinContrast          float64 // |D(x)| threshold in normalized DoG units
	EdgeRatio            float64 // principal curvature ratio limit r
	OrientationPeakRatio float64 // secondary orientation peaks relative to the maximum
	DescriptorClip       float64
	MaxRelocations       int

	// Parallel processes octaves concurrently. Output order is unchanged.
	Parallel bool
	// DebugPath, when it names an existing directory, receives the blur and
	// DoG levels of every processed octave.
	DebugPath string
}

// NewParams creates Params with default values.
func NewParams() *Params {
	return &Params{
		Steps:                3,
		InitialSigma:         1.6,
		SourceSigma:          0.5,
		MinOctaveSize:        64,
		MaxOctaveSize:        1024,
		FdSize:               4,
		FdBins:               8,
		MinContrast:          0.025,
		EdgeRatio:            10,
		OrientationPeakRatio: 0.8,
		DescriptorClip:       0.2,
		MaxRelocations:       5,
	}
}

// Validate reports parameter combinations the pipeline cannot run with.
func (p *Params) Validate() error {
	if p.Steps < 1 {
		return fmt.Errorf("steps must be >= 1, got %d", p.Steps)
	}
	if p.InitialSigma <= 0 {
		return fmt.Errorf("initial sigma must be positive, got %f", p.InitialSigma)
	}
	if p.SourceSigma < 0 || p.SourceSigma >= p.InitialSigma {
		return fmt.Errorf("source sigma must be in [0, %f), got %f", p.InitialSigma, p.SourceSigma)
	}
	if p.MinOctaveSize < 4 {
		return fmt.Errorf("min octave size must be >= 4, got %d", p.MinOctaveSize)
	}
	if p.MaxOctaveSize < p.MinOctaveSize {
		return fmt.Errorf("max octave size %d is below min octave size %d", p.MaxOctaveSize, p.MinOctaveSize)
	}
	if p.FdSize < 1 || p.FdBins < 1 {
		return fmt.Errorf("descriptor size must be positive, got %dx%d bins=%d", p.FdSize, p.FdSize, p.FdBins)
	}
	if p.EdgeRatio <= 0 {
		return fmt.Errorf("edge ratio must be positive, got %f", p.EdgeRatio)
	}
	if p.DescriptorClip <= 0 {
		return fmt.Errorf("descriptor clip must be positive, got %f", p.DescriptorClip)
	}
	if p.MaxRelocations < 1 {
		return fmt.Errorf("max relocations must be >= 1, got %d", p.MaxRelocations)
	}
	return nil
}

// DescriptorLength is the number of components in each descriptor.
func (p *Params) DescriptorLength() int {
	return p.FdSize * p.FdSize * p.FdBins
}

// Candidate is a refined DoG extremum in octave-local coordinates. S is the
// fractional DoG level index.
type Candidate struct {
	X, Y, S float64
}

// Metrics tracks candidate filtering statistics.
type Metrics struct {
	Octaves          int
	SkippedOctaves   int
	Extrema          int
	SingularHessian  int
	Divergent        int
	OutOfRange       int
	Duplicate        int
	LowContrast      int
	EdgeResponse     int
	Candidates       int
	Features         int
	FeaturesByOctave []int
	// DebugWriteErrors counts dump files that could not be written to
	// Params.DebugPath.
	DebugWriteErrors int
}

func (m *Metrics) add(o *Metrics) {
	m.Extrema += o.Extrema
	m.SingularHessian += o.SingularHessian
	m.Divergent += o.Divergent
	m.OutOfRange += o.OutOfRange
	m.Duplicate += o.Duplicate
	m.LowContrast += o.LowContrast
	m.EdgeResponse += o.EdgeResponse
	m.Candidates += o.Candidates
	m.Features += o.Features
	m.DebugWriteErrors += o.DebugWriteErrors
}

func (m *Metrics) String() string {
	return fmt.Sprintf("{Octaves=%d, Skipped=%d, Extrema=%d, Singular=%d, Divergent=%d, OutOfRange=%d, Duplicate=%d, LowContrast=%d, Edge=%d, Candidates=%d, Features=%d, DebugWriteErrors=%d}",
		m.Octaves, m.SkippedOctaves, m.Extrema, m.SingularHessian, m.Divergent, m.OutOfRange, m.Duplicate,
		m.LowContrast, m.EdgeResponse, m.Candidates, m.Features, m.DebugWriteErrors)
}

// Result is the output of the extraction pipeline.
type Result struct {
	Features []Feature
	Metrics  *Metrics
	Width    int
	Height   int
}

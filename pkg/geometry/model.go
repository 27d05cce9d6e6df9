// Package geometry fits planar transforms to weighted point correspondences.
package geometry

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

var (
	// ErrNotEnoughData is returned by Fit when fewer matches than the model
	// needs are given.
	ErrNotEnoughData = errors.New("not enough data points")
	// ErrIllDefined is returned by Fit when the matches do not determine the
	// model, for example coincident or collinear points.
	ErrIllDefined = errors.New("ill defined data points")
	// ErrNotInvertible is returned by ApplyInverse for singular models.
	ErrNotInvertible = errors.New("model is not invertible")
)

// Kind selects the degrees of freedom of a Model.
type Kind int

const (
	Translation Kind = iota // 2 parameters
	Rigid                   // rotation and translation
	Similarity              // rotation, isotropic scale and translation
	Affine                  // full 2x3 matrix
)

type kindOps struct {
	name       string
	minMatches int
	fit        func(matches []PointMatch) (Model, error)
	shake      func(m *Model, rng *rand.Rand, amount float64)
}

var kinds = [...]kindOps{
	Translation: {"translation", 1, fitTranslation, shakeTranslation},
	Rigid:       {"rigid", 2, fitRigid, shakeRigid},
	Similarity:  {"similarity", 2, fitSimilarity, shakeSimilarity},
	Affine:      {"affine", 3, fitAffine, shakeAffine},
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kinds) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kinds[k].name
}

// MinMatches is the smallest number of matches that determines the model.
func (k Kind) MinMatches() int {
	return kinds[k].minMatches
}

// ParseKind returns the Kind with the given name.
func ParseKind(name string) (Kind, error) {
	for k := range kinds {
		if kinds[k].name == name {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown model %q", name)
}

// Model is a planar transform
//
//	x' = A*x + B*y + TX
//	y' = C*x + D*y + TY
//
// restricted to the degrees of freedom of its Kind.
type Model struct {
	Kind     Kind
	A, B, TX float64
	C, D, TY float64

	// Cost is the mean weighted residual measured by the last Test.
	Cost float64
}

// NewModel returns the identity of the given kind.
func NewModel(kind Kind) *Model {
	return &Model{Kind: kind, A: 1, D: 1, Cost: math.Inf(1)}
}

// Fit estimates the model from matches, mapping P1.L onto P2.W. On error the
// model is left unchanged.
func (m *Model) Fit(matches []PointMatch) error {
	ops := kinds[m.Kind]
	if len(matches) < ops.minMatches {
		return fmt.Errorf("%s needs %d matches, got %d: %w", ops.name, ops.minMatches, len(matches), ErrNotEnoughData)
	}
	fitted, err := ops.fit(matches)
	if err != nil {
		return fmt.Errorf("fit %s: %w", ops.name, err)
	}
	fitted.Kind = m.Kind
	fitted.Cost = m.Cost
	*m = fitted
	return nil
}

// Apply transforms p.
func (m *Model) Apply(p [2]float64) [2]float64 {
	return [2]float64{
		m.A*p[0] + m.B*p[1] + m.TX,
		m.C*p[0] + m.D*p[1] + m.TY,
	}
}

// ApplyInverse maps p back through the model.
func (m *Model) ApplyInverse(p [2]float64) ([2]float64, error) {
	det := m.A*m.D - m.B*m.C
	if math.Abs(det) < 1e-12 {
		return p, ErrNotInvertible
	}
	x := p[0] - m.TX
	y := p[1] - m.TY
	return [2]float64{
		(m.D*x - m.B*y) / det,
		(-m.C*x + m.A*y) / det,
	}, nil
}

// Residual applies the model to every match and returns the weighted mean
// distance between sources and targets.
func (m *Model) Residual(matches []PointMatch) float64 {
	var sum, weights float64
	for i := range matches {
		matches[i].Apply(m)
		w := matches[i].Weight
		sum += w * matches[i].Distance()
		weights += w
	}
	if weights == 0 {
		return math.Inf(1)
	}
	return sum / weights
}

// Test applies the model to candidates and collects those within epsilon.
// It reports whether the inliers make up more than minInlierRatio of the
// candidates and determine the model, and sets Cost to their mean weighted
// residual.
func (m *Model) Test(candidates []PointMatch, epsilon, minInlierRatio float64) ([]PointMatch, bool) {
	var inliers []PointMatch
	for i := range candidates {
		candidates[i].Apply(m)
		if candidates[i].Distance() < epsilon {
			inliers = append(inliers, candidates[i])
		}
	}
	if len(inliers) == 0 {
		m.Cost = math.Inf(1)
		return nil, false
	}
	m.Cost = m.Residual(inliers)
	ratio := float64(len(inliers)) / float64(len(candidates))
	return inliers, ratio > minInlierRatio && len(inliers) >= m.Kind.MinMatches()
}

// Shake perturbs every free parameter by a normal deviate scaled by amount.
// The kind is preserved.
func (m *Model) Shake(rng *rand.Rand, amount float64) {
	kinds[m.Kind].shake(m, rng, amount)
}

func (m *Model) String() string {
	return fmt.Sprintf("%s [[%g, %g, %g], [%g, %g, %g]]", m.Kind, m.A, m.B, m.TX, m.C, m.D, m.TY)
}

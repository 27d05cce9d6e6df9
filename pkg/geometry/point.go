package geometry

import "math"

// Point has immutable local coordinates L and world coordinates W that
// follow the last applied model.
type Point struct {
	L [2]float64
	W [2]float64
}

// NewPoint returns a point whose world coordinates equal its local ones.
func NewPoint(x, y float64) Point {
	return Point{L: [2]float64{x, y}, W: [2]float64{x, y}}
}

// Apply sets the world coordinates to m applied to the local ones.
func (p *Point) Apply(m *Model) {
	p.W = m.Apply(p.L)
}

// Distance returns the distance between the world coordinates of p and q.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.W[0]-q.W[0], p.W[1]-q.W[1])
}

// PointMatch pairs a source point P1 with its target P2.
type PointMatch struct {
	P1     Point
	P2     Point
	Weight float64
}

func NewPointMatch(p1, p2 Point, weight float64) PointMatch {
	return PointMatch{P1: p1, P2: p2, Weight: weight}
}

// Apply transforms the source point by m.
func (pm *PointMatch) Apply(m *Model) {
	pm.P1.Apply(m)
}

// Distance is the world space distance between source and target.
func (pm PointMatch) Distance() float64 {
	return pm.P1.Distance(pm.P2)
}

// Flip swaps source and target.
func (pm PointMatch) Flip() PointMatch {
	return PointMatch{P1: pm.P2, P2: pm.P1, Weight: pm.Weight}
}

// FlipAll returns every match of matches with source and target swapped.
func FlipAll(matches []PointMatch) []PointMatch {
	out := make([]PointMatch, len(matches))
	for i, pm := range matches {
		out[i] = pm.Flip()
	}
	return out
}

package geometry

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

type centroids struct {
	sx, sy, dx, dy float64
	weight         float64
}

func weightedCentroids(matches []PointMatch) (centroids, error) {
	var c centroids
	for _, pm := range matches {
		w := pm.Weight
		c.sx += w * pm.P1.L[0]
		c.sy += w * pm.P1.L[1]
		c.dx += w * pm.P2.W[0]
		c.dy += w * pm.P2.W[1]
		c.weight += w
	}
	if c.weight <= 0 {
		return c, ErrIllDefined
	}
	c.sx /= c.weight
	c.sy /= c.weight
	c.dx /= c.weight
	c.dy /= c.weight
	return c, nil
}

func fitTranslation(matches []PointMatch) (Model, error) {
	c, err := weightedCentroids(matches)
	if err != nil {
		return Model{}, err
	}
	return Model{A: 1, D: 1, TX: c.dx - c.sx, TY: c.dy - c.sy}, nil
}

// rotationSums accumulates the weighted dot and cross products of centered
// source and target coordinates plus the source spread.
func rotationSums(matches []PointMatch, c centroids) (dot, cross, spread float64) {
	for _, pm := range matches {
		w := pm.Weight
		sx, sy := pm.P1.L[0]-c.sx, pm.P1.L[1]-c.sy
		dx, dy := pm.P2.W[0]-c.dx, pm.P2.W[1]-c.dy
		dot += w * (sx*dx + sy*dy)
		cross += w * (sx*dy - sy*dx)
		spread += w * (sx*sx + sy*sy)
	}
	return dot, cross, spread
}

func fitRigid(matches []PointMatch) (Model, error) {
	c, err := weightedCentroids(matches)
	if err != nil {
		return Model{}, err
	}
	dot, cross, spread := rotationSums(matches, c)
	if spread < 1e-12 {
		return Model{}, ErrIllDefined
	}
	theta := math.Atan2(cross, dot)
	sinT, cosT := math.Sincos(theta)
	return similarityFromCentroids(cosT, sinT, c), nil
}

func fitSimilarity(matches []PointMatch) (Model, error) {
	c, err := weightedCentroids(matches)
	if err != nil {
		return Model{}, err
	}
	dot, cross, spread := rotationSums(matches, c)
	if spread < 1e-12 {
		return Model{}, ErrIllDefined
	}
	return similarityFromCentroids(dot/spread, cross/spread, c), nil
}

// similarityFromCentroids builds [a -b; b a] and the translation that maps
// the source centroid onto the target centroid.
func similarityFromCentroids(a, b float64, c centroids) Model {
	return Model{
		A: a, B: -b, TX: c.dx - (a*c.sx - b*c.sy),
		C: b, D: a, TY: c.dy - (b*c.sx + a*c.sy),
	}
}

// fitAffine solves the weighted least squares problem with a QR
// decomposition. Rows are scaled by the square root of the match weight.
func fitAffine(matches []PointMatch) (Model, error) {
	n := len(matches)
	A := mat.NewDense(n*2, 6, nil)
	b := mat.NewVecDense(n*2, nil)

	for i, pm := range matches {
		w := math.Sqrt(pm.Weight)
		x, y := pm.P1.L[0], pm.P1.L[1]

		A.Set(i*2, 0, w*x)
		A.Set(i*2, 1, w*y)
		A.Set(i*2, 2, w)
		b.SetVec(i*2, w*pm.P2.W[0])

		A.Set(i*2+1, 3, w*x)
		A.Set(i*2+1, 4, w*y)
		A.Set(i*2+1, 5, w)
		b.SetVec(i*2+1, w*pm.P2.W[1])
	}

	var qr mat.QR
	qr.Factorize(A)
	if qr.Cond() > 1e12 {
		return Model{}, ErrIllDefined
	}

	var params mat.VecDense
	if err := qr.SolveVecTo(&params, false, b); err != nil {
		return Model{}, ErrIllDefined
	}
	return Model{
		A:  params.AtVec(0),
		B:  params.AtVec(1),
		TX: params.AtVec(2),
		C:  params.AtVec(3),
		D:  params.AtVec(4),
		TY: params.AtVec(5),
	}, nil
}

func shakeTranslation(m *Model, rng *rand.Rand, amount float64) {
	m.TX += rng.NormFloat64() * amount
	m.TY += rng.NormFloat64() * amount
}

func shakeRigid(m *Model, rng *rand.Rand, amount float64) {
	theta := math.Atan2(m.C, m.A) + rng.NormFloat64()*amount
	sinT, cosT := math.Sincos(theta)
	m.A, m.B, m.C, m.D = cosT, -sinT, sinT, cosT
	shakeTranslation(m, rng, amount)
}

func shakeSimilarity(m *Model, rng *rand.Rand, amount float64) {
	a := m.A + rng.NormFloat64()*amount
	b := m.C + rng.NormFloat64()*amount
	m.A, m.B, m.C, m.D = a, -b, b, a
	shakeTranslation(m, rng, amount)
}

func shakeAffine(m *Model, rng *rand.Rand, amount float64) {
	m.A += rng.NormFloat64() * amount
	m.B += rng.NormFloat64() * amount
	m.C += rng.NormFloat64() * amount
	m.D += rng.NormFloat64() * amount
	shakeTranslation(m, rng, amount)
}

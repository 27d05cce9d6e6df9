package sift

import "math"

// detectCandidates scans the DoG stack of a complete octave for 3x3x3
// extrema and refines each one to subpixel accuracy.
func detectCandidates(o *Octave, p *Params, m *Metrics) []Candidate {
	if o.State() != OctaveComplete {
		panic("sift: detect on incomplete octave")
	}
	w, h := o.Width, o.Height
	if w < 3 || h < 3 {
		return nil
	}

	d := &dogStack{w: w, h: h, levels: make([][]float32, o.NumDoG())}
	for i := range d.levels {
		d.levels[i] = o.DoG(i).Data()
	}

	edgeLimit := (p.EdgeRatio + 1) * (p.EdgeRatio + 1) / p.EdgeRatio
	seen := make(map[[3]int]struct{})
	var candidates []Candidate

	for i := o.Steps; i >= 1; i-- {
		for y := h - 2; y >= 1; y-- {
			for x := w - 2; x >= 1; x-- {
				if !d.isExtremum(x, y, i) {
					continue
				}
				m.Extrema++

				r, ok := d.localize(x, y, i, o.Steps, p.MaxRelocations, m)
				if !ok {
					continue
				}
				key := [3]int{r.x, r.y, r.i}
				if _, dup := seen[key]; dup {
					m.Duplicate++
					continue
				}
				seen[key] = struct{}{}

				contrast := r.value + 0.5*(r.grad[0]*r.off[0]+r.grad[1]*r.off[1]+r.grad[2]*r.off[2])
				if math.Abs(contrast) < p.MinContrast {
					m.LowContrast++
					continue
				}

				dxx, dyy, dxy := r.hess[0][0], r.hess[1][1], r.hess[0][1]
				det := dxx*dyy - dxy*dxy
				tr := dxx + dyy
				if det <= 0 || tr*tr/det > edgeLimit {
					m.EdgeResponse++
					continue
				}

				m.Candidates++
				candidates = append(candidates, Candidate{
					X: float64(r.x) + r.off[0],
					Y: float64(r.y) + r.off[1],
					S: float64(r.i) + r.off[2],
				})
			}
		}
	}
	return candidates
}

type dogStack struct {
	w, h   int
	levels [][]float32
}

func (d *dogStack) at(x, y, i int) float64 {
	return float64(d.levels[i][y*d.w+x])
}

// isExtremum reports whether (x, y, i) is strictly larger or strictly smaller
// than all 26 neighbors.
func (d *dogStack) isExtremum(x, y, i int) bool {
	v := d.levels[i][y*d.w+x]
	first := d.levels[i][y*d.w+x-1]
	var isMax bool
	switch {
	case v > first:
		isMax = true
	case v < first:
		isMax = false
	default:
		return false
	}

	for di := -1; di <= 1; di++ {
		level := d.levels[i+di]
		for dy := -1; dy <= 1; dy++ {
			row := (y + dy) * d.w
			for dx := -1; dx <= 1; dx++ {
				if di == 0 && dy == 0 && dx == 0 {
					continue
				}
				n := level[row+x+dx]
				if isMax && n >= v || !isMax && n <= v {
					return false
				}
			}
		}
	}
	return true
}

type localization struct {
	x, y, i int
	off     [3]float64
	grad    [3]float64
	hess    [3][3]float64
	value   float64
}

// localize fits a quadratic around (x, y, i), moving the center while the
// offset leaves the unit cell and keeps shrinking.
func (d *dogStack) localize(x, y, i, steps, maxRelocations int, m *Metrics) (localization, bool) {
	bestSq := math.Inf(1)
	for iter := 0; iter < maxRelocations; iter++ {
		r := localization{x: x, y: y, i: i, value: d.at(x, y, i)}
		d.derivatives(&r)

		neg := [3]float64{-r.grad[0], -r.grad[1], -r.grad[2]}
		off, ok := solveLinear3(r.hess, neg)
		if !ok {
			m.SingularHessian++
			return r, false
		}
		r.off = off

		sq := off[0]*off[0] + off[1]*off[1] + off[2]*off[2]
		if sq >= 2 {
			m.Divergent++
			return r, false
		}
		if math.Abs(off[0]) <= 0.5 && math.Abs(off[1]) <= 0.5 && math.Abs(off[2]) <= 0.5 {
			return r, true
		}
		if sq >= bestSq {
			m.Divergent++
			return r, false
		}
		bestSq = sq

		x += int(math.Round(off[0]))
		y += int(math.Round(off[1]))
		i += int(math.Round(off[2]))
		if x < 1 || x > d.w-2 || y < 1 || y > d.h-2 || i < 1 || i > steps {
			m.OutOfRange++
			return r, false
		}
	}
	m.Divergent++
	return localization{}, false
}

// derivatives fills the gradient and Hessian at the center of r using
// central differences.
func (d *dogStack) derivatives(r *localization) {
	x, y, i := r.x, r.y, r.i
	c := r.value

	r.grad[0] = (d.at(x+1, y, i) - d.at(x-1, y, i)) / 2
	r.grad[1] = (d.at(x, y+1, i) - d.at(x, y-1, i)) / 2
	r.grad[2] = (d.at(x, y, i+1) - d.at(x, y, i-1)) / 2

	dxx := d.at(x+1, y, i) + d.at(x-1, y, i) - 2*c
	dyy := d.at(x, y+1, i) + d.at(x, y-1, i) - 2*c
	dss := d.at(x, y, i+1) + d.at(x, y, i-1) - 2*c
	dxy := (d.at(x+1, y+1, i) - d.at(x-1, y+1, i) - d.at(x+1, y-1, i) + d.at(x-1, y-1, i)) / 4
	dxs := (d.at(x+1, y, i+1) - d.at(x-1, y, i+1) - d.at(x+1, y, i-1) + d.at(x-1, y, i-1)) / 4
	dys := (d.at(x, y+1, i+1) - d.at(x, y-1, i+1) - d.at(x, y+1, i-1) + d.at(x, y-1, i-1)) / 4

	r.hess = [3][3]float64{
		{dxx, dxy, dxs},
		{dxy, dyy, dys},
		{dxs, dys, dss},
	}
}

// solveLinear3 solves A*x = b with partial pivoting. It returns false when A
// is singular.
func solveLinear3(A [3][3]float64, b [3]float64) ([3]float64, bool) {
	var x [3]float64
	a := A
	rhs := b

	for col := 0; col < 3; col++ {
		maxRow := col
		maxVal := math.Abs(a[col][col])
		for row := col + 1; row < 3; row++ {
			if av := math.Abs(a[row][col]); av > maxVal {
				maxVal = av
				maxRow = row
			}
		}
		if maxVal < 1e-12 {
			return x, false
		}
		if maxRow != col {
			a[col], a[maxRow] = a[maxRow], a[col]
			rhs[col], rhs[maxRow] = rhs[maxRow], rhs[col]
		}

		pivot := a[col][col]
		for row := col + 1; row < 3; row++ {
			factor := a[row][col] / pivot
			for j := col; j < 3; j++ {
				a[row][j] -= factor * a[col][j]
			}
			rhs[row] -= factor * rhs[col]
		}
	}

	for row := 2; row >= 0; row-- {
		sum := rhs[row]
		for j := row + 1; j < 3; j++ {
			sum -= a[row][j] * x[j]
		}
		x[row] = sum / a[row][row]
	}
	return x, true
}

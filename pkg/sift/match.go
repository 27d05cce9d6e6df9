package sift

import (
	"math"
	"sort"
	"sync"

	"siftmatch/pkg/geometry"
)

// MatchParams contains the parameters for descriptor matching.
type MatchParams struct {
	// MaxScaleRatio restricts candidates to scales within
	// [s/MaxScaleRatio, s*MaxScaleRatio]. Values <= 0 or +Inf disable the
	// restriction.
	MaxScaleRatio float64
	// MaxDistanceRatio is the upper bound for best/second-best distance.
	MaxDistanceRatio float64
	// Workers splits the nearest neighbor search across goroutines. Values
	// below 2 search sequentially.
	Workers int
}

// NewMatchParams creates MatchParams with default values.
func NewMatchParams() *MatchParams {
	return &MatchParams{
		MaxScaleRatio:    0,
		MaxDistanceRatio: 0.92,
		Workers:          1,
	}
}

// Match pairs a feature of the first set with its nearest neighbor in the
// second.
type Match struct {
	A        Feature
	B        Feature
	Weight   float32 // mean scale of A and B
	Distance float32
}

// MatchScaled matches as against bs with the default distance ratio and the
// given scale ratio bound.
func MatchScaled(as, bs []Feature, maxScaleRatio float32) []Match {
	p := NewMatchParams()
	p.MaxScaleRatio = float64(maxScaleRatio)
	return MatchFeatures(as, bs, p)
}

type nearest struct {
	b        int
	distance float32
}

// MatchFeatures finds, for every feature of as, its nearest neighbor in bs
// that passes the ratio test. Matches whose target is claimed by another
// match are dropped afterwards. The result follows the order of as.
func MatchFeatures(as, bs []Feature, p *MatchParams) []Match {
	if len(as) == 0 || len(bs) == 0 {
		return nil
	}

	order := make([]int, len(bs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return bs[order[i]].Scale > bs[order[j]].Scale
	})
	scales := make([]float32, len(order))
	for k, idx := range order {
		scales[k] = bs[idx].Scale
	}

	bounded := p.MaxScaleRatio > 0 && !math.IsInf(p.MaxScaleRatio, 1)
	ratio := float32(p.MaxDistanceRatio)

	results := make([]nearest, len(as))
	search := func(ai int) {
		a := as[ai]
		lo, hi := 0, len(order)
		if bounded {
			maxS := float32(float64(a.Scale) * p.MaxScaleRatio)
			minS := float32(float64(a.Scale) / p.MaxScaleRatio)
			lo = sort.Search(len(scales), func(k int) bool { return scales[k] <= maxS })
			hi = sort.Search(len(scales), func(k int) bool { return scales[k] < minS })
		}

		best := float32(math.Inf(1))
		second := float32(math.Inf(1))
		bestIdx := -1
		for k := lo; k < hi; k++ {
			d := Distance(a, bs[order[k]])
			if d < best {
				second = best
				best = d
				bestIdx = order[k]
			} else if d < second {
				second = d
			}
		}

		results[ai] = nearest{b: -1}
		if bestIdx < 0 {
			return
		}
		// best/+Inf is 0; 0/0 is NaN and never passes
		if best/second < ratio {
			results[ai] = nearest{b: bestIdx, distance: best}
		}
	}

	if p.Workers > 1 {
		var wg sync.WaitGroup
		next := make(chan int, len(as))
		for i := range as {
			next <- i
		}
		close(next)
		for w := 0; w < p.Workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for ai := range next {
					search(ai)
				}
			}()
		}
		wg.Wait()
	} else {
		for i := range as {
			search(i)
		}
	}

	matches := make([]Match, 0, len(as))
	targets := make([]int, 0, len(as))
	for ai, r := range results {
		if r.b < 0 {
			continue
		}
		a, b := as[ai], bs[r.b]
		matches = append(matches, Match{
			A:        a,
			B:        b,
			Weight:   (a.Scale + b.Scale) / 2,
			Distance: r.distance,
		})
		targets = append(targets, r.b)
	}
	return removeAmbiguous(matches, targets)
}

// removeAmbiguous drops every match whose target is also the target of
// another match, either the same feature or a feature at the same location
// reached from a different source location.
func removeAmbiguous(matches []Match, targets []int) []Match {
	drop := make([]bool, len(matches))
	for i := 0; i < len(matches); i++ {
		for j := i + 1; j < len(matches); j++ {
			if !collides(matches[i], matches[j], targets[i], targets[j]) {
				continue
			}
			drop[i] = true
			drop[j] = true
		}
	}

	kept := matches[:0]
	for i, m := range matches {
		if !drop[i] {
			kept = append(kept, m)
		}
	}
	return kept
}

func collides(m1, m2 Match, t1, t2 int) bool {
	if t1 == t2 {
		return true
	}
	if m1.B.X != m2.B.X || m1.B.Y != m2.B.Y {
		return false
	}
	return m1.A.X != m2.A.X || m1.A.Y != m2.A.Y
}

// MatchesToPointMatches converts matches to point correspondences from A to
// B for model fitting.
func MatchesToPointMatches(matches []Match) []geometry.PointMatch {
	out := make([]geometry.PointMatch, len(matches))
	for i, m := range matches {
		out[i] = geometry.NewPointMatch(
			geometry.NewPoint(float64(m.A.X), float64(m.A.Y)),
			geometry.NewPoint(float64(m.B.X), float64(m.B.Y)),
			float64(m.Weight),
		)
	}
	return out
}

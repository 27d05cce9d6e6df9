package sift

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

const (
	coverageEdgeFraction    = 0.25
	minFeaturesPerZone      = 3
	minTotalFeaturesBalance = 20
)

// ZonePosition identifies one cell of a 3x3 split of the image.
type ZonePosition int

const (
	ZoneTopLeft ZonePosition = iota
	ZoneTop
	ZoneTopRight
	ZoneLeft
	ZoneCenter
	ZoneRight
	ZoneBottomLeft
	ZoneBottom
	ZoneBottomRight
)

var zoneLabels = [...]string{"TL", "T", "TR", "L", "Center", "R", "BL", "B", "BR"}

func (z ZonePosition) String() string {
	if z < 0 || int(z) >= len(zoneLabels) {
		return "?"
	}
	return zoneLabels[z]
}

// ZoneData summarizes the features that fall into one zone.
type ZoneData struct {
	Label       string
	Count       int
	MedianScale float64
	MeanScale   float64
}

// Coverage describes how features are spread over the image.
type Coverage struct {
	Zones [9]ZoneData
	// Balance is the smallest zone count divided by the largest.
	Balance float64
	// EmptyZones lists zones with fewer than minFeaturesPerZone features.
	EmptyZones []string
	Reliable   bool
}

// AnalyzeCoverage splits the image into a 3x3 grid with a wider center and
// reports per-zone feature counts and scale statistics. It returns nil when
// there are no features.
func AnalyzeCoverage(features []Feature, width, height int) *Coverage {
	if len(features) == 0 {
		return nil
	}

	xLo := float64(width) * coverageEdgeFraction
	xHi := float64(width) * (1.0 - coverageEdgeFraction)
	yLo := float64(height) * coverageEdgeFraction
	yHi := float64(height) * (1.0 - coverageEdgeFraction)

	var scales [9][]float64
	for _, f := range features {
		pos := classifyZone(float64(f.X), float64(f.Y), xLo, xHi, yLo, yHi)
		scales[pos] = append(scales[pos], float64(f.Scale))
	}

	c := &Coverage{}
	minCount, maxCount := len(features), 0
	for pos := range scales {
		zd := ZoneData{Label: ZonePosition(pos).String(), Count: len(scales[pos])}
		if zd.Count > 0 {
			sort.Float64s(scales[pos])
			zd.MedianScale = stat.Quantile(0.5, stat.Empirical, scales[pos], nil)
			zd.MeanScale = stat.Mean(scales[pos], nil)
		}
		if zd.Count < minFeaturesPerZone {
			c.EmptyZones = append(c.EmptyZones, zd.Label)
		}
		minCount = min(minCount, zd.Count)
		maxCount = max(maxCount, zd.Count)
		c.Zones[pos] = zd
	}
	if maxCount > 0 {
		c.Balance = float64(minCount) / float64(maxCount)
	}
	c.Reliable = len(features) >= minTotalFeaturesBalance && len(c.EmptyZones) == 0
	return c
}

func classifyZone(x, y, xLo, xHi, yLo, yHi float64) ZonePosition {
	var col, row int
	if x < xLo {
		col = 0
	} else if x < xHi {
		col = 1
	} else {
		col = 2
	}
	if y < yLo {
		row = 0
	} else if y < yHi {
		row = 1
	} else {
		row = 2
	}
	return ZonePosition(row*3 + col)
}

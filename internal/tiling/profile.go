package tiling

import (
	"math"

	"github.com/ironsheep/segmenter-mcp/internal/segmenter"
)

const (
	// pixelNeighborhood is the half-length of the cross-profile window
	// compared on each side of a candidate cut position.
	pixelNeighborhood = 5
	// antiSmoothing bounds how far the cut may move between adjacent
	// positions.
	antiSmoothing = 3
)

// MinProfileOverlap is the smallest block overlap that leaves room for a
// gradient-following cut line.
const MinProfileOverlap = 2 * (pixelNeighborhood + 1)

// HorizontalProfile traces a left-to-right cut line near row center.
//
// For every column it returns the row where the cut passes. Candidate rows
// lie within halfWindow of center and within antiSmoothing rows of the
// previous column's choice; among them the row with the largest mean absolute
// difference between the pixels above and below it wins. The second result is
// false when the window is too narrow for the search, in which case no
// profile is produced.
func HorizontalProfile(in segmenter.InputRaster, bands []int, width, height, center, halfWindow int) ([]int, bool) {
	at := func(along, across, band int) float64 { return in.Value(along, across, band) }
	return traceProfile(at, bands, width, height, center, halfWindow)
}

// VerticalProfile traces a top-to-bottom cut line near column center. For
// every row it returns the column where the cut passes.
func VerticalProfile(in segmenter.InputRaster, bands []int, width, height, center, halfWindow int) ([]int, bool) {
	at := func(along, across, band int) float64 { return in.Value(across, along, band) }
	return traceProfile(at, bands, height, width, center, halfWindow)
}

// StraightProfile is a cut line at a fixed position.
func StraightProfile(length, position int) []int {
	p := make([]int, length)
	for i := range p {
		p[i] = position
	}
	return p
}

// traceProfile works on an abstract grid where "along" runs the length of the
// cut line and "across" is the direction the cut can move in.
func traceProfile(at func(along, across, band int) float64, bands []int, length, span, center, halfWindow int) ([]int, bool) {
	if halfWindow < pixelNeighborhood || length < 1 {
		return nil, false
	}

	bufStart := max(0, min(span-1, center-halfWindow))
	bufBound := max(0, min(span, center+halfWindow+1))
	if bufBound-bufStart < 1+2*pixelNeighborhood {
		return nil, false
	}
	minStart := bufStart + pixelNeighborhood
	maxBound := bufBound - pixelNeighborhood

	profile := make([]int, length)
	for pos := 0; pos < length; pos++ {
		start, bound := minStart, maxBound
		if pos > 0 {
			start = max(profile[pos-1]-antiSmoothing, minStart)
			bound = min(profile[pos-1]+1+antiSmoothing, maxBound)
		}

		best, bestIdx := 0.0, start
		for cut := start; cut < bound; cut++ {
			var diff float64
			for _, band := range bands {
				var sum float64
				for off := 0; off < pixelNeighborhood; off++ {
					sum += math.Abs(at(pos, cut-pixelNeighborhood+off, band) - at(pos, cut+pixelNeighborhood-off, band))
				}
				diff += sum / float64(2*pixelNeighborhood+1)
			}
			if diff > best {
				best, bestIdx = diff, cut
			}
		}
		profile[pos] = bestIdx
	}
	return profile, true
}

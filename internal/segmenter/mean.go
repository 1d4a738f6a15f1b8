package segmenter

import "math"

// meanDissimilarity is the Euclidean distance between the band means of a
// and b. The preview carries the size-weighted means of the union.
func (m *Merger) meanDissimilarity(a, b, preview *Segment) float64 {
	na, nb := float64(a.Size), float64(b.Size)
	nu := na + nb

	var sum float64
	for i := 0; i < m.bands; i++ {
		fa, fb := a.Features[i], b.Features[i]
		preview.Features[i] = (fa*na + fb*nb) / nu
		d := fa - fb
		sum += d * d
	}
	return math.Sqrt(sum)
}

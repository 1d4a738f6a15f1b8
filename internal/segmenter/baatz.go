package segmenter

import "math"

// Baatz feature layout: three shape scalars followed by three per-band blocks.
const (
	baatzEdgeLength = iota
	baatzCompactness
	baatzSmoothness
	baatzBandsStart
)

func baatzFeatureSize(bands int) int { return baatzBandsStart + 3*bands }

func (m *Merger) sumIdx(band int) int    { return baatzBandsStart + band }
func (m *Merger) squareIdx(band int) int { return baatzBandsStart + m.bands + band }
func (m *Merger) stdIdx(band int) int    { return baatzBandsStart + 2*m.bands + band }

func (m *Merger) baatzInit(s *Segment, values []float64) {
	f := s.Features
	f[baatzEdgeLength] = 4
	f[baatzCompactness] = 4
	f[baatzSmoothness] = 1
	for b, v := range values {
		f[m.sumIdx(b)] = v
		f[m.squareIdx(b)] = v * v
		f[m.stdIdx(b)] = 0
	}
}

// baatzDissimilarity is colorWeight*hColor + (1-colorWeight)*hForm, where each
// term is the normalized heterogeneity of the union minus the size-weighted
// heterogeneity of the two parts.
func (m *Merger) baatzDissimilarity(a, b, preview *Segment) float64 {
	fa, fb, fu := a.Features, b.Features, preview.Features
	na, nb := float64(a.Size), float64(b.Size)
	nu := na + nb

	var hForm float64
	if m.colorWeight != 1 {
		t1, t2 := m.matrix.TouchingEdges(preview.XStart, preview.YStart, preview.XBound, preview.YBound, a.ID, b.ID)

		el := fa[baatzEdgeLength] - float64(t1) + fb[baatzEdgeLength] - float64(t2)
		fu[baatzEdgeLength] = el
		fu[baatzCompactness] = el / math.Sqrt(nu)
		fu[baatzSmoothness] = el / float64(2*preview.Width()+2*preview.Height())

		hCompact := m.compact(fu[baatzCompactness]) -
			(m.compact(fa[baatzCompactness])*na+m.compact(fb[baatzCompactness])*nb)/nu
		hSmooth := m.smooth(fu[baatzSmoothness]) -
			(m.smooth(fa[baatzSmoothness])*na+m.smooth(fb[baatzSmoothness])*nb)/nu

		hForm = m.compactnessWeight*hCompact + (1-m.compactnessWeight)*hSmooth
	} else {
		fu[baatzEdgeLength], fu[baatzCompactness], fu[baatzSmoothness] = 0, 0, 0
	}

	var hColor float64
	for band := 0; band < m.bands; band++ {
		si, qi, di := m.sumIdx(band), m.squareIdx(band), m.stdIdx(band)

		sum := fa[si] + fb[si]
		squares := fa[qi] + fb[qi]
		mean := sum / nu
		std := math.Sqrt(math.Max(0, (squares-2*mean*sum+nu*mean*mean)/nu))

		fu[si], fu[qi], fu[di] = sum, squares, std

		if m.colorWeight != 0 {
			hColor += m.weights[band] * (m.std(std) - (m.std(fa[di])*na+m.std(fb[di])*nb)/nu)
		}
	}

	return math.Max(0, m.colorWeight*hColor+(1-m.colorWeight)*hForm)
}

func (m *Merger) compact(v float64) float64 { return (v + m.compactOffset) * m.compactGain }
func (m *Merger) smooth(v float64) float64  { return (v + m.smoothOffset) * m.smoothGain }
func (m *Merger) std(v float64) float64     { return (v + m.stdOffset) * m.stdGain }

// baatzUpdate rescales compactness, smoothness and standard deviation to [0,1]
// over the current active segments.
func (m *Merger) baatzUpdate(arena *Arena, head Handle) {
	compact := newSpan()
	smooth := newSpan()
	std := newSpan()

	for h := head; h != NoHandle; {
		s := arena.Get(h)
		f := s.Features
		if m.colorWeight != 1 {
			compact.add(f[baatzCompactness])
			smooth.add(f[baatzSmoothness])
		}
		if m.colorWeight != 0 {
			for band := 0; band < m.bands; band++ {
				std.add(f[m.stdIdx(band)])
			}
		}
		h = s.Next
	}

	m.compactOffset, m.compactGain = compact.normalizer()
	m.smoothOffset, m.smoothGain = smooth.normalizer()
	m.stdOffset, m.stdGain = std.normalizer()
}

type span struct{ lo, hi float64 }

func newSpan() span { return span{lo: math.Inf(1), hi: math.Inf(-1)} }

func (s *span) add(v float64) {
	s.lo = math.Min(s.lo, v)
	s.hi = math.Max(s.hi, v)
}

// normalizer returns offset and gain mapping the span onto [0,1]. A degenerate
// span maps its single value to 1, or leaves zero untouched.
func (s span) normalizer() (offset, gain float64) {
	switch {
	case s.lo > s.hi:
		return 0, 1
	case s.lo == s.hi:
		if s.hi == 0 {
			return 0, 1
		}
		return 0, 1 / s.hi
	default:
		return -s.lo, 1 / (s.hi - s.lo)
	}
}

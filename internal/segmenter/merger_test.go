package segmenter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pixelPair builds two adjacent single-pixel segments (0,0) and (1,0) in a
// 2x1 matrix and returns them with a preview segment.
func pixelPair(t *testing.T, m *Merger, matrix *IDMatrix, v1, v2 []float64) (a, b, preview *Segment) {
	t.Helper()
	size := m.FeatureSize(len(v1))
	mk := func(id uint32, x int, v []float64) *Segment {
		s := &Segment{ID: id, Size: 1, XStart: x, XBound: x + 1, YStart: 0, YBound: 1, Features: make([]float64, size)}
		m.InitFeatures(s, v)
		matrix.Set(x, 0, id)
		return s
	}
	a = mk(1, 0, v1)
	b = mk(2, 1, v2)
	preview = &Segment{Features: make([]float64, size)}
	return a, b, preview
}

func newTestMerger(t *testing.T, p Parameters, bands int) (*Merger, *IDMatrix) {
	t.Helper()
	p, err := p.Validate(bands)
	require.NoError(t, err)
	matrix, err := NewIDMatrix(2, 1)
	require.NoError(t, err)
	return NewMerger(p, bands, matrix), matrix
}

func TestMeanMerger(t *testing.T) {
	p := DefaultParameters()
	p.Strategy = MeanMerger
	m, matrix := newTestMerger(t, p, 2)
	assert.Equal(t, 2, m.FeatureSize(2))

	a, b, preview := pixelPair(t, m, matrix, []float64{0.2, 0.4}, []float64{0.2, 0.4})
	assert.Zero(t, m.Dissimilarity(a, b, preview))

	a, b, preview = pixelPair(t, m, matrix, []float64{0, 0}, []float64{1, 1})
	a.Size = 3
	d := m.Dissimilarity(a, b, preview)
	assert.InDelta(t, math.Sqrt2, d, 1e-12)
	assert.InDelta(t, m.Dissimilarity(b, a, &Segment{Features: make([]float64, 2)}), d, 1e-12)

	assert.Equal(t, 4, preview.Size)
	assert.InDeltaSlice(t, []float64{0.25, 0.25}, preview.Features, 1e-12)
	assert.Equal(t, 0, preview.XStart)
	assert.Equal(t, 2, preview.XBound)

	m.MergeFeatures(a, b, preview)
	assert.Equal(t, 4, a.Size)
	assert.InDeltaSlice(t, []float64{0.25, 0.25}, a.Features, 1e-12)
}

func TestBaatzInitFeatures(t *testing.T) {
	m, _ := newTestMerger(t, DefaultParameters(), 2)
	assert.Equal(t, 9, m.FeatureSize(2))

	s := &Segment{Features: make([]float64, 9)}
	m.InitFeatures(s, []float64{0.5, 0.25})
	assert.Equal(t, []float64{4, 4, 1, 0.5, 0.25, 0.25, 0.0625, 0, 0}, s.Features)
}

func TestBaatzSpectralOnly(t *testing.T) {
	p := DefaultParameters()
	p.ColorWeight = 1
	m, matrix := newTestMerger(t, p, 1)

	a, b, preview := pixelPair(t, m, matrix, []float64{0.3}, []float64{0.3})
	assert.Zero(t, m.Dissimilarity(a, b, preview))

	a, b, preview = pixelPair(t, m, matrix, []float64{0}, []float64{1})
	d := m.Dissimilarity(a, b, preview)
	// stddev of {0,1} is 0.5 and both parts have stddev 0
	assert.InDelta(t, 0.5, d, 1e-12)
	assert.InDelta(t, 0.5, preview.Features[m.stdIdx(0)], 1e-12)
	assert.InDelta(t, 1.0, preview.Features[m.sumIdx(0)], 1e-12)
	assert.InDelta(t, 1.0, preview.Features[m.squareIdx(0)], 1e-12)
}

func TestBaatzShapeTerm(t *testing.T) {
	p := DefaultParameters()
	p.ColorWeight = 0
	p.CompactnessWeight = 1
	m, matrix := newTestMerger(t, p, 1)

	a, b, preview := pixelPair(t, m, matrix, []float64{0.3}, []float64{0.9})
	d := m.Dissimilarity(a, b, preview)

	// two pixels share one edge: perimeter 6, compactness 6/sqrt(2)
	assert.InDelta(t, 6.0, preview.Features[baatzEdgeLength], 1e-12)
	assert.InDelta(t, 6/math.Sqrt2, preview.Features[baatzCompactness], 1e-12)
	assert.InDelta(t, 1.0, preview.Features[baatzSmoothness], 1e-12)
	assert.InDelta(t, 6/math.Sqrt2-4, d, 1e-12)
}

func TestBaatzUpdateNormalizers(t *testing.T) {
	m, _ := newTestMerger(t, DefaultParameters(), 1)
	arena, err := NewArena(2, m.FeatureSize(1), 0)
	require.NoError(t, err)

	h0, _ := arena.Next()
	h1, _ := arena.Next()
	arena.Get(h0).Next = h1
	arena.Get(h1).Prev = h0

	f0, f1 := arena.Get(h0).Features, arena.Get(h1).Features
	f0[baatzCompactness], f1[baatzCompactness] = 2, 6
	f0[baatzSmoothness], f1[baatzSmoothness] = 3, 3
	f0[m.stdIdx(0)], f1[m.stdIdx(0)] = 0, 0

	m.Update(arena, h0)

	assert.InDelta(t, -2.0, m.compactOffset, 1e-12)
	assert.InDelta(t, 0.25, m.compactGain, 1e-12)
	assert.Zero(t, m.smoothOffset)
	assert.InDelta(t, 1.0/3, m.smoothGain, 1e-12)
	assert.Zero(t, m.stdOffset)
	assert.Equal(t, 1.0, m.stdGain)
}

package segmenter

import (
	"math"
	"math/rand"
	"testing"
)

// gridRaster is a minimal in-memory raster usable as input and output.
type gridRaster struct {
	w, h, bands int
	data        []float64
}

func newGrid(w, h, bands int) *gridRaster {
	return &gridRaster{w: w, h: h, bands: bands, data: make([]float64, w*h*bands)}
}

func (g *gridRaster) Value(col, row, band int) float64 {
	return g.data[(band*g.h+row)*g.w+col]
}

func (g *gridRaster) SetValue(col, row int, v float64, band int) {
	g.data[(band*g.h+row)*g.w+col] = v
}

func (g *gridRaster) fill(band int, v float64) {
	for row := 0; row < g.h; row++ {
		for col := 0; col < g.w; col++ {
			g.SetValue(col, row, v, band)
		}
	}
}

func (g *gridRaster) label(col, row int) uint32 {
	return uint32(g.Value(col, row, 0))
}

// randomGrid fills every band with reproducible noise in [0,100).
func randomGrid(w, h, bands int, seed int64) *gridRaster {
	r := rand.New(rand.NewSource(seed))
	g := newGrid(w, h, bands)
	for i := range g.data {
		g.data[i] = math.Floor(r.Float64() * 100)
	}
	return g
}

// bandInfoFor selects every band with the given no-data value and the actual
// value range of valid pixels.
func bandInfoFor(t *testing.T, g *gridRaster, noData float64) BandInfo {
	t.Helper()
	info := BandInfo{}
	for b := 0; b < g.bands; b++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for row := 0; row < g.h; row++ {
			for col := 0; col < g.w; col++ {
				v := g.Value(col, row, b)
				if v == noData {
					continue
				}
				lo, hi = math.Min(lo, v), math.Max(hi, v)
			}
		}
		if lo > hi {
			lo, hi = 0, 0
		}
		info.Bands = append(info.Bands, b)
		info.NoData = append(info.NoData, noData)
		info.Min = append(info.Min, lo)
		info.Max = append(info.Max, hi)
	}
	return info
}

// labelSizes counts pixels per label of a single-band label grid, skipping 0.
func labelSizes(g *gridRaster) map[uint32]int {
	sizes := map[uint32]int{}
	for row := 0; row < g.h; row++ {
		for col := 0; col < g.w; col++ {
			if id := g.label(col, row); id != 0 {
				sizes[id]++
			}
		}
	}
	return sizes
}

// fragmentedLabels returns labels whose pixels form more than one
// 4-connected component.
func fragmentedLabels(g *gridRaster) []uint32 {
	seen := make([]bool, g.w*g.h)
	components := map[uint32]int{}
	for row := 0; row < g.h; row++ {
		for col := 0; col < g.w; col++ {
			id := g.label(col, row)
			if id == 0 || seen[row*g.w+col] {
				continue
			}
			components[id]++
			stack := [][2]int{{col, row}}
			seen[row*g.w+col] = true
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				for _, d := range [][2]int{{0, -1}, {-1, 0}, {1, 0}, {0, 1}} {
					x, y := p[0]+d[0], p[1]+d[1]
					if x < 0 || y < 0 || x >= g.w || y >= g.h || seen[y*g.w+x] || g.label(x, y) != id {
						continue
					}
					seen[y*g.w+x] = true
					stack = append(stack, [2]int{x, y})
				}
			}
		}
	}
	var out []uint32
	for id, n := range components {
		if n > 1 {
			out = append(out, id)
		}
	}
	return out
}

type stubProgress struct {
	pulses      int
	cancelAfter int
}

func (p *stubProgress) Pulse() { p.pulses++ }

func (p *stubProgress) Canceled() bool {
	return p.cancelAfter > 0 && p.pulses >= p.cancelAfter
}

package segmenter

import (
	"fmt"
	"math"
)

// InputRaster reads pixel values. Implementations must return the band's
// no-data value consistently for missing pixels.
type InputRaster interface {
	Value(col, row, band int) float64
}

// OutputRaster receives segment IDs.
type OutputRaster interface {
	SetValue(col, row int, value float64, band int)
}

// Progress is polled between whole merge passes.
type Progress interface {
	// Pulse signals that one more pass completed.
	Pulse()
	// Canceled reports whether the caller wants the run to stop.
	Canceled() bool
}

// BandInfo selects the input bands and describes their value ranges.
//
// NoData, Min and Max are indexed like Bands. Min and Max are used only to
// normalize pixel values into [0,1].
type BandInfo struct {
	Bands  []int
	NoData []float64
	Min    []float64
	Max    []float64
}

// Validate checks that the per-band slices line up.
func (b BandInfo) Validate() error {
	n := len(b.Bands)
	if n == 0 {
		return &ConfigError{Field: "bands", Reason: "at least one band is required"}
	}
	if len(b.NoData) != n {
		return &ConfigError{Field: "noData", Reason: fmt.Sprintf("expected %d values, got %d", n, len(b.NoData))}
	}
	if len(b.Min) != n || len(b.Max) != n {
		return &ConfigError{Field: "min/max", Reason: fmt.Sprintf("expected %d values each, got %d and %d", n, len(b.Min), len(b.Max))}
	}
	for i := range b.Bands {
		if b.Bands[i] < 0 {
			return &ConfigError{Field: "bands", Reason: fmt.Sprintf("negative band index %d", b.Bands[i])}
		}
		if math.IsNaN(b.Min[i]) || math.IsNaN(b.Max[i]) || b.Min[i] > b.Max[i] {
			return &ConfigError{Field: "min/max", Reason: fmt.Sprintf("band %d has range [%g, %g]", b.Bands[i], b.Min[i], b.Max[i])}
		}
	}
	return nil
}

// IsNoData reports whether band value v at position b of Bands is the
// no-data value. A NaN no-data value matches NaN samples.
func (b BandInfo) IsNoData(idx int, v float64) bool {
	nd := b.NoData[idx]
	return v == nd || (math.IsNaN(nd) && math.IsNaN(v))
}

// Valid reports whether no selected band of pixel (x,y) holds no-data.
func (b BandInfo) Valid(in InputRaster, x, y int) bool {
	for i, band := range b.Bands {
		if b.IsNoData(i, in.Value(x, y, band)) {
			return false
		}
	}
	return true
}

// gains returns the per-band normalization factors 1/(max-min), 0 for flat bands.
func (b BandInfo) gains() []float64 {
	g := make([]float64, len(b.Bands))
	for i := range g {
		if r := b.Max[i] - b.Min[i]; r > 0 {
			g[i] = 1 / r
		}
	}
	return g
}

// Tile is the raster window one engine segments.
//
// The cut-off slices restrict which tile pixels take part. TopCutOff and
// BottomCutOff are indexed by tile column and hold the inclusive row range of
// that column. LeftCutOff and RightCutOff are indexed by tile row and hold the
// inclusive column range of that row. An empty slice means no restriction.
// All values are relative to the tile origin.
type Tile struct {
	StartX, StartY int
	Width, Height  int

	TopCutOff, BottomCutOff []int
	LeftCutOff, RightCutOff []int
}

// NewTile returns an unrestricted tile.
func NewTile(x, y, width, height int) Tile {
	return Tile{StartX: x, StartY: y, Width: width, Height: height}
}

// Pixels is the tile area.
func (t Tile) Pixels() int { return t.Width * t.Height }

// Contains reports whether the tile-relative pixel (col,row) lies inside the
// cut-off profile.
func (t Tile) Contains(col, row int) bool {
	if col < 0 || row < 0 || col >= t.Width || row >= t.Height {
		return false
	}
	if len(t.TopCutOff) > 0 && (row < t.TopCutOff[col] || row > t.BottomCutOff[col]) {
		return false
	}
	if len(t.LeftCutOff) > 0 && (col < t.LeftCutOff[row] || col > t.RightCutOff[row]) {
		return false
	}
	return true
}

// Validate checks dimensions and cut-off slice lengths.
func (t Tile) Validate() error {
	if t.Width < 1 || t.Height < 1 || t.StartX < 0 || t.StartY < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTile, t)
	}
	if len(t.TopCutOff) != len(t.BottomCutOff) || (len(t.TopCutOff) != 0 && len(t.TopCutOff) != t.Width) {
		return fmt.Errorf("%w: top/bottom cut-offs must have %d entries", ErrInvalidTile, t.Width)
	}
	if len(t.LeftCutOff) != len(t.RightCutOff) || (len(t.LeftCutOff) != 0 && len(t.LeftCutOff) != t.Height) {
		return fmt.Errorf("%w: left/right cut-offs must have %d entries", ErrInvalidTile, t.Height)
	}
	return nil
}

func (t Tile) String() string {
	return fmt.Sprintf("[%d,%d %dx%d]", t.StartX, t.StartY, t.Width, t.Height)
}

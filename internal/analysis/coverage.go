package analysis

import (
	"fmt"

	"github.com/ironsheep/segmenter-mcp/internal/raster"
	"github.com/ironsheep/segmenter-mcp/internal/segmenter"
)

// Pixel is a raster position.
type Pixel struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// CoverageResult compares a label raster with the input it was produced from.
type CoverageResult struct {
	Covered         bool `json:"covered"`
	ValidPixels     int  `json:"valid_pixels"`
	UnlabelledValid int  `json:"unlabelled_valid"`
	LabelledNoData  int  `json:"labelled_no_data"`
	// FirstGap is the first pixel, in row-major order, that breaks coverage.
	FirstGap *Pixel `json:"first_gap,omitempty"`
}

// CheckCoverage verifies that every valid input pixel carries a label and
// every no-data pixel carries none.
func CheckCoverage(labels *raster.Raster, band int, in segmenter.InputRaster, info segmenter.BandInfo) (*CoverageResult, error) {
	if err := info.Validate(); err != nil {
		return nil, fmt.Errorf("invalid band info: %w", err)
	}

	res := &CoverageResult{}
	for y := 0; y < labels.Height(); y++ {
		for x := 0; x < labels.Width(); x++ {
			valid := info.Valid(in, x, y)
			labelled := labels.LabelAt(x, y, band) != 0
			switch {
			case valid && labelled:
				res.ValidPixels++
				continue
			case valid:
				res.ValidPixels++
				res.UnlabelledValid++
			case labelled:
				res.LabelledNoData++
			default:
				continue
			}
			if res.FirstGap == nil {
				res.FirstGap = &Pixel{X: x, Y: y}
			}
		}
	}
	res.Covered = res.FirstGap == nil
	return res, nil
}

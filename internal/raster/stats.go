package raster

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/ironsheep/segmenter-mcp/internal/segmenter"
)

// BandRange is the value range of the valid samples of one band.
type BandRange struct {
	Band  int     `json:"band"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Valid int     `json:"valid"`
}

// BandStats computes the range of each band, skipping samples equal to the
// band's no-data value. A band without valid samples reports [0,0].
func BandStats(r *Raster, noData []float64) ([]BandRange, error) {
	if len(noData) != r.Bands() {
		return nil, fmt.Errorf("expected %d no-data values, got %d", r.Bands(), len(noData))
	}

	out := make([]BandRange, r.Bands())
	valid := make([]float64, 0, r.Width()*r.Height())
	for b := 0; b < r.Bands(); b++ {
		valid = valid[:0]
		nd := noData[b]
		for _, v := range r.Band(b) {
			if v == nd || math.IsNaN(v) {
				continue
			}
			valid = append(valid, v)
		}

		out[b] = BandRange{Band: b, Valid: len(valid)}
		if len(valid) > 0 {
			out[b].Min = floats.Min(valid)
			out[b].Max = floats.Max(valid)
		}
	}
	return out, nil
}

// BandInfoFor selects every band of r for segmentation with a shared no-data
// value and the band ranges measured by BandStats.
func BandInfoFor(r *Raster, noData float64) (segmenter.BandInfo, error) {
	nd := make([]float64, r.Bands())
	for i := range nd {
		nd[i] = noData
	}
	ranges, err := BandStats(r, nd)
	if err != nil {
		return segmenter.BandInfo{}, err
	}

	info := segmenter.BandInfo{NoData: nd}
	for _, br := range ranges {
		info.Bands = append(info.Bands, br.Band)
		info.Min = append(info.Min, br.Min)
		info.Max = append(info.Max, br.Max)
	}
	return info, nil
}

package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/segmenter-mcp/internal/raster"
)

// Summary describes the segment size distribution of a label raster.
type Summary struct {
	Segments         int     `json:"segments"`
	LabelledPixels   int     `json:"labelled_pixels"`
	UnlabelledPixels int     `json:"unlabelled_pixels"`
	MaxLabel         uint32  `json:"max_label"`
	MinSize          int     `json:"min_size"`
	MaxSize          int     `json:"max_size"`
	MeanSize         float64 `json:"mean_size"`
	StdDevSize       float64 `json:"stddev_size"`
	MedianSize       float64 `json:"median_size"`
}

// Sizes counts the pixels of every label in band. Label 0 is skipped.
func Sizes(labels *raster.Raster, band int) map[uint32]int {
	sizes := make(map[uint32]int)
	for y := 0; y < labels.Height(); y++ {
		for x := 0; x < labels.Width(); x++ {
			if id := labels.LabelAt(x, y, band); id != 0 {
				sizes[id]++
			}
		}
	}
	return sizes
}

// Summarize computes segment count and size statistics for band of labels.
func Summarize(labels *raster.Raster, band int) *Summary {
	sizes := Sizes(labels, band)
	s := &Summary{Segments: len(sizes), MaxLabel: labels.MaxLabel(band)}

	values := make([]float64, 0, len(sizes))
	for _, n := range sizes {
		values = append(values, float64(n))
		s.LabelledPixels += n
	}
	s.UnlabelledPixels = labels.Width()*labels.Height() - s.LabelledPixels
	if len(values) == 0 {
		return s
	}

	sort.Float64s(values)
	s.MinSize = int(floats.Min(values))
	s.MaxSize = int(floats.Max(values))
	s.MeanSize = round2(stat.Mean(values, nil))
	if len(values) > 1 {
		s.StdDevSize = round2(stat.StdDev(values, nil))
	}
	s.MedianSize = stat.Quantile(0.5, stat.Empirical, values, nil)
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

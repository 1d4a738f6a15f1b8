package analysis

import (
	"fmt"
	"sort"

	"github.com/ironsheep/segmenter-mcp/internal/raster"
	"github.com/ironsheep/segmenter-mcp/internal/segmenter"
)

// Bounds is an inclusive pixel bounding box.
type Bounds struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// SegmentRow describes one segment of a label raster.
type SegmentRow struct {
	ID     uint32    `json:"id"`
	Size   int       `json:"size"`
	Bounds Bounds    `json:"bounds"`
	Mean   []float64 `json:"mean,omitempty"`
}

// SegmentTable lists the segments of band in labels, largest first, ties
// broken by ID. When in is not nil the per-band mean of the selected bands of
// info is filled in; no-data samples are skipped. A positive limit truncates
// the table.
func SegmentTable(labels *raster.Raster, band int, in segmenter.InputRaster, info segmenter.BandInfo, limit int) ([]SegmentRow, error) {
	if in != nil {
		if err := info.Validate(); err != nil {
			return nil, fmt.Errorf("invalid band info: %w", err)
		}
	}

	type acc struct {
		row   SegmentRow
		sums  []float64
		count []int
	}
	byID := make(map[uint32]*acc)
	for y := 0; y < labels.Height(); y++ {
		for x := 0; x < labels.Width(); x++ {
			id := labels.LabelAt(x, y, band)
			if id == 0 {
				continue
			}
			a, ok := byID[id]
			if !ok {
				a = &acc{row: SegmentRow{ID: id, Bounds: Bounds{X1: x, Y1: y, X2: x, Y2: y}}}
				if in != nil {
					a.sums = make([]float64, len(info.Bands))
					a.count = make([]int, len(info.Bands))
				}
				byID[id] = a
			}
			a.row.Size++
			b := &a.row.Bounds
			b.X1, b.Y1 = min(b.X1, x), min(b.Y1, y)
			b.X2, b.Y2 = max(b.X2, x), max(b.Y2, y)
			if in != nil {
				for i, bi := range info.Bands {
					v := in.Value(x, y, bi)
					if info.IsNoData(i, v) {
						continue
					}
					a.sums[i] += v
					a.count[i]++
				}
			}
		}
	}

	rows := make([]SegmentRow, 0, len(byID))
	for _, a := range byID {
		if in != nil {
			a.row.Mean = make([]float64, len(a.sums))
			for i := range a.sums {
				if a.count[i] > 0 {
					a.row.Mean[i] = round2(a.sums[i] / float64(a.count[i]))
				}
			}
		}
		rows = append(rows, a.row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Size != rows[j].Size {
			return rows[i].Size > rows[j].Size
		}
		return rows[i].ID < rows[j].ID
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

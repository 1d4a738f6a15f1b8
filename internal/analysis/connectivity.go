package analysis

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/ironsheep/segmenter-mcp/internal/raster"
)

// ConnectivityResult reports labels that cover more than one 4-connected
// region.
type ConnectivityResult struct {
	Connected  bool     `json:"connected"`
	Regions    int      `json:"regions"`
	Fragmented []uint32 `json:"fragmented,omitempty"`
}

type point struct{ x, y int }

// CheckConnectivity flood-fills every label in band and collects the labels
// found in more than one region.
func CheckConnectivity(labels *raster.Raster, band int) *ConnectivityResult {
	w, h := labels.Width(), labels.Height()
	visited := make([]bool, w*h)
	seen := roaring.New()
	fragmented := roaring.New()
	res := &ConnectivityResult{}

	var stack []point
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			id := labels.LabelAt(x, y, band)
			if id == 0 || visited[y*w+x] {
				continue
			}
			res.Regions++
			if !seen.CheckedAdd(id) {
				fragmented.Add(id)
			}
			stack = floodFill(labels, band, visited, x, y, id, stack[:0])
		}
	}

	res.Connected = fragmented.IsEmpty()
	if !res.Connected {
		res.Fragmented = fragmented.ToArray()
	}
	return res
}

// floodFill marks the 4-connected region of id that contains (startX,
// startY). The stack is returned for reuse.
func floodFill(labels *raster.Raster, band int, visited []bool, startX, startY int, id uint32, stack []point) []point {
	w, h := labels.Width(), labels.Height()
	stack = append(stack, point{startX, startY})
	visited[startY*w+startX] = true

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, n := range [4]point{{p.x + 1, p.y}, {p.x - 1, p.y}, {p.x, p.y + 1}, {p.x, p.y - 1}} {
			if n.x < 0 || n.x >= w || n.y < 0 || n.y >= h {
				continue
			}
			if visited[n.y*w+n.x] || labels.LabelAt(n.x, n.y, band) != id {
				continue
			}
			visited[n.y*w+n.x] = true
			stack = append(stack, n)
		}
	}
	return stack
}

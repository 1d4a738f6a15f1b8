package segmenter

import "fmt"

// IDMatrix holds, for each pixel of a tile, the ID of the owning segment.
// A zero cell belongs to no segment.
type IDMatrix struct {
	width, height int
	cells         []uint32
}

// NewIDMatrix allocates a zeroed width x height matrix.
func NewIDMatrix(width, height int) (*IDMatrix, error) {
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("%w: id matrix %dx%d", ErrInvalidTile, width, height)
	}
	return &IDMatrix{
		width:  width,
		height: height,
		cells:  make([]uint32, width*height),
	}, nil
}

func (m *IDMatrix) Width() int  { return m.width }
func (m *IDMatrix) Height() int { return m.height }

func (m *IDMatrix) At(x, y int) uint32 {
	return m.cells[y*m.width+x]
}

func (m *IDMatrix) Set(x, y int, id uint32) {
	m.cells[y*m.width+x] = id
}

// Row returns row y backed by the matrix storage.
func (m *IDMatrix) Row(y int) []uint32 {
	return m.cells[y*m.width : (y+1)*m.width]
}

// Replace rewrites cells equal to from as to, inside the half-open box
// [x0,x1) x [y0,y1).
func (m *IDMatrix) Replace(x0, y0, x1, y1 int, from, to uint32) {
	for y := y0; y < y1; y++ {
		row := m.Row(y)
		for x := x0; x < x1; x++ {
			if row[x] == from {
				row[x] = to
			}
		}
	}
}

// Count reports how many cells hold id.
func (m *IDMatrix) Count(id uint32) int {
	n := 0
	for _, c := range m.cells {
		if c == id {
			n++
		}
	}
	return n
}

// TouchingEdges counts the unit edges shared by segments id1 and id2 inside
// the half-open box [x0,x1) x [y0,y1), returning the count seen from each side.
// For a box covering both segments the two counts are equal.
func (m *IDMatrix) TouchingEdges(x0, y0, x1, y1 int, id1, id2 uint32) (edges1, edges2 int) {
	lastX, lastY := m.width-1, m.height-1
	for y := y0; y < y1; y++ {
		row := m.Row(y)
		for x := x0; x < x1; x++ {
			var other uint32
			switch row[x] {
			case id1:
				other = id2
			case id2:
				other = id1
			default:
				continue
			}
			n := 0
			if y > 0 && m.At(x, y-1) == other {
				n++
			}
			if x > 0 && row[x-1] == other {
				n++
			}
			if y < lastY && m.At(x, y+1) == other {
				n++
			}
			if x < lastX && row[x+1] == other {
				n++
			}
			if row[x] == id1 {
				edges1 += n
			} else {
				edges2 += n
			}
		}
	}
	return edges1, edges2
}

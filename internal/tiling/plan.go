package tiling

import (
	"fmt"
	"math"

	"github.com/ironsheep/segmenter-mcp/internal/segmenter"
)

// Block is one cell of the block grid.
type Block struct {
	Row, Col int
	// Tile is the expanded block window including overlap, with cut-offs
	// filled in by Layout.ApplyProfiles.
	Tile segmenter.Tile
}

// Layout is the block grid planned for one raster.
type Layout struct {
	Width, Height int
	// BlockWidth and BlockHeight are the block size before overlap.
	BlockWidth, BlockHeight int
	Overlap                 int
	Rows, Cols              int
	Blocks                  [][]Block

	// HProfiles holds one horizontal cut line per boundary between block
	// rows, indexed by raster column. VProfiles holds one vertical cut line
	// per boundary between block columns, indexed by raster row.
	HProfiles [][]int
	VProfiles [][]int
}

// Count returns the number of blocks.
func (l *Layout) Count() int { return l.Rows * l.Cols }

// Each calls fn for every block in row-major order.
func (l *Layout) Each(fn func(b *Block)) {
	for r := range l.Blocks {
		for c := range l.Blocks[r] {
			fn(&l.Blocks[r][c])
		}
	}
}

// Plan divides a width x height raster into blocks.
//
// With a zero MaxBlockPixels the raster is a single block. Otherwise the
// raster is split into the fewest equal blocks whose expanded size, overlap
// included, fits in MaxBlockPixels. Overlap is only used when block merging
// is enabled.
func Plan(width, height int, opts Options) (*Layout, error) {
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("%w: raster is %dx%d", segmenter.ErrInvalidTile, width, height)
	}

	l := &Layout{Width: width, Height: height}
	pixels := width * height
	if opts.MaxBlockPixels <= 0 || pixels <= opts.MaxBlockPixels {
		l.BlockWidth, l.BlockHeight, l.Rows, l.Cols = width, height, 1, 1
		l.Blocks = [][]Block{{{Tile: segmenter.NewTile(0, 0, width, height)}}}
		return l, nil
	}

	overlap := 0
	if opts.EnableBlockMerging {
		overlap = max(opts.BlockOverlap, MinProfileOverlap)
	}

	bw, bh, err := bestBlockSize(width, height, overlap, opts.MaxBlockPixels)
	if err != nil {
		return nil, err
	}

	l.BlockWidth, l.BlockHeight, l.Overlap = bw, bh, overlap
	l.Rows = ceilDiv(height, bh)
	l.Cols = ceilDiv(width, bw)
	l.Blocks = make([][]Block, l.Rows)
	for r := 0; r < l.Rows; r++ {
		l.Blocks[r] = make([]Block, l.Cols)
		y0, y1 := expand(r, bh, overlap, height)
		for c := 0; c < l.Cols; c++ {
			x0, x1 := expand(c, bw, overlap, width)
			l.Blocks[r][c] = Block{Row: r, Col: c, Tile: segmenter.NewTile(x0, y0, x1-x0, y1-y0)}
		}
	}
	return l, nil
}

// bestBlockSize grows the scale factor until the expanded block fits.
// Blocks must stay larger than the overlap, otherwise neighboring cut lines
// could cross.
func bestBlockSize(width, height, overlap, maxPixels int) (int, int, error) {
	maxScale := max(width, height)
	for scale := 1; scale <= maxScale; scale++ {
		bh := ceilDiv(height, scale)
		bw := ceilDiv(width, scale)
		if (height > 1 && bh <= overlap) || (width > 1 && bw <= overlap) {
			break
		}
		if (bh+2*overlap)*(bw+2*overlap) <= maxPixels {
			return bw, bh, nil
		}
	}
	return 0, 0, &segmenter.ConfigError{
		Field:  "max_block_pixels",
		Reason: fmt.Sprintf("%d pixels cannot hold a block with %d pixels of overlap", maxPixels, overlap),
	}
}

// expand returns the [start, bound) range of block idx grown by overlap on
// both sides and clipped to the raster.
func expand(idx, size, overlap, limit int) (int, int) {
	start := max(0, idx*size-overlap)
	bound := min(limit, (idx+1)*size+overlap)
	return start, bound
}

// ApplyProfiles traces the cut lines inside the overlap areas and sets the
// cut-offs of every block so that each raster pixel belongs to exactly one
// block. Without overlap the cut lines are the straight block borders.
func (l *Layout) ApplyProfiles(in segmenter.InputRaster, bands []int) {
	half := l.Overlap / 2

	l.HProfiles = make([][]int, 0, max(0, l.Rows-1))
	for r := 1; r < l.Rows; r++ {
		center := r * l.BlockHeight
		p, ok := []int(nil), false
		if l.Overlap > 0 {
			p, ok = HorizontalProfile(in, bands, l.Width, l.Height, center, half)
		}
		if !ok {
			p = StraightProfile(l.Width, center)
		}
		l.HProfiles = append(l.HProfiles, p)
	}

	l.VProfiles = make([][]int, 0, max(0, l.Cols-1))
	for c := 1; c < l.Cols; c++ {
		center := c * l.BlockWidth
		p, ok := []int(nil), false
		if l.Overlap > 0 {
			p, ok = VerticalProfile(in, bands, l.Width, l.Height, center, half)
		}
		if !ok {
			p = StraightProfile(l.Height, center)
		}
		l.VProfiles = append(l.VProfiles, p)
	}

	l.Each(func(b *Block) {
		t := &b.Tile
		t.TopCutOff, t.BottomCutOff, t.LeftCutOff, t.RightCutOff = nil, nil, nil, nil
		if l.Rows > 1 {
			t.TopCutOff = make([]int, t.Width)
			t.BottomCutOff = make([]int, t.Width)
			for x := 0; x < t.Width; x++ {
				top, bottom := 0, t.Height-1
				if b.Row > 0 {
					top = clamp(l.HProfiles[b.Row-1][t.StartX+x]-t.StartY, 0, t.Height)
				}
				if b.Row < l.Rows-1 {
					bottom = clamp(l.HProfiles[b.Row][t.StartX+x]-1-t.StartY, -1, t.Height-1)
				}
				t.TopCutOff[x], t.BottomCutOff[x] = top, bottom
			}
		}
		if l.Cols > 1 {
			t.LeftCutOff = make([]int, t.Height)
			t.RightCutOff = make([]int, t.Height)
			for y := 0; y < t.Height; y++ {
				left, right := 0, t.Width-1
				if b.Col > 0 {
					left = clamp(l.VProfiles[b.Col-1][t.StartY+y]-t.StartX, 0, t.Width)
				}
				if b.Col < l.Cols-1 {
					right = clamp(l.VProfiles[b.Col][t.StartY+y]-1-t.StartX, -1, t.Width-1)
				}
				t.LeftCutOff[y], t.RightCutOff[y] = left, right
			}
		}
	})
}

// Owner returns the block that owns raster pixel (x, y) after ApplyProfiles.
func (l *Layout) Owner(x, y int) (row, col int) {
	for row = 0; row < l.Rows-1; row++ {
		if y < l.HProfiles[row][x] {
			break
		}
	}
	for col = 0; col < l.Cols-1; col++ {
		if x < l.VProfiles[col][y] {
			break
		}
	}
	return row, col
}

func ceilDiv(a, b int) int {
	return int(math.Ceil(float64(a) / float64(b)))
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

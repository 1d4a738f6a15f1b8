package segmenter

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func meanParams(minSize int, threshold float64) Parameters {
	p := DefaultParameters()
	p.Strategy = MeanMerger
	p.MinSegmentSize = minSize
	p.SimilarityThreshold = threshold
	return p
}

func runTile(t *testing.T, p Parameters, in *gridRaster, info BandInfo, tile Tile, opts ...Option) (Result, *gridRaster, *IDAllocator) {
	t.Helper()
	e, err := NewEngine(p, opts...)
	require.NoError(t, err)

	out := newGrid(in.w, in.h, 1)
	alloc := NewIDAllocator()
	res := e.Run(context.Background(), in, info, tile, out, 0, alloc)
	return res, out, alloc
}

func TestRunUniformTileBecomesOneSegment(t *testing.T) {
	in := newGrid(4, 4, 1)
	in.fill(0, 10)

	res, out, alloc := runTile(t, meanParams(1, 0), in, bandInfoFor(t, in, -1), NewTile(0, 0, 4, 4))
	require.Equal(t, StatusSuccess, res.Status, "%v", res.Err)

	sizes := labelSizes(out)
	require.Len(t, sizes, 1)
	for _, n := range sizes {
		assert.Equal(t, 16, n)
	}
	assert.Equal(t, 1, res.Stats.ActiveSegments)
	assert.Equal(t, 16, res.Stats.Segments)
	assert.Equal(t, 15, res.Stats.Merges)
	assert.Equal(t, 1, alloc.Outstanding())
}

func TestRunOutlierPixel(t *testing.T) {
	in := newGrid(4, 4, 1)
	in.fill(0, 10)
	in.SetValue(2, 2, 9999, 0)
	info := bandInfoFor(t, in, -1)

	t.Run("below size floor kept apart", func(t *testing.T) {
		res, out, _ := runTile(t, meanParams(1, 0.03), in, info, NewTile(0, 0, 4, 4))
		require.Equal(t, StatusSuccess, res.Status)

		sizes := labelSizes(out)
		require.Len(t, sizes, 2)
		assert.Equal(t, 1, sizes[out.label(2, 2)])
		assert.Equal(t, 15, sizes[out.label(0, 0)])
	})

	t.Run("size floor merges outlier", func(t *testing.T) {
		res, out, _ := runTile(t, meanParams(2, 0.03), in, info, NewTile(0, 0, 4, 4))
		require.Equal(t, StatusSuccess, res.Status)

		sizes := labelSizes(out)
		require.Len(t, sizes, 1)
		assert.Equal(t, 16, sizes[out.label(2, 2)])
		assert.Zero(t, res.Stats.Undersized)
	})
}

func TestRunCoverageWithNoDataAndCutOffs(t *testing.T) {
	const noData = -9999.0
	in := randomGrid(6, 5, 2, 3)
	in.SetValue(0, 0, noData, 0)
	in.SetValue(3, 2, noData, 1)
	info := bandInfoFor(t, in, noData)

	tile := NewTile(0, 0, 6, 5)
	tile.TopCutOff = []int{0, 0, 1, 1, 0, 0}
	tile.BottomCutOff = []int{4, 4, 4, 3, 4, 4}
	tile.LeftCutOff = []int{0, 0, 0, 0, 1}
	tile.RightCutOff = []int{5, 5, 5, 5, 5}

	p := DefaultParameters()
	p.MinSegmentSize = 3
	p.SimilarityThreshold = 0.1
	res, out, alloc := runTile(t, p, in, info, tile)
	require.Equal(t, StatusSuccess, res.Status, "%v", res.Err)

	labelled := 0
	for row := 0; row < 5; row++ {
		for col := 0; col < 6; col++ {
			valid := tile.Contains(col, row) && in.Value(col, row, 0) != noData && in.Value(col, row, 1) != noData
			if valid {
				assert.NotZero(t, out.label(col, row), "pixel %d,%d", col, row)
				labelled++
			} else {
				assert.Zero(t, out.label(col, row), "pixel %d,%d", col, row)
			}
		}
	}
	assert.Equal(t, 30-labelled, res.Stats.InvalidPixels)
	assert.Equal(t, len(labelSizes(out)), alloc.Outstanding())
	assert.Empty(t, fragmentedLabels(out))
}

func TestRunTileOffsetWritesIntoRaster(t *testing.T) {
	in := newGrid(6, 6, 1)
	in.fill(0, 5)

	res, out, _ := runTile(t, meanParams(1, 0), in, bandInfoFor(t, in, -1), NewTile(2, 3, 3, 2))
	require.Equal(t, StatusSuccess, res.Status)

	for row := 0; row < 6; row++ {
		for col := 0; col < 6; col++ {
			inside := col >= 2 && col < 5 && row >= 3 && row < 5
			assert.Equal(t, inside, out.label(col, row) != 0, "pixel %d,%d", col, row)
		}
	}
}

func TestRunBaatzConnectedAndAboveSizeFloor(t *testing.T) {
	in := randomGrid(16, 16, 3, 42)

	p := DefaultParameters()
	p.MinSegmentSize = 5
	p.SimilarityThreshold = 0.2
	res, out, _ := runTile(t, p, in, bandInfoFor(t, in, -1), NewTile(0, 0, 16, 16))
	require.Equal(t, StatusSuccess, res.Status, "%v", res.Err)

	sizes := labelSizes(out)
	total := 0
	for id, n := range sizes {
		assert.GreaterOrEqual(t, n, 5, "segment %d", id)
		total += n
	}
	assert.Equal(t, 256, total)
	assert.Empty(t, fragmentedLabels(out))
	assert.Equal(t, len(sizes), res.Stats.ActiveSegments)
}

func TestRunMutualBestFittingAndSameIteration(t *testing.T) {
	in := randomGrid(12, 12, 1, 7)
	info := bandInfoFor(t, in, -1)

	for _, mutual := range []bool{false, true} {
		for _, same := range []bool{false, true} {
			p := meanParams(4, 0.15)
			p.EnableMutualBestFitting = mutual
			p.EnableSameIterationMerges = same

			res, out, _ := runTile(t, p, in, info, NewTile(0, 0, 12, 12))
			require.Equal(t, StatusSuccess, res.Status)
			assert.Empty(t, fragmentedLabels(out), "mutual=%v same=%v", mutual, same)
			for id, n := range labelSizes(out) {
				assert.GreaterOrEqual(t, n, 4, "segment %d mutual=%v same=%v", id, mutual, same)
			}
		}
	}
}

func TestMergeSegmentsIdempotentAfterConvergence(t *testing.T) {
	in := randomGrid(10, 10, 2, 11)
	info := bandInfoFor(t, in, -1)

	for _, kind := range []MergerKind{MeanMerger, BaatzMerger} {
		t.Run(string(kind), func(t *testing.T) {
			p := DefaultParameters()
			p.Strategy = kind
			e, err := NewEngine(p)
			require.NoError(t, err)
			require.NoError(t, e.InitializeSegments(in, info, NewTile(0, 0, 10, 10), NewIDAllocator()))

			first, err := e.MergeSegments(context.Background(), 0.1, 0, false, false)
			require.NoError(t, err)
			assert.Positive(t, first.Merges)

			again, err := e.MergeSegments(context.Background(), 0.1, 0, false, false)
			require.NoError(t, err)
			assert.Zero(t, again.Merges)
			assert.Equal(t, 1, again.Passes)
		})
	}
}

func TestMergeSegmentsThresholdMonotonic(t *testing.T) {
	// quadrants with normalized values 0, 0.1, 0.5 and 1
	in := newGrid(8, 8, 1)
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			v := 0.0
			switch {
			case row < 4 && col >= 4:
				v = 10
			case row >= 4 && col < 4:
				v = 50
			case row >= 4 && col >= 4:
				v = 100
			}
			in.SetValue(col, row, v, 0)
		}
	}
	info := bandInfoFor(t, in, -1)

	merges := func(threshold float64) int {
		e, err := NewEngine(meanParams(1, threshold))
		require.NoError(t, err)
		require.NoError(t, e.InitializeSegments(in, info, NewTile(0, 0, 8, 8), NewIDAllocator()))
		_, err = e.MergeSegments(context.Background(), 0, 0, false, true)
		require.NoError(t, err)
		_, err = e.MergeSegments(context.Background(), threshold, 0, false, false)
		require.NoError(t, err)
		return e.Stats().Merges
	}

	expected := map[float64]int{0: 60, 0.05: 60, 0.15: 61, 0.5: 62, 1: 63}
	prev := 0
	for _, th := range []float64{0, 0.05, 0.15, 0.5, 1} {
		got := merges(th)
		assert.Equal(t, expected[th], got, "threshold %g", th)
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}
}

func TestMergeSegmentsPassStatsSpanMerges(t *testing.T) {
	// quadrants with normalized values 0, 0.1, 0.5 and 1
	in := newGrid(8, 8, 1)
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			v := 0.0
			switch {
			case row < 4 && col >= 4:
				v = 10
			case row >= 4 && col < 4:
				v = 50
			case row >= 4 && col >= 4:
				v = 100
			}
			in.SetValue(col, row, v, 0)
		}
	}

	e, err := NewEngine(meanParams(1, 0.15))
	require.NoError(t, err)
	require.NoError(t, e.InitializeSegments(in, bandInfoFor(t, in, -1), NewTile(0, 0, 8, 8), NewIDAllocator()))
	_, err = e.MergeSegments(context.Background(), 0, 0, false, true)
	require.NoError(t, err)

	// Pairs at 0.4 and above are evaluated but rejected; only the 0.1 merge
	// counts.
	stats, err := e.MergeSegments(context.Background(), 0.15, 0, false, false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Merges)
	assert.InDelta(t, 0.1, stats.MinDissimilarity, 1e-12)
	assert.InDelta(t, 0.1, stats.MaxDissimilarity, 1e-12)

	stats, err = e.MergeSegments(context.Background(), 0.15, 0, false, false)
	require.NoError(t, err)
	assert.Zero(t, stats.Merges)
	assert.Zero(t, stats.MinDissimilarity)
	assert.Zero(t, stats.MaxDissimilarity)
}

func TestSegmentSizesOnlyGrow(t *testing.T) {
	in := randomGrid(10, 8, 1, 5)
	info := bandInfoFor(t, in, -1)

	e, err := NewEngine(meanParams(6, 0.3))
	require.NoError(t, err)
	require.NoError(t, e.InitializeSegments(in, info, NewTile(0, 0, 10, 8), NewIDAllocator()))

	snapshot := func() map[uint32]int {
		m := map[uint32]int{}
		total := 0
		for _, s := range e.ActiveSegments() {
			m[s.ID] = s.Size
			total += s.Size
			assert.Equal(t, s.Size, e.Matrix().Count(s.ID))
		}
		assert.Equal(t, 80, total)
		return m
	}

	prev := snapshot()
	steps := []struct {
		threshold float64
		minSize   int
	}{{0, 0}, {0.1, 0}, {0.3, 0}, {0, 6}}
	for _, st := range steps {
		_, err := e.MergeSegments(context.Background(), st.threshold, st.minSize, false, false)
		require.NoError(t, err)
		cur := snapshot()
		for id, size := range cur {
			if before, ok := prev[id]; ok {
				assert.GreaterOrEqual(t, size, before, "segment %d shrank", id)
			}
		}
		prev = cur
	}
}

func TestRunIsolatedUndersizedSegment(t *testing.T) {
	const noData = 0.0
	in := newGrid(5, 5, 1)
	in.fill(0, noData)
	in.SetValue(2, 2, 7, 0)
	in.SetValue(0, 0, 3, 0)
	in.SetValue(1, 0, 3, 0)

	res, out, _ := runTile(t, meanParams(3, 0.1), in, bandInfoFor(t, in, noData), NewTile(0, 0, 5, 5))
	require.Equal(t, StatusSuccess, res.Status)

	assert.Equal(t, 2, res.Stats.Undersized)
	sizes := labelSizes(out)
	assert.Len(t, sizes, 2)
	assert.Equal(t, 1, sizes[out.label(2, 2)])
	assert.Equal(t, 2, sizes[out.label(0, 0)])
}

func TestRunAllNoData(t *testing.T) {
	in := newGrid(3, 3, 1)
	res, out, alloc := runTile(t, meanParams(1, 0), in, bandInfoFor(t, in, 0), NewTile(0, 0, 3, 3))
	require.Equal(t, StatusSuccess, res.Status)
	assert.Empty(t, labelSizes(out))
	assert.Zero(t, alloc.Outstanding())
	assert.Equal(t, 9, res.Stats.InvalidPixels)
}

func TestRunCanceled(t *testing.T) {
	in := randomGrid(8, 8, 1, 1)
	info := bandInfoFor(t, in, -1)

	t.Run("progress", func(t *testing.T) {
		progress := &stubProgress{cancelAfter: 1}
		res, out, alloc := runTile(t, meanParams(1, 0.1), in, info, NewTile(0, 0, 8, 8), WithProgress(progress))

		assert.Equal(t, StatusCanceled, res.Status)
		assert.ErrorIs(t, res.Err, ErrCanceled)
		assert.Empty(t, labelSizes(out))
		assert.Zero(t, alloc.Outstanding())
	})

	t.Run("context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		e, err := NewEngine(meanParams(1, 0.1))
		require.NoError(t, err)
		out := newGrid(8, 8, 1)
		res := e.Run(ctx, in, info, NewTile(0, 0, 8, 8), out, 0, NewIDAllocator())

		assert.Equal(t, StatusCanceled, res.Status)
		assert.ErrorIs(t, res.Err, context.Canceled)
		assert.Empty(t, labelSizes(out))
	})
}

func TestRunFailures(t *testing.T) {
	in := randomGrid(8, 8, 2, 9)
	info := bandInfoFor(t, in, -1)

	t.Run("memory budget", func(t *testing.T) {
		res, out, alloc := runTile(t, meanParams(1, 0.1), in, info, NewTile(0, 0, 8, 8), WithMemoryBudget(512))

		assert.Equal(t, StatusFailed, res.Status)
		assert.Equal(t, StageInitialize, res.Stage)
		assert.ErrorIs(t, res.Err, ErrMemoryBudget)

		var te *TileError
		require.True(t, errors.As(res.Err, &te))
		assert.Equal(t, StageInitialize, te.Stage)
		assert.Empty(t, labelSizes(out))
		assert.Zero(t, alloc.Outstanding())
	})

	t.Run("band weights", func(t *testing.T) {
		p := meanParams(1, 0.1)
		p.BandsWeights = []float64{1, 1, 1}
		e, err := NewEngine(p)
		require.NoError(t, err)

		res := e.Run(context.Background(), in, info, NewTile(0, 0, 8, 8), newGrid(8, 8, 1), 0, NewIDAllocator())
		assert.Equal(t, StatusFailed, res.Status)
		assert.Equal(t, StageValidate, res.Stage)

		var ce *ConfigError
		assert.True(t, errors.As(res.Err, &ce))
	})

	t.Run("bad tile", func(t *testing.T) {
		tile := NewTile(0, 0, 8, 8)
		tile.TopCutOff = []int{0}
		res, _, _ := runTile(t, meanParams(1, 0.1), in, info, tile)
		assert.Equal(t, StatusFailed, res.Status)
		assert.ErrorIs(t, res.Err, ErrInvalidTile)
	})
}

func TestNewEngineRejectsParameters(t *testing.T) {
	_, err := NewEngine(meanParams(0, 0.1))
	var ce *ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "min_segment_size", ce.Field)

	_, err = NewEngine(meanParams(1, -1))
	assert.Error(t, err)
}

func TestEngineStateOrder(t *testing.T) {
	e, err := NewEngine(meanParams(1, 0))
	require.NoError(t, err)
	assert.Equal(t, StateUninitialized, e.State())

	_, err = e.MergeSegments(context.Background(), 0, 0, false, false)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, e.Flush(newGrid(1, 1, 1), 0), ErrInvalidState)

	in := newGrid(2, 2, 1)
	require.NoError(t, e.InitializeSegments(in, bandInfoFor(t, in, -1), NewTile(0, 0, 2, 2), NewIDAllocator()))
	assert.Equal(t, StateInitialized, e.State())
	assert.ErrorIs(t, e.InitializeSegments(in, bandInfoFor(t, in, -1), NewTile(0, 0, 2, 2), NewIDAllocator()), ErrInvalidState)

	_, err = e.MergeSegments(context.Background(), 0, 0, false, true)
	require.NoError(t, err)
	assert.Equal(t, StateMerging, e.State())

	require.NoError(t, e.Flush(newGrid(2, 2, 1), 0))
	assert.Equal(t, StateFlushed, e.State())
	assert.ErrorIs(t, e.Flush(newGrid(2, 2, 1), 0), ErrInvalidState)
}

func TestInitializeSegmentsLinksFourNeighbors(t *testing.T) {
	in := newGrid(3, 2, 1)
	in.fill(0, 1)
	in.SetValue(1, 1, math.NaN(), 0)

	info := bandInfoFor(t, in, math.NaN())
	info.Min[0], info.Max[0] = 0, 1

	e, err := NewEngine(meanParams(1, 0))
	require.NoError(t, err)
	require.NoError(t, e.InitializeSegments(in, info, NewTile(0, 0, 3, 2), NewIDAllocator()))

	segs := e.ActiveSegments()
	require.Len(t, segs, 5)
	assert.Zero(t, e.Matrix().At(1, 1))

	byID := map[uint32]SegmentInfo{}
	for _, s := range segs {
		byID[s.ID] = s
		assert.Equal(t, 1, s.Size)
		assert.Equal(t, []float64{1}, s.Features)
	}
	assert.Len(t, byID, 5)

	neighbors := func(x, y int) []Handle {
		id := e.Matrix().At(x, y)
		for h := e.head; h != NoHandle; h = e.arena.Get(h).Next {
			if e.arena.Get(h).ID == id {
				return e.arena.Get(h).Neighbors
			}
		}
		return nil
	}
	// corner (0,0): east and south
	assert.Len(t, neighbors(0, 0), 2)
	// top middle loses its south neighbor to no-data
	assert.Len(t, neighbors(1, 0), 2)
	// bottom left: north only, east is no-data
	assert.Len(t, neighbors(0, 1), 1)
}

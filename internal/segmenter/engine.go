package segmenter

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// EngineState is the lifecycle position of an Engine.
type EngineState int

const (
	StateUninitialized EngineState = iota
	StateInitialized
	StateMerging
	StateFlushed
)

func (s EngineState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateMerging:
		return "merging"
	case StateFlushed:
		return "flushed"
	default:
		return fmt.Sprintf("EngineState(%d)", int(s))
	}
}

const scratchSegments = 3

// Engine segments a single tile.
//
// The usual sequence is InitializeSegments, one or more MergeSegments calls and
// Flush. Run performs the whole schedule configured by Parameters.
type Engine struct {
	params Parameters
	opts   options
	log    logrus.FieldLogger

	state EngineState
	tile  Tile
	alloc *IDAllocator

	arena  *Arena
	matrix *IDMatrix
	merger *Merger

	head   Handle
	active int
	// scratch[0] and scratch[1] take forward and backward previews,
	// scratch[2] keeps the preview of the best candidate.
	scratch [scratchSegments]Handle

	counter uint32
	freed   []uint32
	stats   Stats
}

// NewEngine returns an engine for params. Band-independent parameter checks run
// here; band weights are checked again once the band count is known.
func NewEngine(params Parameters, opts ...Option) (*Engine, error) {
	if _, err := params.Validate(max(1, len(params.BandsWeights))); err != nil {
		return nil, err
	}

	o := options{logger: discardLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	return &Engine{
		params:  params,
		opts:    o,
		log:     o.logger,
		head:    NoHandle,
		counter: 1,
	}, nil
}

// State reports where the engine is in its lifecycle.
func (e *Engine) State() EngineState { return e.state }

// Stats reports counters accumulated so far.
func (e *Engine) Stats() Stats {
	s := e.stats
	s.ActiveSegments = e.active
	s.Iterations = e.counter - 1
	return s
}

// Matrix exposes the segment id matrix. It must not be modified.
func (e *Engine) Matrix() *IDMatrix { return e.matrix }

// Tile returns the tile being segmented.
func (e *Engine) Tile() Tile { return e.tile }

// InitializeSegments creates one segment per valid tile pixel and links each
// with its north and west neighbors.
//
// A pixel is valid when it lies inside the tile cut-off profile and none of the
// selected bands holds the band's no-data value. Invalid pixels keep id 0.
// IDs are taken from alloc one tile row at a time; IDs of invalid pixels are
// given back at the end of each row.
func (e *Engine) InitializeSegments(in InputRaster, info BandInfo, tile Tile, alloc *IDAllocator) error {
	if e.state != StateUninitialized {
		return fmt.Errorf("%w: initialize called in state %s", ErrInvalidState, e.state)
	}
	if err := tile.Validate(); err != nil {
		return err
	}
	if err := info.Validate(); err != nil {
		return err
	}
	bands := len(info.Bands)
	params, err := e.params.Validate(bands)
	if err != nil {
		return err
	}
	e.params = params

	matrix, err := NewIDMatrix(tile.Width, tile.Height)
	if err != nil {
		return err
	}
	merger := NewMerger(params, bands, matrix)
	arena, err := NewArena(tile.Pixels()+scratchSegments, merger.FeatureSize(bands), e.opts.budget)
	if err != nil {
		return err
	}
	for i := range e.scratch {
		h, err := arena.Next()
		if err != nil {
			return err
		}
		arena.Get(h).Disable()
		e.scratch[i] = h
	}

	e.tile, e.alloc = tile, alloc
	e.matrix, e.merger, e.arena = matrix, merger, arena

	gains := info.gains()
	values := make([]float64, bands)
	rowIDs := make([]uint32, 0, tile.Width)
	unused := make([]uint32, 0, tile.Width)
	north := make([]Handle, tile.Width)
	west := make([]Handle, tile.Width)
	for i := range north {
		north[i] = NoHandle
	}
	tail := NoHandle

	for row := 0; row < tile.Height; row++ {
		rowIDs = alloc.AllocateInto(rowIDs, tile.Width)
		unused = unused[:0]

		for col := 0; col < tile.Width; col++ {
			if !e.readPixel(in, info, gains, col, row, values) {
				west[col] = NoHandle
				unused = append(unused, rowIDs[col])
				e.stats.InvalidPixels++
				continue
			}

			h, err := arena.Next()
			if err != nil {
				alloc.Free(rowIDs[col:])
				alloc.Free(unused)
				e.releaseActive()
				return &ResourceError{What: "segment arena", Requested: int64(arena.Cap() + 1), Budget: int64(arena.Cap()), cause: err}
			}
			s := arena.Get(h)
			s.ID = rowIDs[col]
			s.Size = 1
			s.XStart, s.XBound = col, col+1
			s.YStart, s.YBound = row, row+1
			merger.InitFeatures(s, values)
			matrix.Set(col, row, s.ID)

			if n := north[col]; n != NoHandle {
				s.AddNeighbor(n)
				arena.Get(n).AddNeighbor(h)
			}
			if col > 0 {
				if w := west[col-1]; w != NoHandle {
					s.AddNeighbor(w)
					arena.Get(w).AddNeighbor(h)
				}
			}

			if tail == NoHandle {
				e.head = h
			} else {
				arena.Get(tail).Next = h
				s.Prev = tail
			}
			tail = h
			west[col] = h
			e.active++
		}

		alloc.Free(unused)
		north, west = west, north
	}

	e.stats.Segments = e.active
	e.state = StateInitialized

	e.log.WithFields(logrus.Fields{
		"tile":     tile.String(),
		"segments": e.active,
		"invalid":  e.stats.InvalidPixels,
	}).Debug("segments initialized")
	return nil
}

// readPixel loads the normalized band values of a tile pixel into values and
// reports whether the pixel takes part in the segmentation.
func (e *Engine) readPixel(in InputRaster, info BandInfo, gains []float64, col, row int, values []float64) bool {
	if !e.tile.Contains(col, row) {
		return false
	}
	x, y := e.tile.StartX+col, e.tile.StartY+row
	for b, band := range info.Bands {
		v := in.Value(x, y, band)
		if info.IsNoData(b, v) {
			return false
		}
		values[b] = (v - info.Min[b]) * gains[b]
	}
	return true
}

// MergeSegments runs full passes over the active list until a pass merges
// nothing or the iteration cap is reached.
//
// With minSize zero, a segment merges into its least dissimilar neighbor when
// that dissimilarity is at most threshold. With minSize positive, threshold is
// ignored and only segments smaller than minSize look for a neighbor. When
// mutual is set, the chosen neighbor must pick the segment back. Unless
// sameIteration is set, a segment merges at most once per pass.
//
// Cancellation through ctx or the Progress option is checked between passes.
// A canceled call returns ErrCanceled with the stats gathered so far.
func (e *Engine) MergeSegments(ctx context.Context, threshold float64, minSize int, mutual, sameIteration bool) (PassStats, error) {
	stats := newPassStats()
	if e.state != StateInitialized && e.state != StateMerging {
		return stats, fmt.Errorf("%w: merge called in state %s", ErrInvalidState, e.state)
	}
	e.state = StateMerging

	sizeLimit := math.MaxInt
	if minSize > 0 {
		threshold = math.Inf(1)
		sizeLimit = minSize
	}

	arena := e.arena
	preview := arena.Get(e.scratch[0])
	backPreview := arena.Get(e.scratch[1])
	best := arena.Get(e.scratch[2])
	maxIter := uint32(e.params.MaxIterations)

	for e.head != NoHandle {
		if err := e.canceled(ctx); err != nil {
			stats.finish()
			stats.ActiveSegments = e.active
			return stats, err
		}

		e.merger.Update(arena, e.head)
		merges := 0

		for h := e.head; h != NoHandle; h = arena.Get(h).Next {
			s := arena.Get(h)
			if !sameIteration && s.MergeIteration >= e.counter {
				continue
			}
			if s.Size >= sizeLimit {
				continue
			}

			target := NoHandle
			minD := math.Inf(1)
			for _, nh := range s.Neighbors {
				d := e.merger.Dissimilarity(s, arena.Get(nh), preview)
				if d <= threshold && d < minD {
					minD = d
					target = nh
					best.CopyFrom(preview)
				}
			}
			if target == NoHandle {
				continue
			}

			n := arena.Get(target)
			if mutual && e.bestNeighbor(target, backPreview) != h {
				continue
			}
			if !sameIteration && n.MergeIteration >= e.counter {
				continue
			}

			stats.observe(minD)
			e.merge(h, target, best)
			merges++
		}

		e.alloc.Free(e.freed)
		e.freed = e.freed[:0]

		stats.Merges += merges
		stats.Passes++
		e.counter++

		if merges == 0 || e.counter >= maxIter {
			break
		}
	}

	stats.finish()
	stats.ActiveSegments = e.active
	e.stats.Merges += stats.Merges
	e.stats.Passes += stats.Passes

	e.log.WithFields(logrus.Fields{
		"tile":      e.tile.String(),
		"threshold": threshold,
		"min_size":  minSize,
		"merges":    stats.Merges,
		"passes":    stats.Passes,
		"segments":  e.active,
	}).Debug("merge passes done")
	return stats, nil
}

// bestNeighbor returns the neighbor of h with the lowest dissimilarity,
// ignoring any threshold.
func (e *Engine) bestNeighbor(h Handle, preview *Segment) Handle {
	s := e.arena.Get(h)
	found := NoHandle
	minD := math.Inf(1)
	for _, nh := range s.Neighbors {
		if d := e.merger.Dissimilarity(s, e.arena.Get(nh), preview); d < minD {
			minD = d
			found = nh
		}
	}
	return found
}

// merge absorbs segment nh into h using the previewed union.
func (e *Engine) merge(h, nh Handle, preview *Segment) {
	arena := e.arena
	s, n := arena.Get(h), arena.Get(nh)

	e.merger.MergeFeatures(s, n, preview)
	s.MergeIteration = e.counter
	s.RemoveNeighbor(nh)

	for _, oh := range n.Neighbors {
		if oh == h {
			continue
		}
		s.AddNeighbor(oh)
		o := arena.Get(oh)
		o.AddNeighbor(h)
		o.RemoveNeighbor(nh)
	}

	e.matrix.Replace(n.XStart, n.YStart, n.XBound, n.YBound, n.ID, s.ID)

	if e.head == nh {
		e.head = n.Next
	}
	if n.Prev != NoHandle {
		arena.Get(n.Prev).Next = n.Next
	}
	if n.Next != NoHandle {
		arena.Get(n.Next).Prev = n.Prev
	}

	e.freed = append(e.freed, n.ID)
	n.Disable()
	e.active--
}

func (e *Engine) canceled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	}
	if p := e.opts.progress; p != nil && p.Canceled() {
		return ErrCanceled
	}
	return nil
}

func (e *Engine) pulse() {
	if p := e.opts.progress; p != nil {
		p.Pulse()
	}
}

// Flush writes every labelled tile pixel into band of out, offset by the tile
// origin. Pixels without a segment are left untouched.
func (e *Engine) Flush(out OutputRaster, band int) error {
	if e.state != StateInitialized && e.state != StateMerging {
		return fmt.Errorf("%w: flush called in state %s", ErrInvalidState, e.state)
	}
	for y := 0; y < e.matrix.Height(); y++ {
		row := e.matrix.Row(y)
		for x, id := range row {
			if id != 0 {
				out.SetValue(e.tile.StartX+x, e.tile.StartY+y, float64(id), band)
			}
		}
	}
	e.state = StateFlushed
	e.arena = nil
	return nil
}

// Abort gives the IDs of all active segments back to the allocator. It is used
// when a tile is dropped without being flushed.
func (e *Engine) Abort() {
	if e.state == StateFlushed || e.arena == nil {
		return
	}
	e.releaseActive()
	e.arena = nil
}

func (e *Engine) releaseActive() {
	ids := make([]uint32, 0, e.active)
	for h := e.head; h != NoHandle; h = e.arena.Get(h).Next {
		ids = append(ids, e.arena.Get(h).ID)
	}
	e.alloc.Free(ids)
	e.head = NoHandle
	e.active = 0
}

// SegmentInfo is a read-only view of an active segment.
type SegmentInfo struct {
	ID       uint32    `json:"id"`
	Size     int       `json:"size"`
	XStart   int       `json:"x_start"`
	YStart   int       `json:"y_start"`
	XBound   int       `json:"x_bound"`
	YBound   int       `json:"y_bound"`
	Features []float64 `json:"features,omitempty"`
}

// ActiveSegments returns the active segments in list order.
func (e *Engine) ActiveSegments() []SegmentInfo {
	if e.arena == nil {
		return nil
	}
	out := make([]SegmentInfo, 0, e.active)
	for h := e.head; h != NoHandle; {
		s := e.arena.Get(h)
		out = append(out, SegmentInfo{
			ID:       s.ID,
			Size:     s.Size,
			XStart:   s.XStart,
			YStart:   s.YStart,
			XBound:   s.XBound,
			YBound:   s.YBound,
			Features: append([]float64(nil), s.Features...),
		})
		h = s.Next
	}
	return out
}

// Run segments tile and writes the labels to band outBand of out.
//
// The schedule is an equal-segment pass at threshold 0, SimilarityIncreaseSteps
// passes ramping the threshold up to SimilarityThreshold and, when
// MinSegmentSize is above 1, a pass merging undersized segments. Nothing is
// written unless the whole schedule completes.
func (e *Engine) Run(ctx context.Context, in InputRaster, info BandInfo, tile Tile, out OutputRaster, outBand int, alloc *IDAllocator) Result {
	res := Result{Tile: tile, Stage: StageValidate}

	fail := func(stage Stage, err error) Result {
		if errors.Is(err, ErrCanceled) {
			e.Abort()
			res.Status, res.Stage, res.Err = StatusCanceled, stage, err
			res.Stats = e.Stats()
			e.log.WithFields(logrus.Fields{"tile": tile.String(), "stage": stage.String()}).Info("tile canceled")
			return res
		}
		e.Abort()
		res.Status, res.Stage = StatusFailed, stage
		res.Err = NewTileError(tile, stage, err)
		res.Stats = e.Stats()
		e.log.WithFields(logrus.Fields{"tile": tile.String(), "stage": stage.String()}).WithError(err).Error("tile failed")
		return res
	}

	if err := e.InitializeSegments(in, info, tile, alloc); err != nil {
		var cfg *ConfigError
		if errors.As(err, &cfg) || errors.Is(err, ErrInvalidTile) {
			return fail(StageValidate, err)
		}
		return fail(StageInitialize, err)
	}

	p := e.params
	if err := e.canceled(ctx); err != nil {
		return fail(StageMerge, err)
	}
	e.pulse()

	if _, err := e.MergeSegments(ctx, 0, 0, false, true); err != nil {
		return fail(StageMerge, err)
	}

	for step := 1; step <= p.SimilarityIncreaseSteps; step++ {
		threshold := float64(step) * p.SimilarityThreshold / float64(p.SimilarityIncreaseSteps)
		if _, err := e.MergeSegments(ctx, threshold, 0, p.EnableMutualBestFitting, p.EnableSameIterationMerges); err != nil {
			return fail(StageMerge, err)
		}
		if err := e.canceled(ctx); err != nil {
			return fail(StageMerge, err)
		}
		e.pulse()
	}

	if p.MinSegmentSize > 1 {
		if _, err := e.MergeSegments(ctx, math.Inf(1), p.MinSegmentSize, false, true); err != nil {
			return fail(StageMerge, err)
		}
		e.reportUndersized(p.MinSegmentSize)
	}

	if err := e.canceled(ctx); err != nil {
		return fail(StageFlush, err)
	}
	e.pulse()

	stats := e.Stats()
	if err := e.Flush(out, outBand); err != nil {
		return fail(StageFlush, err)
	}

	e.log.WithFields(logrus.Fields{
		"tile":       tile.String(),
		"segments":   stats.ActiveSegments,
		"merges":     stats.Merges,
		"iterations": stats.Iterations,
	}).Debug("tile segmented")

	res.Status, res.Stage, res.Stats = StatusSuccess, StageFlush, stats
	return res
}

// reportUndersized logs segments that stayed below minSize because they had
// no neighbor to merge with.
func (e *Engine) reportUndersized(minSize int) {
	for h := e.head; h != NoHandle; {
		s := e.arena.Get(h)
		if s.Size < minSize {
			e.stats.Undersized++
			e.log.WithFields(logrus.Fields{
				"tile":      e.tile.String(),
				"id":        s.ID,
				"size":      s.Size,
				"neighbors": len(s.Neighbors),
			}).Warn("segment left below minimum size")
		}
		h = s.Next
	}
}

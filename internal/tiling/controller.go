package tiling

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/segmenter-mcp/internal/logging"
	"github.com/ironsheep/segmenter-mcp/internal/segmenter"
)

// Options configures block planning and parallel execution.
type Options struct {
	// MaxBlockPixels caps the expanded block area. Zero derives it from
	// MemoryBudget, and a raster is segmented as one block when both are zero.
	MaxBlockPixels int
	// MemoryBudget is the total arena budget in bytes shared by all workers.
	MemoryBudget int64
	// BlockOverlap in pixels. Zero uses the parameters' optimal overlap.
	BlockOverlap int
	// Workers defaults to runtime.NumCPU().
	Workers int
	// EnableBlockMerging overlaps blocks and cuts them along image edges.
	// When false blocks are cut on straight lines without overlap.
	EnableBlockMerging bool
	// ContinueOnError keeps the remaining blocks running after one fails.
	ContinueOnError bool
	Logger          logrus.FieldLogger
	// Progress is pulsed once per finished block. Calls to it never overlap.
	Progress segmenter.Progress
}

// DefaultOptions returns single-block options with block merging enabled.
func DefaultOptions() Options {
	return Options{
		Workers:            runtime.NumCPU(),
		EnableBlockMerging: true,
	}
}

// Report summarizes a tiled run.
type Report struct {
	// Params are the validated parameters every block ran with.
	Params  segmenter.Parameters
	Layout  *Layout
	Blocks  int
	Results []segmenter.Result
	Status  segmenter.Status
	Elapsed time.Duration
	// HighWater is the largest segment ID written.
	HighWater uint32
}

// Stats sums the statistics of every block.
func (r *Report) Stats() segmenter.Stats {
	var s segmenter.Stats
	for _, res := range r.Results {
		s.Segments += res.Stats.Segments
		s.InvalidPixels += res.Stats.InvalidPixels
		s.Merges += res.Stats.Merges
		s.Passes += res.Stats.Passes
		s.Iterations = max(s.Iterations, res.Stats.Iterations)
		s.Undersized += res.Stats.Undersized
		s.ActiveSegments += res.Stats.ActiveSegments
	}
	return s
}

// Failed returns the results of blocks that did not succeed.
func (r *Report) Failed() []segmenter.Result {
	var out []segmenter.Result
	for _, res := range r.Results {
		if res.Status == segmenter.StatusFailed {
			out = append(out, res)
		}
	}
	return out
}

// Controller runs one engine per block.
type Controller struct {
	params segmenter.Parameters
	opts   Options
	log    logrus.FieldLogger
}

// NewController validates params against the band count and fills option
// defaults.
func NewController(params segmenter.Parameters, bands int, opts Options) (*Controller, error) {
	p, err := params.Validate(bands)
	if err != nil {
		return nil, err
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.BlockOverlap <= 0 {
		opts.BlockOverlap = p.OptimalBlockOverlap()
	}
	if opts.MaxBlockPixels <= 0 && opts.MemoryBudget > 0 {
		opts.MaxBlockPixels = maxPixelsFor(p, bands, opts.MemoryBudget/int64(opts.Workers))
		if opts.MaxBlockPixels < 1 {
			return nil, segmenter.NewResourceError("block", p.EstimateMemory(bands, 1),
				opts.MemoryBudget/int64(opts.Workers), segmenter.ErrMemoryBudget)
		}
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Controller{params: p, opts: opts, log: log}, nil
}

// maxPixelsFor returns the largest block area one engine can hold within budget.
func maxPixelsFor(p segmenter.Parameters, bands int, budget int64) int {
	const probe = 1 << 20
	perPixel := p.EstimateMemory(bands, probe) / probe
	if perPixel < 1 {
		perPixel = 1
	}
	n := int(budget / perPixel)
	for n > 0 && p.EstimateMemory(bands, n) > budget {
		n -= max(1, n/100)
	}
	return n
}

// Plan returns the block layout the controller would use for a raster.
func (c *Controller) Plan(in segmenter.InputRaster, width, height int, info segmenter.BandInfo) (*Layout, error) {
	layout, err := Plan(width, height, c.opts)
	if err != nil {
		return nil, err
	}
	layout.ApplyProfiles(in, info.Bands)
	return layout, nil
}

// Run segments a width x height raster block by block and writes labels into
// band outBand of out.
//
// The returned error is nil on success, wraps segmenter.ErrCanceled when the
// run was canceled, and is the first block failure otherwise.
func (c *Controller) Run(ctx context.Context, in segmenter.InputRaster, width, height int, info segmenter.BandInfo, out segmenter.OutputRaster, outBand int) (*Report, error) {
	start := time.Now()
	if err := info.Validate(); err != nil {
		return nil, err
	}

	layout, err := c.Plan(in, width, height, info)
	if err != nil {
		return nil, err
	}

	report := &Report{Params: c.params, Layout: layout, Blocks: layout.Count(), Results: make([]segmenter.Result, layout.Count())}
	c.log.WithFields(logrus.Fields{
		"blocks":  report.Blocks,
		"rows":    layout.Rows,
		"cols":    layout.Cols,
		"overlap": layout.Overlap,
		"workers": c.opts.Workers,
	}).Info("segmentation started")

	alloc := segmenter.NewIDAllocator()
	sink := &lockedOutput{out: out}
	progress := &blockProgress{parent: c.opts.Progress}

	var budget int64
	if c.opts.MemoryBudget > 0 {
		budget = c.opts.MemoryBudget / int64(c.opts.Workers)
	}

	var g *errgroup.Group
	gctx := ctx
	if c.opts.ContinueOnError {
		g = &errgroup.Group{}
	} else {
		g, gctx = errgroup.WithContext(ctx)
	}
	g.SetLimit(c.opts.Workers)

	idx := 0
	layout.Each(func(b *Block) {
		i, tile := idx, b.Tile
		idx++
		g.Go(func() error {
			log := c.log.WithFields(logrus.Fields{"block": fmt.Sprintf("%d,%d", b.Row, b.Col)})
			engine, err := segmenter.NewEngine(c.params,
				segmenter.WithLogger(log),
				segmenter.WithProgress(progress),
				segmenter.WithMemoryBudget(budget))
			if err != nil {
				report.Results[i] = segmenter.Result{Status: segmenter.StatusFailed, Tile: tile, Stage: segmenter.StageValidate, Err: err}
				return err
			}
			res := engine.Run(gctx, in, info, tile, sink, outBand, alloc)
			report.Results[i] = res
			progress.blockDone()
			if !res.OK() {
				return res.Err
			}
			return nil
		})
	})
	waitErr := g.Wait()

	report.Elapsed = time.Since(start)
	report.HighWater = alloc.HighWater()
	report.Status = segmenter.StatusSuccess
	for _, res := range report.Results {
		switch res.Status {
		case segmenter.StatusFailed:
			report.Status = segmenter.StatusFailed
		case segmenter.StatusCanceled:
			if report.Status == segmenter.StatusSuccess {
				report.Status = segmenter.StatusCanceled
			}
		}
	}

	// A block canceled because a sibling failed is reported as canceled, but
	// the run itself failed.
	var runErr error
	switch report.Status {
	case segmenter.StatusFailed:
		for _, res := range report.Results {
			if res.Status == segmenter.StatusFailed {
				runErr = res.Err
				break
			}
		}
	case segmenter.StatusCanceled:
		runErr = waitErr
		if !errors.Is(runErr, segmenter.ErrCanceled) {
			runErr = segmenter.ErrCanceled
		}
	}

	entry := c.log.WithFields(logrus.Fields{
		"status":   report.Status.String(),
		"segments": report.Stats().ActiveSegments,
		"elapsed":  report.Elapsed.String(),
	})
	if runErr != nil {
		entry.WithError(runErr).Warn("segmentation finished")
	} else {
		entry.Info("segmentation finished")
	}
	return report, runErr
}

// lockedOutput serializes writes from concurrent engines.
type lockedOutput struct {
	mu  sync.Mutex
	out segmenter.OutputRaster
}

func (o *lockedOutput) SetValue(col, row int, value float64, band int) {
	o.mu.Lock()
	o.out.SetValue(col, row, value, band)
	o.mu.Unlock()
}

// blockProgress forwards cancellation to the caller's progress but keeps the
// per-pass pulses of individual engines away from it. The caller sees one
// pulse per finished block, and calls from concurrent engines are serialized.
type blockProgress struct {
	mu     sync.Mutex
	parent segmenter.Progress
}

func (p *blockProgress) Pulse() {}

func (p *blockProgress) Canceled() bool {
	if p.parent == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.parent.Canceled()
}

func (p *blockProgress) blockDone() {
	if p.parent == nil {
		return
	}
	p.mu.Lock()
	p.parent.Pulse()
	p.mu.Unlock()
}

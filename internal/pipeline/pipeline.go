// Package pipeline runs a segmentation from an image file to a label raster.
// It is shared by the MCP server and the batch command.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/segmenter-mcp/internal/analysis"
	"github.com/ironsheep/segmenter-mcp/internal/config"
	"github.com/ironsheep/segmenter-mcp/internal/logging"
	"github.com/ironsheep/segmenter-mcp/internal/raster"
	"github.com/ironsheep/segmenter-mcp/internal/segmenter"
	"github.com/ironsheep/segmenter-mcp/internal/tiling"
)

// Request describes one segmentation run.
type Request struct {
	Path   string
	Config *config.Config
	// SmoothRadius applies a Gaussian blur before segmentation when > 0.
	SmoothRadius float64
	// NoData marks invalid samples. NewRequest sets NaN, which keeps every
	// sample of a decoded image valid.
	NoData   float64
	Logger   logrus.FieldLogger
	Progress segmenter.Progress
}

// NewRequest returns a request for path with default configuration.
func NewRequest(path string) Request {
	return Request{Path: path, Config: config.Default(), NoData: math.NaN()}
}

// Output is the outcome of a run.
type Output struct {
	RunID string
	// Source is the image that was segmented, after smoothing.
	Source image.Image
	Input  *raster.Raster
	Info   segmenter.BandInfo
	Labels *raster.Raster
	Report *tiling.Report
}

// Summary summarizes the label raster.
func (o *Output) Summary() *analysis.Summary {
	return analysis.Summarize(o.Labels, 0)
}

// Preview modes.
const (
	PreviewLabels = "labels"
	PreviewMean   = "mean"
)

// Preview renders the labels. PreviewLabels (or "") colors each segment from
// the palette chosen by seed; PreviewMean paints it with its mean input color.
func (o *Output) Preview(mode string, seed uint32) (image.Image, error) {
	switch mode {
	case "", PreviewLabels:
		return raster.RenderLabels(o.Labels, 0, seed), nil
	case PreviewMean:
		maxValue := 255.0
		if raster.Is16Bit(o.Source) {
			maxValue = 65535
		}
		return raster.MeanColorImage(o.Input, o.Labels, 0, maxValue), nil
	}
	return nil, fmt.Errorf("unknown preview mode %q (want %s or %s)", mode, PreviewLabels, PreviewMean)
}

// Run loads req.Path through cache, segments it and returns the labels.
// On cancellation or a block failure the partial Output is returned with the
// error so callers can report the per-block results.
func Run(ctx context.Context, cache *raster.Cache, req Request) (*Output, error) {
	cfg := req.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := req.Logger
	if log == nil {
		log = logging.Discard()
	}

	out := &Output{RunID: uuid.NewString()}
	log = log.WithField("run_id", out.RunID)

	img, err := cache.Load(req.Path)
	if err != nil {
		return nil, err
	}

	if req.SmoothRadius > 0 {
		out.Source = raster.Smooth(img, req.SmoothRadius)
		out.Input = raster.FromImage(out.Source)
	} else {
		out.Source = img
		if out.Input, err = cache.LoadRaster(req.Path); err != nil {
			return nil, err
		}
	}

	out.Info, err = raster.BandInfoFor(out.Input, req.NoData)
	if err != nil {
		return nil, err
	}

	w, h := out.Input.Width(), out.Input.Height()
	if out.Labels, err = raster.New(w, h, 1); err != nil {
		return nil, err
	}

	ctrl, err := tiling.NewController(cfg.Segmentation, out.Input.Bands(), cfg.TilingOptions(log, req.Progress))
	if err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}

	log.WithFields(logrus.Fields{
		"path":     req.Path,
		"width":    w,
		"height":   h,
		"bands":    out.Input.Bands(),
		"strategy": cfg.Segmentation.Strategy,
	}).Info("segmenting image")

	out.Report, err = ctrl.Run(ctx, out.Input, w, h, out.Info, out.Labels, 0)
	if err != nil {
		if out.Report == nil {
			return nil, err
		}
		return out, err
	}
	return out, nil
}

// Command segment segments an image file and writes the label raster.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/segmenter-mcp/internal/analysis"
	"github.com/ironsheep/segmenter-mcp/internal/config"
	"github.com/ironsheep/segmenter-mcp/internal/logging"
	"github.com/ironsheep/segmenter-mcp/internal/pipeline"
	"github.com/ironsheep/segmenter-mcp/internal/raster"
	"github.com/ironsheep/segmenter-mcp/internal/segmenter"
)

// Exit codes.
const (
	exitOK       = 0
	exitFailed   = 1
	exitCanceled = 2
)

type options struct {
	in, out        string
	params         string
	preview        string
	previewMode    string
	overlay        string
	workers        int
	maxBlockPixels int
	smooth         float64
	check          bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.LookupEnv))
}

func parseFlags(args []string) (*options, error) {
	var o options
	fs := flag.NewFlagSet("segment", flag.ContinueOnError)
	fs.StringVar(&o.in, "in", "", "input image (PNG, JPEG, GIF, BMP or TIFF)")
	fs.StringVar(&o.out, "out", "", "output label raster (TIFF)")
	fs.StringVar(&o.params, "params", "", "parameter file (.yaml, .yml or .json)")
	fs.StringVar(&o.preview, "preview", "", "write colored labels as PNG")
	fs.StringVar(&o.previewMode, "preview-mode", pipeline.PreviewLabels, "preview coloring: labels or mean")
	fs.StringVar(&o.overlay, "overlay", "", "write segment boundaries over the input as PNG")
	fs.IntVar(&o.workers, "workers", 0, "blocks segmented in parallel (default: number of CPUs)")
	fs.IntVar(&o.maxBlockPixels, "max-block-pixels", 0, "largest block in pixels (0: one block)")
	fs.Float64Var(&o.smooth, "smooth", 0, "Gaussian blur radius applied before segmenting")
	fs.BoolVar(&o.check, "check", false, "verify coverage and connectivity of the result")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if o.in == "" || o.out == "" {
		return nil, errors.New("-in and -out are required")
	}
	return &o, nil
}

func loadConfig(o *options, lookup config.Lookup) (*config.Config, error) {
	cfg := config.Default()
	if o.params != "" {
		var err error
		if cfg, err = config.Load(o.params); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	if o.workers > 0 {
		cfg.Tiling.Workers = o.workers
	}
	if o.maxBlockPixels > 0 {
		cfg.Tiling.MaxBlockPixels = o.maxBlockPixels
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, stdout io.Writer, lookup config.Lookup) int {
	log := logging.New(config.LogLevel(lookup), config.LogFormat(lookup))

	o, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		log.WithError(err).Error("invalid arguments")
		return exitFailed
	}

	cfg, err := loadConfig(o, lookup)
	if err != nil {
		log.WithError(err).Error("invalid configuration")
		return exitFailed
	}

	req := pipeline.NewRequest(o.in)
	req.Config = cfg
	req.SmoothRadius = o.smooth
	req.Logger = log

	out, err := pipeline.Run(ctx, raster.NewCache(), req)
	if err != nil {
		entry := log.WithError(err)
		if out != nil {
			entry = entry.WithField("run_id", out.RunID)
			for _, res := range out.Report.Failed() {
				log.WithFields(logrus.Fields{
					"tile":  res.Tile.String(),
					"stage": res.Stage.String(),
				}).WithError(res.Err).Error("block failed")
			}
		}
		if errors.Is(err, segmenter.ErrCanceled) {
			entry.Warn("segmentation canceled")
			return exitCanceled
		}
		entry.Error("segmentation failed")
		return exitFailed
	}

	if err := writeOutputs(o, out); err != nil {
		log.WithError(err).Error("failed to write output")
		return exitFailed
	}

	s := out.Summary()
	fmt.Fprintf(stdout, "run %s: %d segments in %d blocks (%s)\n", out.RunID, s.Segments, out.Report.Blocks, out.Report.Elapsed)
	fmt.Fprintf(stdout, "  segment size: min %d, max %d, mean %.2f, median %.0f\n", s.MinSize, s.MaxSize, s.MeanSize, s.MedianSize)
	fmt.Fprintf(stdout, "  labelled pixels: %d, unlabelled: %d\n", s.LabelledPixels, s.UnlabelledPixels)
	if n := out.Report.Stats().Undersized; n > 0 {
		fmt.Fprintf(stdout, "  segments below the size floor: %d\n", n)
	}

	if o.check {
		return check(stdout, out)
	}
	return exitOK
}

func writeOutputs(o *options, out *pipeline.Output) error {
	if err := raster.SaveLabels(o.out, out.Labels, 0); err != nil {
		return err
	}
	if o.preview != "" {
		img, err := out.Preview(o.previewMode, 0)
		if err != nil {
			return err
		}
		if err := raster.SavePNG(o.preview, img, 0); err != nil {
			return err
		}
	}
	if o.overlay != "" {
		img, err := raster.BoundaryOverlay(out.Source, out.Labels, 0, "#FF0000")
		if err != nil {
			return err
		}
		if err := raster.SavePNG(o.overlay, img, 0); err != nil {
			return err
		}
	}
	return nil
}

func check(stdout io.Writer, out *pipeline.Output) int {
	cov, err := analysis.CheckCoverage(out.Labels, 0, out.Input, out.Info)
	if err != nil {
		fmt.Fprintf(stdout, "  coverage check failed: %v\n", err)
		return exitFailed
	}
	conn := analysis.CheckConnectivity(out.Labels, 0)

	fmt.Fprintf(stdout, "  coverage: %t, connectivity: %t\n", cov.Covered, conn.Connected)
	if !cov.Covered {
		fmt.Fprintf(stdout, "  first coverage gap at %d,%d\n", cov.FirstGap.X, cov.FirstGap.Y)
	}
	if !conn.Connected {
		fmt.Fprintf(stdout, "  fragmented labels: %v\n", conn.Fragmented)
	}
	if !cov.Covered || !conn.Connected {
		return exitFailed
	}
	return exitOK
}

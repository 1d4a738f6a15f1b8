package pipeline

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/segmenter-mcp/internal/analysis"
	"github.com/ironsheep/segmenter-mcp/internal/raster"
	"github.com/ironsheep/segmenter-mcp/internal/segmenter"
)

// halvesImage is dark on the left and bright on the right.
func halvesImage(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(20)
			if x >= w/2 {
				v = 220
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	path := filepath.Join(t.TempDir(), "halves.png")
	require.NoError(t, raster.SavePNG(path, img, 0))
	return path
}

func TestRun(t *testing.T) {
	path := halvesImage(t, 40, 30)
	req := NewRequest(path)
	req.Config.Segmentation.Strategy = segmenter.MeanMerger
	req.Config.Segmentation.MinSegmentSize = 10

	out, err := Run(context.Background(), raster.NewCache(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, out.RunID)
	assert.Equal(t, segmenter.StatusSuccess, out.Report.Status)

	s := out.Summary()
	assert.Equal(t, 2, s.Segments)
	assert.Equal(t, 600, s.MinSize)
	assert.Zero(t, s.UnlabelledPixels)

	cov, err := analysis.CheckCoverage(out.Labels, 0, out.Input, out.Info)
	require.NoError(t, err)
	assert.True(t, cov.Covered)
	assert.True(t, analysis.CheckConnectivity(out.Labels, 0).Connected)
}

func TestRunTiledAndSmoothed(t *testing.T) {
	path := halvesImage(t, 80, 60)
	req := NewRequest(path)
	req.SmoothRadius = 1.5
	req.Config.Segmentation.Strategy = segmenter.MeanMerger
	req.Config.Segmentation.MinSegmentSize = 20
	req.Config.Tiling.MaxBlockPixels = 2500
	req.Config.Tiling.Workers = 2

	out, err := Run(context.Background(), raster.NewCache(), req)
	require.NoError(t, err)
	assert.Greater(t, out.Report.Blocks, 1)
	assert.Equal(t, 3, out.Input.Bands(), "smoothing yields an RGBA image")

	cov, err := analysis.CheckCoverage(out.Labels, 0, out.Input, out.Info)
	require.NoError(t, err)
	assert.True(t, cov.Covered)
	assert.True(t, analysis.CheckConnectivity(out.Labels, 0).Connected)
}

func TestRunErrors(t *testing.T) {
	_, err := Run(context.Background(), raster.NewCache(), NewRequest(filepath.Join(t.TempDir(), "missing.png")))
	assert.Error(t, err)

	req := NewRequest(halvesImage(t, 10, 10))
	req.Config.Segmentation.SimilarityIncreaseSteps = 0
	_, err = Run(context.Background(), raster.NewCache(), req)
	var cfg *segmenter.ConfigError
	assert.ErrorAs(t, err, &cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := Run(ctx, raster.NewCache(), NewRequest(halvesImage(t, 10, 10)))
	assert.ErrorIs(t, err, segmenter.ErrCanceled)
	require.NotNil(t, out)
	assert.Equal(t, segmenter.StatusCanceled, out.Report.Status)
}

func TestOutputPreview(t *testing.T) {
	req := NewRequest(halvesImage(t, 40, 30))
	req.Config.Segmentation.Strategy = segmenter.MeanMerger
	req.Config.Segmentation.MinSegmentSize = 10
	out, err := Run(context.Background(), raster.NewCache(), req)
	require.NoError(t, err)

	img, err := out.Preview(PreviewMean, 0)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 20, G: 20, B: 20, A: 255}, color.NRGBAModel.Convert(img.At(0, 0)))
	assert.Equal(t, color.NRGBA{R: 220, G: 220, B: 220, A: 255}, color.NRGBAModel.Convert(img.At(39, 29)))

	img, err = out.Preview("", 7)
	require.NoError(t, err)
	assert.Equal(t, raster.LabelColor(out.Labels.LabelAt(0, 0, 0), 7), color.NRGBAModel.Convert(img.At(0, 0)))

	_, err = out.Preview("heatmap", 0)
	assert.Error(t, err)
}

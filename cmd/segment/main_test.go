package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/segmenter-mcp/internal/analysis"
	"github.com/ironsheep/segmenter-mcp/internal/raster"
)

func noEnv(string) (string, bool) { return "", false }

func halvesPNG(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 30, 20))
	for y := 0; y < 20; y++ {
		for x := 15; x < 30; x++ {
			img.SetGray(x, y, color.Gray{Y: 200})
		}
	}
	path := filepath.Join(dir, "in.png")
	require.NoError(t, raster.SavePNG(path, img, 0))
	return path
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	in := halvesPNG(t, dir)
	params := filepath.Join(dir, "params.yaml")
	require.NoError(t, os.WriteFile(params, []byte("segmentation:\n  strategy: mean\n  min_segment_size: 5\n"), 0o644))

	var stdout bytes.Buffer
	code := run(context.Background(), []string{
		"-in", in,
		"-out", filepath.Join(dir, "labels.tif"),
		"-params", params,
		"-preview", filepath.Join(dir, "preview.png"),
		"-preview-mode", "mean",
		"-overlay", filepath.Join(dir, "overlay.png"),
		"-check",
	}, &stdout, noEnv)

	require.Equal(t, exitOK, code, stdout.String())
	assert.Contains(t, stdout.String(), "2 segments in 1 blocks")
	assert.Contains(t, stdout.String(), "coverage: true, connectivity: true")

	labels, err := raster.LoadLabels(filepath.Join(dir, "labels.tif"))
	require.NoError(t, err)
	assert.Equal(t, 2, analysis.Summarize(labels, 0).Segments)
	assert.FileExists(t, filepath.Join(dir, "preview.png"))
	assert.FileExists(t, filepath.Join(dir, "overlay.png"))
}

func TestRunEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	in := halvesPNG(t, dir)
	env := map[string]string{"SEGMENTER_STRATEGY": "mean", "SEGMENTER_MIN_SEGMENT_SIZE": "5"}

	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	var stdout bytes.Buffer
	code := run(context.Background(), []string{"-in", in, "-out", filepath.Join(dir, "l.tif")}, &stdout, lookup)
	require.Equal(t, exitOK, code)
	assert.True(t, strings.HasPrefix(stdout.String(), "run "))
}

func TestRunFailures(t *testing.T) {
	dir := t.TempDir()
	in := halvesPNG(t, dir)
	out := filepath.Join(dir, "labels.tif")

	tests := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{"missing flags", []string{"-in", in}, nil},
		{"unknown flag", []string{"-in", in, "-out", out, "-bogus"}, nil},
		{"missing input", []string{"-in", filepath.Join(dir, "none.png"), "-out", out}, nil},
		{"missing params file", []string{"-in", in, "-out", out, "-params", filepath.Join(dir, "none.yaml")}, nil},
		{"bad preview mode", []string{"-in", in, "-out", out, "-preview", filepath.Join(dir, "p.png"), "-preview-mode", "heatmap"}, nil},
		{"bad env", []string{"-in", in, "-out", out}, map[string]string{"SEGMENTER_THRESHOLD": "high"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := func(k string) (string, bool) {
				v, ok := tt.env[k]
				return v, ok
			}
			assert.Equal(t, exitFailed, run(context.Background(), tt.args, &bytes.Buffer{}, lookup))
		})
	}
}

func TestRunCanceled(t *testing.T) {
	dir := t.TempDir()
	in := halvesPNG(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	code := run(ctx, []string{"-in", in, "-out", filepath.Join(dir, "labels.tif")}, &bytes.Buffer{}, noEnv)
	assert.Equal(t, exitCanceled, code)
	assert.NoFileExists(t, filepath.Join(dir, "labels.tif"))
}

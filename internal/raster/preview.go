package raster

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
)

// PreviewResult contains a PNG rendering ready to return to a client
type PreviewResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// EncodePreview encodes img as base64 PNG, shrinking it so that neither side
// exceeds maxSide. Nearest-neighbor sampling keeps label colors unmixed.
// maxSide <= 0 disables shrinking.
func EncodePreview(img image.Image, maxSide int) (*PreviewResult, error) {
	img = fitPreview(img, maxSide)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}

	return &PreviewResult{
		Width:       img.Bounds().Dx(),
		Height:      img.Bounds().Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}

// SavePNG writes img to path, shrunk like EncodePreview.
func SavePNG(path string, img image.Image, maxSide int) error {
	if err := imaging.Save(fitPreview(img, maxSide), path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

func fitPreview(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	if maxSide > 0 && (b.Dx() > maxSide || b.Dy() > maxSide) {
		return imaging.Fit(img, maxSide, maxSide, imaging.NearestNeighbor)
	}
	return img
}

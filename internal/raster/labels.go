package raster

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"

	"golang.org/x/image/tiff"
)

// MaxLabel returns the largest label in band.
func (r *Raster) MaxLabel(band int) uint32 {
	var m float64
	for _, v := range r.Band(band) {
		if v > m {
			m = v
		}
	}
	return uint32(min(m, math.MaxUint32))
}

// LabelAt returns the label at (col,row) of band.
func (r *Raster) LabelAt(col, row, band int) uint32 {
	return uint32(r.Value(col, row, band))
}

// LabelImage packs a label band into an image without loss. Labels up to
// 65535 give a Gray16 image; larger labels are stored big-endian across the
// R, G, B and A channels of an NRGBA image.
func LabelImage(r *Raster, band int) image.Image {
	rect := image.Rect(0, 0, r.Width(), r.Height())

	if r.MaxLabel(band) <= math.MaxUint16 {
		img := image.NewGray16(rect)
		for y := 0; y < r.Height(); y++ {
			for x := 0; x < r.Width(); x++ {
				img.SetGray16(x, y, color.Gray16{Y: uint16(r.LabelAt(x, y, band))})
			}
		}
		return img
	}

	img := image.NewNRGBA(rect)
	for y := 0; y < r.Height(); y++ {
		for x := 0; x < r.Width(); x++ {
			id := r.LabelAt(x, y, band)
			i := img.PixOffset(x, y)
			img.Pix[i] = uint8(id >> 24)
			img.Pix[i+1] = uint8(id >> 16)
			img.Pix[i+2] = uint8(id >> 8)
			img.Pix[i+3] = uint8(id)
		}
	}
	return img
}

// LabelsFromImage reverses LabelImage into a single-band raster.
func LabelsFromImage(img image.Image) (*Raster, error) {
	b := img.Bounds()
	r, err := New(b.Dx(), b.Dy(), 1)
	if err != nil {
		return nil, err
	}

	switch src := img.(type) {
	case *image.Gray16:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				r.SetValue(x, y, float64(src.Gray16At(b.Min.X+x, b.Min.Y+y).Y), 0)
			}
		}
	case *image.Gray:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				r.SetValue(x, y, float64(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y), 0)
			}
		}
	case *image.NRGBA:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				i := src.PixOffset(b.Min.X+x, b.Min.Y+y)
				id := uint32(src.Pix[i])<<24 | uint32(src.Pix[i+1])<<16 | uint32(src.Pix[i+2])<<8 | uint32(src.Pix[i+3])
				r.SetValue(x, y, float64(id), 0)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported label image type %T", img)
	}
	return r, nil
}

// WriteLabelsTIFF encodes a label band as a deflate-compressed TIFF.
func WriteLabelsTIFF(w io.Writer, r *Raster, band int) error {
	if err := tiff.Encode(w, LabelImage(r, band), &tiff.Options{Compression: tiff.Deflate, Predictor: true}); err != nil {
		return fmt.Errorf("failed to encode label tiff: %w", err)
	}
	return nil
}

// ReadLabelsTIFF decodes a TIFF written by WriteLabelsTIFF.
func ReadLabelsTIFF(rd io.Reader) (*Raster, error) {
	img, err := tiff.Decode(rd)
	if err != nil {
		return nil, fmt.Errorf("failed to decode label tiff: %w", err)
	}
	return LabelsFromImage(img)
}

// SaveLabels writes a label band to a TIFF file.
func SaveLabels(path string, r *Raster, band int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteLabelsTIFF(f, r, band); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadLabels reads a label TIFF file.
func LoadLabels(path string) (*Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return ReadLabelsTIFF(f)
}

package raster

import (
	"fmt"
	"image"
	"image/color"
)

// Raster is a width x height grid with a fixed number of float64 bands.
type Raster struct {
	width, height, bands int
	data                 []float64
}

// New allocates a zero-filled raster.
func New(width, height, bands int) (*Raster, error) {
	if width < 1 || height < 1 || bands < 1 {
		return nil, fmt.Errorf("invalid raster shape %dx%d with %d bands", width, height, bands)
	}
	return &Raster{
		width:  width,
		height: height,
		bands:  bands,
		data:   make([]float64, width*height*bands),
	}, nil
}

func (r *Raster) Width() int  { return r.width }
func (r *Raster) Height() int { return r.height }
func (r *Raster) Bands() int  { return r.bands }

func (r *Raster) index(col, row, band int) int {
	return (band*r.height+row)*r.width + col
}

// Value returns the sample at (col,row) of band.
func (r *Raster) Value(col, row, band int) float64 {
	return r.data[r.index(col, row, band)]
}

// SetValue stores v at (col,row) of band.
func (r *Raster) SetValue(col, row int, v float64, band int) {
	r.data[r.index(col, row, band)] = v
}

// Band returns the samples of one band in row-major order, backed by the
// raster storage.
func (r *Raster) Band(band int) []float64 {
	n := r.width * r.height
	return r.data[band*n : (band+1)*n]
}

// Fill sets every sample of band to v.
func (r *Raster) Fill(band int, v float64) {
	b := r.Band(band)
	for i := range b {
		b[i] = v
	}
}

// Is16Bit reports whether img carries 16 bits per channel.
func Is16Bit(img image.Image) bool {
	switch img.(type) {
	case *image.RGBA64, *image.NRGBA64, *image.Gray16:
		return true
	}
	return false
}

// FromImage converts img into a raster. Gray images give one band, all others
// give red, green and blue bands. Samples are 0-255, or 0-65535 for 16-bit
// images.
func FromImage(img image.Image) *Raster {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	shift := uint(8)
	if Is16Bit(img) {
		shift = 0
	}

	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		r, _ := New(w, h, 1)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				g := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
				r.SetValue(x, y, float64(g.Y>>shift), 0)
			}
		}
		return r
	}

	r, _ := New(w, h, 3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA64Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA64)
			r.SetValue(x, y, float64(c.R>>shift), 0)
			r.SetValue(x, y, float64(c.G>>shift), 1)
			r.SetValue(x, y, float64(c.B>>shift), 2)
		}
	}
	return r
}

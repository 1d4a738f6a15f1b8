package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"
)

// BoundaryOverlay draws segment boundaries of a label band over img.
//
// A pixel is a boundary pixel when its right or bottom neighbor carries a
// different label. img and labels must have the same size.
func BoundaryOverlay(img image.Image, labels *Raster, band int, colorHex string) (*image.RGBA, error) {
	bounds := img.Bounds()
	if bounds.Dx() != labels.Width() || bounds.Dy() != labels.Height() {
		return nil, fmt.Errorf("image is %dx%d but labels are %dx%d",
			bounds.Dx(), bounds.Dy(), labels.Width(), labels.Height())
	}

	lineColor, err := parseHexColor(colorHex)
	if err != nil {
		lineColor = color.RGBA{255, 0, 0, 255} // Default: red
	}

	result := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(result, result.Bounds(), img, bounds.Min, draw.Src)

	w, h := labels.Width(), labels.Height()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			id := labels.LabelAt(x, y, band)
			edge := (x+1 < w && labels.LabelAt(x+1, y, band) != id) ||
				(y+1 < h && labels.LabelAt(x, y+1, band) != id)
			if edge {
				result.SetRGBA(x, y, blend(result.RGBAAt(x, y), lineColor))
			}
		}
	}
	return result, nil
}

// blend paints c over dst using c's alpha.
func blend(dst, c color.RGBA) color.RGBA {
	a := uint32(c.A)
	mix := func(d, s uint8) uint8 {
		return uint8((uint32(s)*a + uint32(d)*(255-a)) / 255)
	}
	return color.RGBA{R: mix(dst.R, c.R), G: mix(dst.G, c.G), B: mix(dst.B, c.B), A: 255}
}

// parseHexColor parses a hex color string like "#FF0000" or "#FF000080"
func parseHexColor(hex string) (color.RGBA, error) {
	if len(hex) == 0 {
		return color.RGBA{}, fmt.Errorf("empty color string")
	}
	if hex[0] == '#' {
		hex = hex[1:]
	}

	var r, g, b, a uint8 = 0, 0, 0, 255

	switch len(hex) {
	case 6:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, err
		}
		r = uint8(val >> 16)
		g = uint8(val >> 8)
		b = uint8(val)
	case 8:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, err
		}
		r = uint8(val >> 24)
		g = uint8(val >> 16)
		b = uint8(val >> 8)
		a = uint8(val)
	default:
		return color.RGBA{}, fmt.Errorf("invalid hex color length")
	}

	return color.RGBA{R: r, G: g, B: b, A: a}, nil
}

package raster

import (
	"image"
	"image/color"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// LabelColor returns a stable, well-spread color for a segment label. Label 0
// is black.
//
// Hues follow the golden-angle sequence so consecutive labels, which are often
// neighbors, get clearly different colors. Saturation and value vary slightly
// with the label to separate labels whose hues come close.
func LabelColor(id uint32, seed uint32) color.NRGBA {
	if id == 0 {
		return color.NRGBA{A: 255}
	}
	const golden = 0.618033988749895
	n := float64(id + seed)
	hue := math.Mod(n*golden, 1) * 360
	sat := 0.55 + 0.4*math.Mod(n*0.3819660112501051, 1)
	val := 0.70 + 0.25*math.Mod(n*0.7548776662466927, 1)

	r, g, b := colorful.Hsv(hue, sat, val).Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

// RenderLabels colors each label of band with LabelColor.
func RenderLabels(r *Raster, band int, seed uint32) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, r.Width(), r.Height()))
	cache := make(map[uint32]color.NRGBA)
	for y := 0; y < r.Height(); y++ {
		for x := 0; x < r.Width(); x++ {
			id := r.LabelAt(x, y, band)
			c, ok := cache[id]
			if !ok {
				c = LabelColor(id, seed)
				cache[id] = c
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// MeanColorImage paints every segment with the mean color of its pixels in
// src, which must have 1 or 3 bands scaled to maxValue.
func MeanColorImage(src, labels *Raster, band int, maxValue float64) *image.NRGBA {
	type acc struct {
		sum [3]float64
		n   float64
	}
	sums := map[uint32]*acc{}
	for y := 0; y < labels.Height(); y++ {
		for x := 0; x < labels.Width(); x++ {
			id := labels.LabelAt(x, y, band)
			a := sums[id]
			if a == nil {
				a = &acc{}
				sums[id] = a
			}
			for c := 0; c < 3; c++ {
				a.sum[c] += src.Value(x, y, min(c, src.Bands()-1))
			}
			a.n++
		}
	}

	scale := 255 / maxValue
	img := image.NewNRGBA(image.Rect(0, 0, labels.Width(), labels.Height()))
	for y := 0; y < labels.Height(); y++ {
		for x := 0; x < labels.Width(); x++ {
			id := labels.LabelAt(x, y, band)
			if id == 0 {
				img.SetNRGBA(x, y, color.NRGBA{A: 255})
				continue
			}
			a := sums[id]
			var px [3]uint8
			for c := range px {
				px[c] = uint8(min(255, max(0, a.sum[c]/a.n*scale)))
			}
			img.SetNRGBA(x, y, color.NRGBA{R: px[0], G: px[1], B: px[2], A: 255})
		}
	}
	return img
}

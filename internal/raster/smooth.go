package raster

import (
	"image"

	"github.com/anthonynsimon/bild/blur"
)

// Smooth applies a Gaussian blur of the given radius. The result is an 8-bit
// RGBA image. A radius <= 0 returns img unchanged.
func Smooth(img image.Image, radius float64) image.Image {
	if radius <= 0 {
		return img
	}
	return blur.Gaussian(img, radius)
}

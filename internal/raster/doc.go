// Package raster provides the in-memory rasters the segmentation engine reads
// from and writes to, plus the file and image plumbing around them.
//
// # Rasters
//
// A Raster is a dense multi-band grid of float64 samples. It satisfies both
// segmenter.InputRaster and segmenter.OutputRaster, so the same type holds the
// source image and the label output. Images decoded from disk are converted
// with FromImage: grayscale images become one band, everything else becomes
// three bands (red, green, blue). 16-bit images keep their full range.
//
// # Coordinate System
//
// Coordinates are 0-based with (0,0) at the top-left corner. Column (X) grows
// rightward and row (Y) grows downward.
//
// # Label Rasters
//
// Segmentation output is a single-band raster of segment IDs, 0 meaning no
// segment. WriteLabelsTIFF stores it losslessly; RenderLabels and
// BoundaryOverlay turn it into images for inspection.
//
// # Thread Safety
//
// Cache is safe for concurrent use. A Raster is not; concurrent writers must
// target disjoint pixels or synchronize externally.
package raster

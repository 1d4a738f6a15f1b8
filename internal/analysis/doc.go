// Package analysis validates and summarizes label rasters.
//
// A label raster holds one segment ID per pixel, with 0 for pixels that
// belong to no segment. The checks here verify the properties a
// segmentation run guarantees: every valid input pixel is labelled, no-data
// pixels are not, and every label forms one 4-connected region.
package analysis

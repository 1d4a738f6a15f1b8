// Package tiling splits a raster into blocks and segments them in parallel.
//
// Blocks overlap their neighbors. Inside the overlap a cut line is traced
// along the strongest local image gradient, so that block borders tend to
// fall on natural region edges instead of cutting straight through
// homogeneous areas. Each block only segments the pixels between its cut
// lines, which makes every raster pixel belong to exactly one block.
//
// Blocks share one segmenter.IDAllocator, so labels are unique across the
// whole output raster. Writes to the output are serialized.
package tiling

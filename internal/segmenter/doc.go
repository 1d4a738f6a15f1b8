// Package segmenter implements region-growing segmentation of multi-band rasters.
//
// A tile of the raster is first turned into one segment per valid pixel. Adjacent
// segments are then merged greedily, one full pass over the active segment list at
// a time, always joining a segment with the neighbor it is least dissimilar to.
// Merging stops when a pass produces no merge or when the iteration cap is reached.
// An optional final pass forces undersized segments into their best neighbor.
//
// # Storage
//
// Segments live in an Arena and are addressed by Handle, never by pointer. A
// segment that has been merged away stays in the arena in the Disabled state.
// The IDMatrix records, for each tile pixel, the ID of the segment owning it, with
// 0 meaning no segment (invalid or no-data pixel).
//
// # Dissimilarity
//
// Two merge criteria are available through Merger:
//   - MeanMerger: distance between per-band normalized means.
//   - BaatzMerger: weighted increase of spectral and shape heterogeneity.
//
// # Concurrency
//
// An Engine segments exactly one tile and is not safe for concurrent use. Engines
// for different tiles can run in parallel as long as they share one IDAllocator
// (which is safe for concurrent use) and write to disjoint output pixels.
package segmenter

package segmenter

import (
	"fmt"
	"math"
)

// Status is the outcome of segmenting one tile.
type Status int

const (
	StatusSuccess Status = iota
	StatusCanceled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusCanceled:
		return "canceled"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Stage names the step of a tile run.
type Stage int

const (
	StageValidate Stage = iota
	StageInitialize
	StageMerge
	StageFlush
)

func (s Stage) String() string {
	switch s {
	case StageValidate:
		return "validate"
	case StageInitialize:
		return "initialize"
	case StageMerge:
		return "merge"
	case StageFlush:
		return "flush"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// PassStats describes one call to MergeSegments.
type PassStats struct {
	// Merges is the number of segments merged away.
	Merges int `json:"merges"`
	// Passes is the number of full active-list passes, including the final
	// pass that found nothing to merge.
	Passes int `json:"passes"`
	// MinDissimilarity and MaxDissimilarity span the dissimilarities of the
	// merges performed. Rejected candidates are not counted. Both are 0 when
	// nothing was merged.
	MinDissimilarity float64 `json:"min_dissimilarity"`
	MaxDissimilarity float64 `json:"max_dissimilarity"`
	// ActiveSegments is the active segment count after the call.
	ActiveSegments int `json:"active_segments"`
}

func newPassStats() PassStats {
	return PassStats{MinDissimilarity: math.Inf(1), MaxDissimilarity: math.Inf(-1)}
}

func (p *PassStats) observe(d float64) {
	if d < p.MinDissimilarity {
		p.MinDissimilarity = d
	}
	if d > p.MaxDissimilarity {
		p.MaxDissimilarity = d
	}
}

func (p *PassStats) finish() {
	if p.MinDissimilarity > p.MaxDissimilarity {
		p.MinDissimilarity, p.MaxDissimilarity = 0, 0
	}
}

// Stats aggregates the work done on one tile.
type Stats struct {
	Segments       int    `json:"segments"`
	InvalidPixels  int    `json:"invalid_pixels"`
	Merges         int    `json:"merges"`
	Passes         int    `json:"passes"`
	Iterations     uint32 `json:"iterations"`
	Undersized     int    `json:"undersized"`
	ActiveSegments int    `json:"active_segments"`
}

// Result is the outcome of Engine.Run.
type Result struct {
	Status Status
	Tile   Tile
	// Stage is the stage the run stopped in. It is StageFlush on success.
	Stage Stage
	Err   error
	Stats Stats
}

// OK reports whether the tile was segmented and flushed.
func (r Result) OK() bool { return r.Status == StatusSuccess }

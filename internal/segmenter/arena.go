package segmenter

import (
	"fmt"
	"unsafe"
)

// Handle addresses a segment inside an Arena.
type Handle int32

// NoHandle is the handle of no segment.
const NoHandle Handle = -1

// SegmentState tells whether a segment can still take part in merges.
type SegmentState uint8

const (
	// Active segments are linked into the active list.
	Active SegmentState = iota
	// Disabled segments were merged into a neighbor and are never reused.
	Disabled
)

func (s SegmentState) String() string {
	switch s {
	case Active:
		return "active"
	case Disabled:
		return "disabled"
	default:
		return fmt.Sprintf("SegmentState(%d)", uint8(s))
	}
}

// Segment is a connected group of pixels being grown by the engine.
//
// The bounding box is half-open: XStart <= x < XBound and YStart <= y < YBound.
// After merges it is a superset of the segment's pixels, not necessarily tight.
type Segment struct {
	ID   uint32
	Size int

	XStart, XBound int
	YStart, YBound int

	// Features is laid out by the Merger that created the segment.
	Features []float64

	// Neighbors keeps insertion order and holds no duplicates.
	Neighbors []Handle

	MergeIteration uint32

	Prev, Next Handle
	State      SegmentState
}

// AddNeighbor appends h unless it is already a neighbor.
func (s *Segment) AddNeighbor(h Handle) {
	for _, n := range s.Neighbors {
		if n == h {
			return
		}
	}
	s.Neighbors = append(s.Neighbors, h)
}

// RemoveNeighbor drops h, keeping the order of the remaining neighbors.
func (s *Segment) RemoveNeighbor(h Handle) {
	for i, n := range s.Neighbors {
		if n == h {
			s.Neighbors = append(s.Neighbors[:i], s.Neighbors[i+1:]...)
			return
		}
	}
}

// HasNeighbor reports whether h is a neighbor of s.
func (s *Segment) HasNeighbor(h Handle) bool {
	for _, n := range s.Neighbors {
		if n == h {
			return true
		}
	}
	return false
}

// ClearNeighbors empties the neighbor set.
func (s *Segment) ClearNeighbors() {
	s.Neighbors = s.Neighbors[:0]
}

// Disable marks s as merged away. The caller unlinks it from the active list.
func (s *Segment) Disable() {
	s.State = Disabled
	s.ID = 0
	s.Size = 0
	s.ClearNeighbors()
	s.Prev, s.Next = NoHandle, NoHandle
}

// CopyFrom copies size, bounding box and features of src into s.
func (s *Segment) CopyFrom(src *Segment) {
	s.Size = src.Size
	s.XStart, s.XBound = src.XStart, src.XBound
	s.YStart, s.YBound = src.YStart, src.YBound
	copy(s.Features, src.Features)
}

// Width is the bounding box width.
func (s *Segment) Width() int { return s.XBound - s.XStart }

// Height is the bounding box height.
func (s *Segment) Height() int { return s.YBound - s.YStart }

// Arena is a fixed-capacity pool of segments.
//
// All slots and their feature vectors are allocated up front. Slots are handed
// out in order by Next and are never released individually; the whole arena is
// dropped once a tile is done.
type Arena struct {
	segments    []Segment
	features    []float64
	featureSize int
	used        int
}

const (
	segmentBytes  = int64(unsafe.Sizeof(Segment{}))
	neighborBytes = int64(unsafe.Sizeof(Handle(0)))
	// typical neighbor slice capacity once a pixel segment is linked
	neighborSlots = 4
)

// ArenaBytes estimates the memory held by an arena of the given shape.
func ArenaBytes(capacity, featureSize int) int64 {
	c := int64(capacity)
	return c*segmentBytes + c*int64(featureSize)*8 + c*neighborSlots*neighborBytes
}

// NewArena allocates capacity segments with featureSize features each.
//
// When budget is positive and the estimated footprint exceeds it, NewArena fails
// with a *ResourceError wrapping ErrMemoryBudget instead of allocating.
func NewArena(capacity, featureSize int, budget int64) (*Arena, error) {
	if capacity < 1 {
		return nil, &ConfigError{Field: "capacity", Reason: fmt.Sprintf("must be positive, got %d", capacity)}
	}
	if featureSize < 1 {
		return nil, &ConfigError{Field: "featureSize", Reason: fmt.Sprintf("must be positive, got %d", featureSize)}
	}
	if capacity > maxArenaCapacity {
		return nil, &ResourceError{What: "segment arena", Requested: int64(capacity), Budget: maxArenaCapacity, cause: ErrArenaExhausted}
	}
	if need := ArenaBytes(capacity, featureSize); budget > 0 && need > budget {
		return nil, &ResourceError{What: "segment arena", Requested: need, Budget: budget, cause: ErrMemoryBudget}
	}

	a := &Arena{
		segments:    make([]Segment, capacity),
		features:    make([]float64, capacity*featureSize),
		featureSize: featureSize,
	}
	for i := range a.segments {
		a.segments[i].Features = a.features[i*featureSize : (i+1)*featureSize : (i+1)*featureSize]
		a.segments[i].Prev, a.segments[i].Next = NoHandle, NoHandle
	}
	return a, nil
}

const maxArenaCapacity = 1<<31 - 1

// Next hands out the next unused slot, reset to an empty active segment.
func (a *Arena) Next() (Handle, error) {
	if a.used >= len(a.segments) {
		return NoHandle, fmt.Errorf("%w: capacity %d", ErrArenaExhausted, len(a.segments))
	}
	h := Handle(a.used)
	a.used++

	s := &a.segments[h]
	s.ID = 0
	s.Size = 0
	s.XStart, s.XBound, s.YStart, s.YBound = 0, 0, 0, 0
	clear(s.Features)
	s.Neighbors = s.Neighbors[:0]
	s.MergeIteration = 0
	s.Prev, s.Next = NoHandle, NoHandle
	s.State = Active
	return h, nil
}

// Get returns the segment addressed by h.
func (a *Arena) Get(h Handle) *Segment {
	return &a.segments[h]
}

// Len reports how many slots have been handed out.
func (a *Arena) Len() int { return a.used }

// Cap reports the arena capacity.
func (a *Arena) Cap() int { return len(a.segments) }

// FeatureSize reports the feature vector length of every slot.
func (a *Arena) FeatureSize() int { return a.featureSize }

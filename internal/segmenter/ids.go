package segmenter

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// IDAllocator issues positive segment IDs and recycles freed ones.
//
// Recycled IDs are handed out smallest first, so the output labels stay compact
// and deterministic for a given allocation sequence. ID 0 is never issued.
//
// IDAllocator is safe for concurrent use. Tiles of the same raster share one
// allocator so that their labels never collide in the output.
type IDAllocator struct {
	mu        sync.Mutex
	free      *roaring.Bitmap
	next      uint32
	issued    int
	highWater uint32
}

// NewIDAllocator returns an allocator whose first fresh ID is 1.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{
		free: roaring.New(),
		next: 1,
	}
}

// Allocate returns n IDs, recycled ones first.
func (a *IDAllocator) Allocate(n int) []uint32 {
	return a.AllocateInto(nil, n)
}

// AllocateInto is like Allocate but reuses the storage of dst.
func (a *IDAllocator) AllocateInto(dst []uint32, n int) []uint32 {
	dst = dst[:0]
	if n <= 0 {
		return dst
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	it := a.free.Iterator()
	for len(dst) < n && it.HasNext() {
		dst = append(dst, it.Next())
	}
	if len(dst) > 0 {
		a.free.RemoveRange(uint64(dst[0]), uint64(dst[len(dst)-1])+1)
	}

	for len(dst) < n {
		dst = append(dst, a.next)
		a.next++
	}

	a.issued += n
	if last := a.next - 1; last > a.highWater {
		a.highWater = last
	}
	return dst
}

// Free returns ids to the recycle pool. Zero values are ignored.
func (a *IDAllocator) Free(ids []uint32) {
	if len(ids) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, id := range ids {
		if id == 0 || id >= a.next {
			continue
		}
		if a.free.CheckedAdd(id) {
			a.issued--
		}
	}
}

// Reset forgets every issued and freed ID.
func (a *IDAllocator) Reset() {
	a.mu.Lock()
	a.free.Clear()
	a.next = 1
	a.issued = 0
	a.highWater = 0
	a.mu.Unlock()
}

// Outstanding reports how many IDs are currently handed out.
func (a *IDAllocator) Outstanding() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.issued
}

// HighWater reports the largest ID ever issued.
func (a *IDAllocator) HighWater() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.highWater
}

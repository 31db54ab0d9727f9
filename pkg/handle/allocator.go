package handle

import (
	"container/heap"
	"fmt"
	"sync"

	"github.com/trove-io/trove/pkg/types"
)

// uint64Heap is a min-heap of handle values, used to serve the
// smallest-free-handle reuse policy in O(log n).
type uint64Heap []uint64

func (h uint64Heap) Len() int            { return len(h) }
func (h uint64Heap) Less(i, j int) bool  { return h[i] < h[j] }
func (h uint64Heap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *uint64Heap) Push(x interface{}) { *h = append(*h, x.(uint64)) }
func (h *uint64Heap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// Allocator issues and reclaims handles within a single collection's
// configured range. The zero value is not usable; build one with New.
type Allocator struct {
	mu        sync.Mutex
	rng       types.HandleRange
	nextFresh uint64 // smallest value never yet allocated
	free      uint64Heap
	live      map[uint64]struct{}
}

// New creates an allocator over rng with no live handles.
func New(rng types.HandleRange) *Allocator {
	return &Allocator{
		rng:       rng,
		nextFresh: rng.Start,
		live:      make(map[uint64]struct{}),
	}
}

// Recover rebuilds allocator state from a backing-store directory scan:
// the set of live handles is recoverable from scanning the
// backing-store driver's directory. It must be called once, before
// serving any Allocate/Reserve/Release calls.
func Recover(rng types.HandleRange, liveHandles []types.Handle) (*Allocator, error) {
	a := New(rng)
	for _, h := range liveHandles {
		if !rng.Contains(h) {
			return nil, types.NewError(types.KindInvalidArgument, "handle.Recover",
				fmt.Errorf("handle %s outside range [%d,%d]", h, rng.Start, rng.End))
		}
		a.live[h.Lo] = struct{}{}
		if h.Lo >= a.nextFresh {
			for v := a.nextFresh; v < h.Lo; v++ {
				heap.Push(&a.free, v)
			}
			a.nextFresh = h.Lo + 1
		}
	}
	return a, nil
}

// Allocate returns an unused handle within the range, preferring the
// smallest free value. Fails with KindOutOfHandles if none remain.
func (a *Allocator) Allocate(dsType types.DSType) (types.Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.free) > 0 {
		v := heap.Pop(&a.free).(uint64)
		a.live[v] = struct{}{}
		return types.Handle{Lo: v}, nil
	}
	if a.nextFresh > a.rng.End {
		return types.NullHandle, types.NewError(types.KindOutOfHandles, "handle.Allocate", nil)
	}
	v := a.nextFresh
	a.nextFresh++
	a.live[v] = struct{}{}
	return types.Handle{Lo: v}, nil
}

// Reserve claims a specific handle, e.g. while restoring a directory
// entry that names it explicitly. Succeeds iff h is within range and
// currently unused.
func (a *Allocator) Reserve(h types.Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.rng.Contains(h) {
		return types.NewError(types.KindInvalidArgument, "handle.Reserve",
			fmt.Errorf("handle %s outside range", h))
	}
	if _, live := a.live[h.Lo]; live {
		return types.NewError(types.KindExist, "handle.Reserve", fmt.Errorf("handle %s in use", h))
	}

	if h.Lo >= a.nextFresh {
		for v := a.nextFresh; v < h.Lo; v++ {
			heap.Push(&a.free, v)
		}
		a.nextFresh = h.Lo + 1
		a.live[h.Lo] = struct{}{}
		return nil
	}

	// h.Lo < nextFresh: must currently sit in the free heap. Remove it
	// by rebuilding the heap without it — reservation during directory
	// restore is not a hot path, so an O(n) scan here is acceptable.
	idx := -1
	for i, v := range a.free {
		if v == h.Lo {
			idx = i
			break
		}
	}
	if idx < 0 {
		// Not in free list and not live: was never allocated and is
		// below nextFresh only if it was explicitly freed; otherwise
		// this is a gap that doesn't exist. Treat as in-use conflict
		// only if it truly can't be claimed.
		return types.NewError(types.KindInvalidArgument, "handle.Reserve",
			fmt.Errorf("handle %s not reservable", h))
	}
	heap.Remove(&a.free, idx)
	a.live[h.Lo] = struct{}{}
	return nil
}

// Release returns h to the free pool. No-op if h is not live.
func (a *Allocator) Release(h types.Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, live := a.live[h.Lo]; !live {
		return
	}
	delete(a.live, h.Lo)
	heap.Push(&a.free, h.Lo)
}

// LiveCount returns the number of currently-live handles.
func (a *Allocator) LiveCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

// IsLive reports whether h is currently allocated.
func (a *Allocator) IsLive(h types.Handle) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, live := a.live[h.Lo]
	return live
}

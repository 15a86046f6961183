package parfor

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"github.com/azargarov/parfor/internal/syncutil"
)

// cachePad is used to prevent false sharing between hot fields.
type cachePad = cpu.CacheLinePad

// slotRange is the slice of a job's iteration space owned by one slot.
//
// The slot owns indices [next, last]; next > last means it owns nothing.
// start is where the current contiguous sub-range began and is used to
// credit the whole sub-range once its last index has run.
//
// Fields are only written under mu. They are atomics so that thieves can
// survey sizes without taking every lock.
type slotRange struct {
	mu    syncutil.Mutex
	start atomic.Int32
	next  atomic.Int32
	last  atomic.Int32
	_     cachePad
}

// set must be called with r.mu held.
func (r *slotRange) set(start, next, last int32) {
	r.start.Store(start)
	r.next.Store(next)
	r.last.Store(last)
}

// reset replaces the range under its lock.
func (r *slotRange) reset(start, next, last int32) {
	r.mu.Lock()
	r.set(start, next, last)
	r.mu.Unlock()
}

// claim takes the next index. It returns the claimed index together with
// the bounds of the sub-range it belongs to.
func (r *slotRange) claim() (start, index, last int32, ok bool) {
	r.mu.Lock()
	last = r.last.Load()
	index = r.next.Load()
	if index <= last {
		start = r.start.Load()
		r.next.Store(index + 1)
		ok = true
	}
	r.mu.Unlock()
	return start, index, last, ok
}

// split gives away the upper part of the remaining indices. The owner
// keeps the first remaining/2 of them; the caller gets [from, to].
// Ranges with fewer than two indices left are never split.
func (r *slotRange) split() (from, to int32, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, last := r.next.Load(), r.last.Load()
	if next >= last {
		return 0, 0, false
	}
	half := (last - next + 1) / 2
	from, to = next+half, last
	r.last.Store(next + half - 1)
	return from, to, true
}

// remaining is a lock-free, possibly stale size estimate.
func (r *slotRange) remaining() int32 {
	n := r.last.Load() - r.next.Load() + 1
	if n < 0 {
		return 0
	}
	return n
}

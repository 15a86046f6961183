package parfor

import (
	"github.com/azargarov/parfor/internal/syncutil"
)

// jobArray is one priority bucket.
//
// Only the submitting goroutine mutates it. Workers copy the current
// contents under the read lock and work from the copy.
type jobArray struct {
	mu    syncutil.RWMutex
	items []*queuedJob
}

func (a *jobArray) len() int {
	return len(a.items)
}

// grow makes room for one more element, growing by step slots.
// Must be called with a.mu held.
func (a *jobArray) grow(step int) (from, to int, grew bool) {
	if len(a.items) < cap(a.items) {
		return 0, 0, false
	}
	from = cap(a.items)
	bigger := make([]*queuedJob, len(a.items), from+step)
	copy(bigger, a.items)
	a.items = bigger
	return from, cap(bigger), true
}

// insertFront places j at index 0, shifting everything else down.
// Must be called with a.mu held.
func (a *jobArray) insertFront(j *queuedJob) {
	a.items = append(a.items, nil)
	copy(a.items[1:], a.items)
	a.items[0] = j
}

// add appends j. Must be called with a.mu held.
func (a *jobArray) add(j *queuedJob) {
	a.items = append(a.items, j)
}

func (a *jobArray) indexOf(j *queuedJob) int {
	for i, it := range a.items {
		if it == j {
			return i
		}
	}
	return -1
}

// removeAtShift removes index i keeping the order of the rest.
// Must be called with a.mu held.
func (a *jobArray) removeAtShift(i int) {
	n := len(a.items) - 1
	copy(a.items[i:], a.items[i+1:])
	a.items[n] = nil
	a.items = a.items[:n]
}

// removeAtSwap moves the last element into i.
// Must be called with a.mu held.
func (a *jobArray) removeAtSwap(i int) {
	n := len(a.items) - 1
	a.items[i] = a.items[n]
	a.items[n] = nil
	a.items = a.items[:n]
}

// snapshot appends the bucket contents to dst.
func (a *jobArray) snapshot(dst []*queuedJob) []*queuedJob {
	a.mu.RLock()
	dst = append(dst, a.items...)
	a.mu.RUnlock()
	return dst
}

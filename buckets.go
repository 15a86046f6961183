package parfor

import (
	"math/bits"
	"sync/atomic"

	lg "github.com/Andrej220/go-utils/zlog"
	"github.com/cockroachdb/errors"
)

// Priority orders jobs. Lower values are scanned first.
type Priority uint8

const (
	// PriorityUrgent is scanned before everything else. Jobs in this
	// bucket are kept newest first.
	PriorityUrgent Priority = 0

	// PriorityDefault is a middle-of-the-road priority.
	PriorityDefault Priority = 128

	// PriorityLowest is scanned last.
	PriorityLowest Priority = 255

	// BucketCount is the number of priority levels.
	BucketCount = 256

	maskWords = BucketCount / 64
)

// bucketArray holds every in-flight job, one jobArray per priority.
//
// Bucket 0 preserves insertion order, newest first, and pays O(n) per
// insert and remove. Other buckets append and swap-remove.
//
// nonEmpty has bit p set while bucket p holds at least one job, so
// workers can skip empty priorities without touching their locks.
type bucketArray struct {
	buckets  [BucketCount]jobArray
	nonEmpty [maskWords]atomic.Uint64

	s     *Scheduler
	count atomic.Int64
}

func newBucketArray(s *Scheduler, capacity int) *bucketArray {
	b := &bucketArray{s: s}
	for i := range b.buckets {
		b.buckets[i].items = make([]*queuedJob, 0, capacity)
	}
	return b
}

func (b *bucketArray) markNonEmpty(p Priority) {
	b.nonEmpty[p>>6].Or(uint64(1) << (p & 63))
}

func (b *bucketArray) markEmpty(p Priority) {
	b.nonEmpty[p>>6].And(^(uint64(1) << (p & 63)))
}

// next returns the first priority >= from whose bucket may hold jobs,
// or -1 if there is none.
func (b *bucketArray) next(from int) int {
	for w := from >> 6; w < maskWords; w++ {
		word := b.nonEmpty[w].Load()
		if w == from>>6 {
			word &= ^uint64(0) << (from & 63)
		}
		if word != 0 {
			return w<<6 + bits.TrailingZeros64(word)
		}
	}
	return -1
}

// insert adds j to bucket p. Submitter only.
func (b *bucketArray) insert(p Priority, j *queuedJob) {
	a := &b.buckets[p]
	a.mu.Lock()
	if from, to, grew := a.grow(b.s.opts.BucketGrowth); grew {
		lg.FromContext(b.s.ctx).Debug("priority bucket grown",
			lg.Int("priority", int(p)),
			lg.Int("from", from),
			lg.Int("to", to),
		)
	}
	if p == PriorityUrgent {
		a.insertFront(j)
	} else {
		a.add(j)
	}
	a.mu.Unlock()

	b.markNonEmpty(p)
	b.count.Add(1)
}

// remove takes j out of bucket p. A missing job is reported and ignored.
// Submitter only.
func (b *bucketArray) remove(p Priority, j *queuedJob) bool {
	a := &b.buckets[p]
	a.mu.Lock()
	i := a.indexOf(j)
	if i < 0 {
		a.mu.Unlock()
		id := j.id.Load()
		lg.FromContext(b.s.ctx).Error("removing a job that is not in its bucket",
			lg.Any("job", id),
			lg.Int("priority", int(p)),
		)
		b.s.reportInternalError(errors.WithAssertionFailure(
			errors.Wrapf(ErrMissingJob, "job %d not in bucket %d", id, p)))
		return false
	}
	b.removeAtLocked(p, i)
	a.mu.Unlock()
	return true
}

// removeAt drops the job at index i of bucket p. Submitter only.
func (b *bucketArray) removeAt(p Priority, i int) {
	a := &b.buckets[p]
	a.mu.Lock()
	b.removeAtLocked(p, i)
	a.mu.Unlock()
}

func (b *bucketArray) removeAtLocked(p Priority, i int) {
	a := &b.buckets[p]
	if p == PriorityUrgent {
		a.removeAtShift(i)
	} else {
		a.removeAtSwap(i)
	}
	if a.len() == 0 {
		b.markEmpty(p)
	}
	b.count.Add(-1)
}

// at returns the job at index i of bucket p. Submitter only: it reads
// without the lock because only the submitter writes.
func (b *bucketArray) at(p Priority, i int) *queuedJob {
	return b.buckets[p].items[i]
}

// size returns the number of jobs in bucket p. Submitter only.
func (b *bucketArray) size(p Priority) int {
	return b.buckets[p].len()
}

// snapshot appends the jobs of bucket p to dst in scan order.
func (b *bucketArray) snapshot(p int, dst []*queuedJob) []*queuedJob {
	return b.buckets[p].snapshot(dst)
}

// len returns the number of jobs across all buckets.
func (b *bucketArray) len() int { return int(b.count.Load()) }

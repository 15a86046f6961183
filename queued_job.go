package parfor

import (
	"cmp"
	"slices"
	"sync/atomic"

	lg "github.com/Andrej220/go-utils/zlog"
	"github.com/cockroachdb/errors"
)

// Job is the body of a parallel for loop. It is called once for every
// index in [0, iterations) and may run concurrently for different indices.
type Job func(i int)

// stealCandidate is one entry of the unsynchronized size survey a thief
// takes before choosing a victim.
type stealCandidate struct {
	slot int
	size int32
}

// queuedJob is one in-flight parallel-for submission.
//
// Objects are pooled. init runs on the submitting goroutine only, and
// only once the sweep has seen the previous incarnation finished with no
// goroutine inside tryExecuteOne.
type queuedJob struct {
	s *Scheduler

	// fn is written by init before any range becomes claimable; readers
	// only call it after claiming an index under a range lock.
	fn Job

	count     atomic.Int32
	completed atomic.Int32
	id        atomic.Uint32

	destroyed        atomic.Bool
	overflowReported atomic.Bool

	// active counts goroutines currently inside tryExecuteOne.
	active atomic.Int32

	// Owned by the submitting goroutine.
	priority Priority
	queued   bool

	ranges []slotRange
}

func newQueuedJob(s *Scheduler, slots int) *queuedJob {
	return &queuedJob{
		s:      s,
		ranges: make([]slotRange, slots),
	}
}

// init prepares the job for a new submission: every slot is empty except
// the highest one, which owns the whole iteration space.
func (q *queuedJob) init(fn Job, iterations uint16, prio Priority, id uint32) {
	q.fn = fn
	q.priority = prio
	q.id.Store(id)
	q.destroyed.Store(false)
	q.overflowReported.Store(false)
	q.completed.Store(0)
	q.count.Store(int32(iterations))

	owner := len(q.ranges) - 1
	for i := range owner {
		q.ranges[i].reset(0, 1, 0)
	}
	q.ranges[owner].reset(0, 0, int32(iterations)-1)

	lg.FromContext(q.s.ctx).Debug("job created",
		lg.Any("job", id),
		lg.Int("iterations", int(iterations)),
		lg.Int("priority", int(prio)),
	)
}

// tryExecuteOne runs at most one iteration on behalf of slot. It first
// claims from the slot's own range and otherwise steals half of the
// largest range it can find. It reports false when no work was found.
//
// scratch is reused between calls to avoid allocating the survey.
func (q *queuedJob) tryExecuteOne(slot int, scratch *[]stealCandidate) bool {
	q.active.Add(1)
	defer q.active.Add(-1)

	start, index, last, ok := q.ranges[slot].claim()
	if !ok {
		start, index, last, ok = q.steal(slot, scratch)
		if !ok {
			return false
		}
	}

	q.run(index)

	if index == last {
		q.credit(last - start + 1)
	}
	return true
}

// steal moves the upper half of some other slot's range into slot and
// claims its first index.
func (q *queuedJob) steal(slot int, scratch *[]stealCandidate) (start, index, last int32, ok bool) {
	statStealAttempt()

	cands := (*scratch)[:0]
	found := false
	for i := range q.ranges {
		if i == slot {
			continue
		}
		n := q.ranges[i].remaining()
		cands = append(cands, stealCandidate{slot: i, size: n})
		if n > 0 {
			found = true
		}
	}
	*scratch = cands
	if !found {
		statStealMiss()
		return 0, 0, 0, false
	}

	// Largest first; equal sizes keep slot order.
	slices.SortStableFunc(cands, func(a, b stealCandidate) int {
		return cmp.Compare(b.size, a.size)
	})

	own := &q.ranges[slot]
	for _, c := range cands {
		if c.size <= 0 {
			break
		}
		from, to, split := q.ranges[c.slot].split()
		if !split {
			statStealAbort()
			continue
		}

		own.mu.Lock()
		if q.destroyed.Load() {
			// destroy already emptied this slot; the stolen indices go
			// with the rest of the job.
			own.mu.Unlock()
			return 0, 0, 0, false
		}
		own.set(from, from+1, to)
		own.mu.Unlock()

		q.s.metrics.IncStolen()
		return from, from, to, true
	}

	statStealMiss()
	return 0, 0, 0, false
}

func (q *queuedJob) run(index int32) {
	defer func() {
		if r := recover(); r != nil {
			q.s.iterationPanicked(q.id.Load(), int(index), r)
		}
	}()
	q.fn(int(index))
}

// credit records a fully consumed sub-range.
func (q *queuedJob) credit(n int32) {
	done := q.completed.Add(n)
	q.s.metrics.AddCompleted(int64(n))
	if done == q.count.Load() {
		lg.FromContext(q.s.ctx).Debug("job finished", lg.Any("job", q.id.Load()))
	}
}

// isFinished reports whether every iteration has been credited. An
// overflowing counter is treated as finished.
func (q *queuedJob) isFinished() bool {
	done, n := q.completed.Load(), q.count.Load()
	if done == n {
		return true
	}
	if done > n {
		// Late credits after destroy are expected.
		if !q.destroyed.Load() && q.overflowReported.CompareAndSwap(false, true) {
			id := q.id.Load()
			lg.FromContext(q.s.ctx).Error("completed iterations exceed iteration count",
				lg.Any("job", id),
				lg.Int32("completed", done),
				lg.Int32("iterations", n),
			)
			q.s.reportInternalError(errors.WithAssertionFailure(
				errors.Wrapf(ErrCompletedOverflow, "job %d credited %d of %d iterations", id, done, n)))
		}
		return true
	}
	return false
}

// destroy abandons the job. Goroutines in the middle of an iteration
// finish it; nothing new can be claimed.
func (q *queuedJob) destroy() {
	q.destroyed.Store(true)
	for i := range q.ranges {
		q.ranges[i].reset(0, 1, 0)
	}
	q.completed.Store(q.count.Load())
}

// reclaimable reports whether the sweep may return the job to the pool.
func (q *queuedJob) reclaimable() bool {
	return q.isFinished() && q.active.Load() == 0
}

// remaining sums the unclaimed indices of every slot.
func (q *queuedJob) remaining() int32 {
	var n int32
	for i := range q.ranges {
		n += q.ranges[i].remaining()
	}
	return n
}

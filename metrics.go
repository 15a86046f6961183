package parfor

import (
	"sync/atomic"
)

// MetricsPolicy defines hooks used by the scheduler to report submission,
// execution and recycling activity.
//
// Implementations must be safe for concurrent use.
// All methods are expected to be lightweight and non-blocking.
type MetricsPolicy interface {
	// IncSubmitted increments the submitted jobs counter.
	IncSubmitted()

	// AddCompleted adds n finished iterations.
	//
	// Iterations are credited per contiguous sub-range, so n is usually
	// larger than one.
	AddCompleted(n int64)

	// IncStolen increments the successful steals counter.
	IncStolen()

	// IncRecycled increments the counter of jobs returned to the pool.
	IncRecycled()

	// IncPanicked increments the counter of recovered iteration panics.
	IncPanicked()

	// SetLiveJobs records how many jobs sit in the priority buckets.
	SetLiveJobs(n int)
}

// AtomicMetrics is a lock-free metrics implementation backed by atomics.
//
// Writes are optimized for hot paths.
// Reads are intended for cold-path observation.
type AtomicMetrics struct {
	completed atomic.Int64
	_         cachePad

	stolen atomic.Uint64
	_      cachePad

	submitted atomic.Uint64
	recycled  atomic.Uint64
	panicked  atomic.Uint64
	live      atomic.Int64
}

// Completed returns the total number of finished iterations.
func (m *AtomicMetrics) Completed() int64 { return m.completed.Load() }

// Stolen returns the total number of successful steals.
func (m *AtomicMetrics) Stolen() uint64 { return m.stolen.Load() }

// Submitted returns the total number of submitted jobs.
func (m *AtomicMetrics) Submitted() uint64 { return m.submitted.Load() }

// Recycled returns how many jobs the sweep returned to the pool.
func (m *AtomicMetrics) Recycled() uint64 { return m.recycled.Load() }

// Panicked returns how many iterations panicked.
func (m *AtomicMetrics) Panicked() uint64 { return m.panicked.Load() }

// LiveJobs returns the job count recorded by the last sweep.
func (m *AtomicMetrics) LiveJobs() int64 { return m.live.Load() }

func (m *AtomicMetrics) IncSubmitted()        { m.submitted.Add(1) }
func (m *AtomicMetrics) AddCompleted(n int64) { m.completed.Add(n) }
func (m *AtomicMetrics) IncStolen()           { m.stolen.Add(1) }
func (m *AtomicMetrics) IncRecycled()         { m.recycled.Add(1) }
func (m *AtomicMetrics) IncPanicked()         { m.panicked.Add(1) }
func (m *AtomicMetrics) SetLiveJobs(n int)    { m.live.Store(int64(n)) }

//------------- NoopMetrics ----------------------------------

// NoopMetrics is a MetricsPolicy implementation that discards
// all metric updates.
//
// It can be used when metrics collection is disabled and
// zero overhead is desired.
type NoopMetrics struct{}

func (m *NoopMetrics) IncSubmitted()        {}
func (m *NoopMetrics) AddCompleted(n int64) {}
func (m *NoopMetrics) IncStolen()           {}
func (m *NoopMetrics) IncRecycled()         {}
func (m *NoopMetrics) IncPanicked()         {}
func (m *NoopMetrics) SetLiveJobs(n int)    {}

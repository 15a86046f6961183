package parfor

import (
	"runtime"

	lg "github.com/Andrej220/go-utils/zlog"
	"github.com/cockroachdb/errors"
)

// idleSpins is how many times a worker re-checks the stamp after running
// out of work before it parks.
const idleSpins = 64

// worker owns one execution slot. It parks on wake until the submitter
// signals it, then drains every bucket in priority order.
type worker struct {
	s    *Scheduler
	slot int

	// wake holds at most one pending signal.
	wake chan struct{}

	jobs    []*queuedJob
	scratch []stealCandidate
}

func newWorker(s *Scheduler, slot int) *worker {
	return &worker{
		s:       s,
		slot:    slot,
		wake:    make(chan struct{}, 1),
		jobs:    make([]*queuedJob, 0, s.opts.BucketCapacity),
		scratch: make([]stealCandidate, 0, s.opts.Workers+1),
	}
}

// signal wakes the worker if it is parked. It never blocks.
func (w *worker) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *worker) run() {
	defer w.s.wg.Done()

	if w.s.opts.PinWorkers {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		w.pin()
	}

	for {
		select {
		case <-w.wake:
		case <-w.s.done:
			w.drain()
			return
		}

		for spins := 0; spins < idleSpins; spins++ {
			if w.s.closing.Load() {
				w.drain()
				return
			}
			stamp := w.s.stamp.Load()
			if w.drain() {
				spins = 0
				continue
			}
			// Parking is only safe after a drain that saw a stable stamp.
			if w.s.stamp.Load() != stamp {
				spins = 0
				continue
			}
			runtime.Gosched()
		}
	}
}

func (w *worker) pin() {
	cpu := w.slot % runtime.NumCPU()
	if err := PinToCPU(cpu); err != nil {
		lg.FromContext(w.s.ctx).Warn("worker pinning failed",
			lg.Int("slot", w.slot),
			lg.Int("cpu", cpu),
			lg.Any("error", err),
		)
		w.s.reportInternalError(errors.Wrapf(err, "pin worker %d", w.slot))
	}
}

// drain runs iterations until a full scan over every bucket finds
// nothing, which leaves the worker's own ranges empty. The scan restarts
// from priority 0 whenever the stamp moves. It reports whether any
// iteration ran.
func (w *worker) drain() bool {
	s := w.s
	ran := false
	defer w.release()

scan:
	for {
		stamp := s.stamp.Load()
		worked := false
		for p := s.buckets.next(0); p >= 0; p = s.buckets.next(p + 1) {
			w.jobs = s.buckets.snapshot(p, w.jobs[:0])
			for _, q := range w.jobs {
				for q.tryExecuteOne(w.slot, &w.scratch) {
					worked, ran = true, true
					if s.stamp.Load() != stamp {
						continue scan
					}
				}
			}
		}
		if !worked {
			return ran
		}
	}
}

// release drops the snapshot so swept jobs are not kept reachable.
func (w *worker) release() {
	clear(w.jobs)
	w.jobs = w.jobs[:0]
}

package parfor

import (
	"context"
	"runtime"
	"time"

	boff "github.com/Andrej220/go-utils/backoff"
	lg "github.com/Andrej220/go-utils/zlog"
)

// JobHandle refers to one submission. It is a small value and may be
// copied freely.
//
// A handle goes stale once its job has been swept and reused; every
// method on a stale handle is a no-op and IsFinished reports true.
// The zero JobHandle behaves like a finished job.
type JobHandle struct {
	s   *Scheduler
	job *queuedJob
	id  uint32
}

// Valid reports whether h was returned by a multithreaded Submit.
func (h JobHandle) Valid() bool { return h.job != nil }

// ID returns the submission id, or 0 for handles that carry no job.
func (h JobHandle) ID() uint32 { return h.id }

// live returns the job if h still refers to the submission it was created
// for on s. Submitter only.
func (h JobHandle) live(s *Scheduler, op string) (*queuedJob, bool) {
	if h.job == nil {
		return nil, false
	}
	if h.s != s || h.job.id.Load() != h.id || !h.job.queued {
		lg.FromContext(s.ctx).Warn("stale job handle",
			lg.String("op", op),
			lg.Any("job", h.id),
		)
		return nil, false
	}
	return h.job, true
}

// current is like live but safe to call from any goroutine.
func (h JobHandle) current() (*queuedJob, bool) {
	if h.job == nil || h.job.id.Load() != h.id {
		return nil, false
	}
	return h.job, true
}

// IsFinished reports whether every iteration has run. Safe to call from
// any goroutine.
func (h JobHandle) IsFinished() bool {
	q, ok := h.current()
	if !ok {
		return true
	}
	return q.isFinished()
}

// Progress returns how many iterations have been credited out of the
// total. Sub-ranges are credited as a whole, so done moves in steps.
func (h JobHandle) Progress() (done, total int) {
	q, ok := h.current()
	if !ok {
		return 0, 0
	}
	d, n := q.completed.Load(), q.count.Load()
	return int(min(d, n)), int(n)
}

// WaitForFinish moves the job to the front of the queue, helps run it on
// the calling goroutine and returns once every iteration is done.
// Submitter only.
func (h JobHandle) WaitForFinish() {
	_ = h.Wait(context.Background())
}

// Wait is WaitForFinish bounded by ctx. It returns ctx.Err() if ctx ends
// first; the job keeps running in that case. Submitter only.
func (h JobHandle) Wait(ctx context.Context) error {
	s, q, ok := h.prepare("WaitForFinish")
	if !ok {
		return nil
	}

	s.BroadcastToAll(h)
	for q.tryExecuteOne(submitterSlot, &s.mainScratch) {
	}
	if q.isFinished() {
		return nil
	}

	// Other slots still hold claimed iterations.
	pol := s.opts.Wait
	bo := boff.New(pol.Initial, pol.Max, time.Now().UnixNano())
	for spins := 0; !q.isFinished(); spins++ {
		if spins < pol.Spins {
			runtime.Gosched()
			continue
		}
		timer := time.NewTimer(bo.Next())
		select {
		case <-timer.C:
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			lg.FromContext(s.ctx).With(lg.Any("job", h.id)).
				Info("wait canceled", lg.Any("reason", ctx.Err()))
			return ctx.Err()
		}
	}
	return nil
}

// ChangePriority moves the job to bucket prio. Submitter only.
func (h JobHandle) ChangePriority(prio Priority) {
	s, q, ok := h.prepare("ChangePriority")
	if !ok {
		return
	}
	s.move(q, prio)
}

// Destroy abandons the job. Iterations already running finish; the rest
// never run and the job counts as finished. Submitter only.
func (h JobHandle) Destroy() {
	_, q, ok := h.prepare("Destroy")
	if !ok {
		return
	}
	q.destroy()
	lg.FromContext(q.s.ctx).Debug("job destroyed", lg.Any("job", h.id))
}

// prepare runs the checks shared by the blocking handle methods.
func (h JobHandle) prepare(op string) (*Scheduler, *queuedJob, bool) {
	s := h.s
	if s == nil {
		return nil, nil, false
	}
	if !s.checkSubmitter(op, true) {
		return nil, nil, false
	}
	if h.job == nil {
		lg.FromContext(s.ctx).Warn("multithreading is disabled, nothing to do", lg.String("op", op))
		return nil, nil, false
	}
	q, ok := h.live(s, op)
	if !ok {
		return nil, nil, false
	}
	return s, q, true
}

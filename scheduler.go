package parfor

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"

	lg "github.com/Andrej220/go-utils/zlog"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/petermattis/goid"

	"github.com/azargarov/parfor/internal/syncutil"
)

const (
	// MaxIterations is the largest iteration count a job may have.
	MaxIterations = 1<<16 - 1

	// SweepOrder is the tick order AttachTo registers Sweep with, so it
	// runs after the rest of the tick's callbacks.
	SweepOrder uint8 = 255

	submitterSlot = 0
)

// TickRegistrar is anything that can run a callback once per tick.
// frame.Loop implements it.
type TickRegistrar interface {
	AddUpdateCallback(fn func(), order uint8) (remove func())
}

// Scheduler runs parallel-for jobs on a fixed set of worker goroutines
// plus the goroutine that created it.
//
// The creating goroutine is the submitter. Submit, ChangePriority,
// BroadcastToAll, Sweep and the blocking JobHandle methods only work
// there; from anywhere else they log, report ErrWrongGoroutine and do
// nothing.
type Scheduler struct {
	ctx     context.Context
	opts    Options
	metrics MetricsPolicy
	id      string
	owner   int64

	buckets *bucketArray
	pool    *jobPool
	workers []*worker

	// stamp is bumped on every insert, removal and priority change.
	stamp atomic.Uint64

	// Submitter-only.
	nextID      uint32
	mainScratch []stealCandidate

	// lifecycle orders Submit's insert against Shutdown, so workers'
	// final drain sees every job inserted before closing was set.
	lifecycle syncutil.RWMutex
	wg        sync.WaitGroup
	stopOnce  sync.Once
	closing   atomic.Bool
	done      chan struct{}
}

// New starts a scheduler. The calling goroutine becomes the submitter.
// ctx supplies the logger; cancelling it does not stop the scheduler,
// use Shutdown for that.
func New(ctx context.Context, opts Options) *Scheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := lg.FromContext(ctx)

	if err := opts.FillDefaults(); err != nil {
		logger.Error("applying scheduler option defaults", lg.Any("error", err))
	}
	if err := opts.Validate(); err != nil {
		logger.Error("invalid scheduler options, clamping", lg.Any("error", err))
		opts.clamp()
	}

	s := &Scheduler{
		ctx:     ctx,
		opts:    opts,
		metrics: opts.Metrics,
		id:      uuid.NewString(),
		owner:   goid.Get(),
		done:    make(chan struct{}),
	}
	slots := opts.Workers + 1
	s.buckets = newBucketArray(s, opts.BucketCapacity)
	s.pool = newJobPool(s, slots)
	s.mainScratch = make([]stealCandidate, 0, slots)

	if !opts.ForceSingleThread {
		s.workers = make([]*worker, opts.Workers)
		for i := range s.workers {
			s.workers[i] = newWorker(s, i+1)
		}
		for _, w := range s.workers {
			s.wg.Add(1)
			go w.run()
		}
	}

	logger.Info("scheduler started",
		lg.String("scheduler", s.id),
		lg.Int("workers", len(s.workers)),
		lg.Int("active_cores", opts.ActiveCores),
		lg.Any("single_thread", opts.ForceSingleThread),
	)
	return s
}

// checkSubmitter reports whether the caller is the submitting goroutine.
// Hard violations are logged as errors, soft ones as warnings.
func (s *Scheduler) checkSubmitter(op string, hard bool) bool {
	if goid.Get() == s.owner {
		return true
	}
	err := errors.Wrapf(ErrWrongGoroutine, "%s", op)
	logger := lg.FromContext(s.ctx)
	if hard {
		logger.Error("operation called off the submitting goroutine", lg.String("op", op))
	} else {
		logger.Warn("operation called off the submitting goroutine", lg.String("op", op))
	}
	s.reportInternalError(err)
	submitterViolation(err)
	return false
}

// InSubmitter reports whether the caller is the submitting goroutine.
func (s *Scheduler) InSubmitter() bool {
	return goid.Get() == s.owner
}

// Submit queues job for iterations indices at priority prio and wakes
// workers. The returned handle is the only way to wait for, reprioritise
// or abandon the job.
//
// With ForceSingleThread, or after Shutdown, every iteration runs inline
// in increasing order before Submit returns and the handle is a no-op.
func (s *Scheduler) Submit(job Job, iterations uint16, prio Priority) JobHandle {
	if !s.checkSubmitter("Submit", false) {
		return JobHandle{}
	}
	if job == nil {
		lg.FromContext(s.ctx).Warn("nil job submitted")
		return JobHandle{}
	}

	if s.opts.ForceSingleThread {
		return s.runAllInline(job, iterations)
	}

	s.lifecycle.RLock()
	if s.closing.Load() {
		s.lifecycle.RUnlock()
		lg.FromContext(s.ctx).Warn("scheduler closed, running job inline",
			lg.Int("iterations", int(iterations)))
		s.reportInternalError(ErrSchedulerClosed)
		return s.runAllInline(job, iterations)
	}

	q := s.pool.Get()
	s.nextID++
	if s.nextID == 0 {
		s.nextID++
	}
	q.init(job, iterations, prio, s.nextID)
	s.enqueue(q)
	s.stamp.Add(1)
	s.lifecycle.RUnlock()

	s.metrics.IncSubmitted()
	s.wakeWorkers()

	return JobHandle{s: s, job: q, id: s.nextID}
}

func (s *Scheduler) runAllInline(job Job, iterations uint16) JobHandle {
	s.metrics.IncSubmitted()
	for i := range int(iterations) {
		s.runInline(job, i)
	}
	s.metrics.AddCompleted(int64(iterations))
	return JobHandle{s: s}
}

// For runs job for every index in [0, iterations) and returns once all of
// them are done. The submitting goroutine takes part in the work.
func (s *Scheduler) For(iterations uint16, job Job) {
	if h := s.Submit(job, iterations, PriorityUrgent); h.Valid() {
		h.WaitForFinish()
	}
}

// ChangePriority moves the job behind h to bucket prio.
func (s *Scheduler) ChangePriority(h JobHandle, prio Priority) {
	if !s.checkSubmitter("ChangePriority", false) {
		return
	}
	s.changePriority(h, prio)
}

// BroadcastToAll moves the job to priority 0 so every worker picks it up
// before anything else.
func (s *Scheduler) BroadcastToAll(h JobHandle) {
	s.ChangePriority(h, PriorityUrgent)
}

func (s *Scheduler) changePriority(h JobHandle, prio Priority) {
	if q, ok := h.live(s, "ChangePriority"); ok {
		s.move(q, prio)
	}
}

// move re-buckets a live job. Submitter only.
func (s *Scheduler) move(q *queuedJob, prio Priority) {
	s.buckets.remove(q.priority, q)
	q.priority = prio
	s.enqueue(q)
	s.stamp.Add(1)
	s.wakeWorkers()
}

func (s *Scheduler) enqueue(q *queuedJob) {
	s.buckets.insert(q.priority, q)
	q.queued = true
}

// Sweep removes every finished job from the buckets and returns it to the
// pool. It is meant to run once per tick; see AttachTo.
func (s *Scheduler) Sweep() {
	if !s.checkSubmitter("Sweep", false) {
		return
	}

	removed := 0
	for p := s.buckets.next(0); p >= 0; p = s.buckets.next(p + 1) {
		prio := Priority(p)
		for i := s.buckets.size(prio) - 1; i >= 0; i-- {
			q := s.buckets.at(prio, i)
			if !q.reclaimable() {
				continue
			}
			s.buckets.removeAt(prio, i)
			q.queued = false
			q.fn = nil
			s.pool.Put(q)
			s.metrics.IncRecycled()
			removed++
		}
	}
	if removed > 0 {
		s.stamp.Add(1)
	}
	s.metrics.SetLiveJobs(s.buckets.len())
}

// AttachTo registers Sweep to run on every tick of r, after the other
// callbacks. r must tick on the submitting goroutine.
func (s *Scheduler) AttachTo(r TickRegistrar) (remove func()) {
	return r.AddUpdateCallback(s.Sweep, SweepOrder)
}

// wakeWorkers signals enough workers to keep ActiveCores cores busy,
// starting from the highest slot, which owns fresh jobs. That slot is
// always woken: a range is never split below two indices, so only its
// owner can run the last one.
func (s *Scheduler) wakeWorkers() {
	n := min(max(s.opts.ActiveCores-1, 1), len(s.workers))
	for i := range n {
		s.workers[len(s.workers)-1-i].signal()
	}
}

func (s *Scheduler) runInline(job Job, i int) {
	defer func() {
		if r := recover(); r != nil {
			s.iterationPanicked(0, i, r)
		}
	}()
	job(i)
}

// iterationPanicked logs and reports a recovered panic. The iteration
// still counts as completed.
func (s *Scheduler) iterationPanicked(job uint32, index int, r any) {
	err := errors.Wrapf(ErrIterationPanic, "job %d iteration %d: %v", job, index, r)
	lg.FromContext(s.ctx).Error("iteration panicked",
		lg.Any("job", job),
		lg.Int("iteration", index),
		lg.Any("panic", r),
		lg.String("stack", string(debug.Stack())),
	)
	s.metrics.IncPanicked()
	s.reportJobError(err)
}

// Stamp returns the generation counter. It changes whenever a job is
// added, removed or moved between buckets.
func (s *Scheduler) Stamp() uint64 { return s.stamp.Load() }

// ID identifies the scheduler in logs.
func (s *Scheduler) ID() string { return s.id }

// NumWorkers returns the number of dedicated worker goroutines.
func (s *Scheduler) NumWorkers() int { return len(s.workers) }

// Slots returns the number of execution slots per job.
func (s *Scheduler) Slots() int { return s.opts.Workers + 1 }

// LiveJobs returns how many jobs the priority buckets hold.
func (s *Scheduler) LiveJobs() int { return s.buckets.len() }

// PooledJobs returns how many retired jobs wait for reuse.
// Submitter only.
func (s *Scheduler) PooledJobs() int { return s.pool.Len() }

// Shutdown stops the workers and waits for them to exit or for ctx to
// expire. Every worker runs the iterations it can still claim before it
// exits, so handles of jobs queued earlier can still be waited on.
// Later submissions run inline. Safe to call from any goroutine.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.lifecycle.Lock()
		s.closing.Store(true)
		s.lifecycle.Unlock()
		close(s.done)
		lg.FromContext(s.ctx).Info("scheduler stopping", lg.String("scheduler", s.id))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop is a blocking Shutdown.
func (s *Scheduler) Stop() { _ = s.Shutdown(context.Background()) }

package parfor

// jobPool is the free list of retired jobs.
//
// Get and Put are only called by the submitting goroutine, so it needs
// no locking. It grows to the high-water mark of concurrently live jobs.
type jobPool struct {
	free  []*queuedJob
	slots int
	s     *Scheduler
}

func newJobPool(s *Scheduler, slots int) *jobPool {
	return &jobPool{s: s, slots: slots}
}

// Get returns a retired job, or a new one when none is left.
func (p *jobPool) Get() *queuedJob {
	n := len(p.free)
	if n == 0 {
		return newQueuedJob(p.s, p.slots)
	}
	j := p.free[n-1]
	p.free[n-1] = nil
	p.free = p.free[:n-1]
	return j
}

// Put returns a finished job to the pool.
func (p *jobPool) Put(j *queuedJob) {
	if j == nil {
		return
	}
	p.free = append(p.free, j)
	statRecycled()
}

func (p *jobPool) Len() int { return len(p.free) }

package parfor

import (
	"errors"
	"slices"
	"testing"

	crdberrors "github.com/cockroachdb/errors"
)

func bucketJobs(t *testing.T, s *Scheduler, n int) []*queuedJob {
	t.Helper()

	jobs := make([]*queuedJob, n)
	for i := range jobs {
		jobs[i] = newQueuedJob(s, s.Slots())
		jobs[i].id.Store(uint32(i + 1))
	}
	return jobs
}

func TestUrgentBucketKeepsNewestFirst(t *testing.T) {
	s := newIdleScheduler(t, 1)
	b := s.buckets
	j := bucketJobs(t, s, 4)

	for _, q := range j {
		b.insert(PriorityUrgent, q)
	}
	if got, want := b.snapshot(0, nil), []*queuedJob{j[3], j[2], j[1], j[0]}; !slices.Equal(got, want) {
		t.Fatal("bucket 0 is not newest first")
	}

	if !b.remove(PriorityUrgent, j[2]) {
		t.Fatal("remove failed")
	}
	if got, want := b.snapshot(0, nil), []*queuedJob{j[3], j[1], j[0]}; !slices.Equal(got, want) {
		t.Fatal("removal from bucket 0 reordered the rest")
	}
}

func TestOtherBucketsSwapRemove(t *testing.T) {
	s := newIdleScheduler(t, 1)
	b := s.buckets
	j := bucketJobs(t, s, 3)

	for _, q := range j {
		b.insert(42, q)
	}
	if got, want := b.snapshot(42, nil), []*queuedJob{j[0], j[1], j[2]}; !slices.Equal(got, want) {
		t.Fatal("bucket 42 is not in insertion order")
	}

	b.remove(42, j[0])
	if got, want := b.snapshot(42, nil), []*queuedJob{j[2], j[1]}; !slices.Equal(got, want) {
		t.Fatal("removal did not move the last job into the hole")
	}
	if b.len() != 2 {
		t.Fatalf("len = %d; want 2", b.len())
	}
}

func TestNextSkipsEmptyBuckets(t *testing.T) {
	s := newIdleScheduler(t, 1)
	b := s.buckets
	j := bucketJobs(t, s, 3)

	if p := b.next(0); p != -1 {
		t.Fatalf("next on empty buckets = %d; want -1", p)
	}

	b.insert(70, j[0])
	b.insert(255, j[1])
	b.insert(3, j[2])

	var got []int
	for p := b.next(0); p >= 0; p = b.next(p + 1) {
		got = append(got, p)
	}
	if want := []int{3, 70, 255}; !slices.Equal(got, want) {
		t.Fatalf("scan = %v; want %v", got, want)
	}

	b.remove(70, j[0])
	if p := b.next(4); p != 255 {
		t.Fatalf("next(4) after emptying 70 = %d; want 255", p)
	}
	if p := b.next(256); p != -1 {
		t.Fatalf("next(256) = %d; want -1", p)
	}
}

func TestRemoveMissingJobIsReported(t *testing.T) {
	var rec []error
	s := newIdleScheduler(t, 1, func(o *Options) {
		o.OnInternalError = func(err error) { rec = append(rec, err) }
	})
	b := s.buckets
	j := bucketJobs(t, s, 2)

	b.insert(9, j[0])
	if b.remove(9, j[1]) {
		t.Fatal("removing a job that is not there succeeded")
	}
	if len(rec) != 1 || !errors.Is(rec[0], ErrMissingJob) {
		t.Fatalf("internal errors = %v; want one ErrMissingJob", rec)
	}
	if !crdberrors.IsAssertionFailure(rec[0]) {
		t.Fatalf("%v is not flagged as an assertion failure", rec[0])
	}
	if b.len() != 1 || b.size(9) != 1 {
		t.Fatal("failed remove changed the bucket")
	}
}

func TestBucketGrowsByStep(t *testing.T) {
	s := newIdleScheduler(t, 1, func(o *Options) {
		o.BucketCapacity = 2
		o.BucketGrowth = 3
	})
	b := s.buckets
	j := bucketJobs(t, s, 3)

	for _, q := range j {
		b.insert(PriorityDefault, q)
	}
	if c := cap(b.buckets[PriorityDefault].items); c != 5 {
		t.Fatalf("cap = %d; want 5", c)
	}
	if b.size(PriorityDefault) != 3 {
		t.Fatalf("size = %d; want 3", b.size(PriorityDefault))
	}
}

func TestSweepReturnsJobsToPool(t *testing.T) {
	s := newIdleScheduler(t, 1)

	h := s.Submit(func(int) {}, 3, 12)
	var scratch []stealCandidate
	for h.job.tryExecuteOne(1, &scratch) {
	}
	q := h.job

	s.Sweep()

	if s.LiveJobs() != 0 || s.PooledJobs() != 1 {
		t.Fatalf("live/pooled = %d/%d; want 0/1", s.LiveJobs(), s.PooledJobs())
	}
	if q.queued || q.fn != nil {
		t.Fatal("swept job still marked queued or holds its callback")
	}
	if again := s.Submit(func(int) {}, 1, 12); again.job != q {
		t.Fatal("next submit did not reuse the swept job")
	}
}

func TestChangePriorityMovesJob(t *testing.T) {
	s := newIdleScheduler(t, 1)

	h := s.Submit(func(int) {}, 3, 200)
	h.ChangePriority(PriorityUrgent)

	if s.buckets.size(200) != 0 || s.buckets.size(PriorityUrgent) != 1 {
		t.Fatal("job did not move to bucket 0")
	}
	if h.job.priority != PriorityUrgent {
		t.Fatalf("priority = %d; want 0", h.job.priority)
	}
	if s.LiveJobs() != 1 {
		t.Fatalf("LiveJobs = %d; want 1", s.LiveJobs())
	}
}

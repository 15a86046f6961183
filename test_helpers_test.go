package parfor_test

import (
	"context"
	"crypto/sha256"
	"os"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	pf "github.com/azargarov/parfor"
)

type workload struct {
	name string
	fn   pf.Job
}

var shaData = []byte("some deterministic payloadsome deterministic payloadsome deterministic payloadsome deterministic payload")

var (
	emptyWork = func(int) {}

	cpuWork = func(int) {
		x := 0
		for i := range 1000 {
			x += i * i
		}
		_ = x
	}

	shaWork = func(int) {
		_ = sha256.Sum256(shaData)
	}
)

var workloads = []workload{
	{"empty ", emptyWork},
	{"sha256", shaWork},
	{"cpu   ", cpuWork},
}

// errRecorder collects errors passed to the Options hooks.
type errRecorder struct {
	mu   sync.Mutex
	errs []error
}

func (r *errRecorder) record(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *errRecorder) all() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func newTestOptions(workers int) pf.Options {
	return pf.Options{
		Workers:     workers,
		ActiveCores: workers + 1,
	}
}

// newTestScheduler starts a scheduler owned by the calling goroutine and
// stops it when the test ends.
func newTestScheduler(t *testing.T, workers int) *pf.Scheduler {
	t.Helper()

	s := pf.New(context.Background(), newTestOptions(workers))
	t.Cleanup(s.Stop)
	return s
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		runtime.Gosched()
	}
	t.Fatal("condition not satisfied before timeout")
}

// inOtherGoroutine runs fn on a fresh goroutine and waits for it.
func inOtherGoroutine(fn func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	<-done
}

func getenvInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

package parfor_test

import (
	"context"
	"fmt"
	"runtime"
	"testing"

	pf "github.com/azargarov/parfor"
)

// -----------------------------------------------------------------------------
// Scheduler helpers
// -----------------------------------------------------------------------------

func benchOptions(workers int, pinned bool) pf.Options {
	return pf.Options{
		Workers:     workers,
		ActiveCores: workers + 1,
		PinWorkers:  pinned,
	}
}

func BenchmarkSubmitWaitSweep(b *testing.B) {
	s := pf.New(context.Background(), benchOptions(runtime.GOMAXPROCS(0)-1, false))
	defer s.Stop()

	b.ReportAllocs()

	for b.Loop() {
		s.Submit(emptyWork, 64, pf.PriorityDefault).WaitForFinish()
		s.Sweep()
	}
}

func BenchmarkFor(b *testing.B) {
	workers := getenvInt("PARFOR_BENCH_WORKERS", runtime.GOMAXPROCS(0)-1)
	iterations := uint16(getenvInt("PARFOR_BENCH_ITERATIONS", 4096))

	for _, w := range workloads {
		for _, pinned := range []bool{false, true} {
			b.Run(fmt.Sprintf("%s/pinned=%v", w.name, pinned), func(b *testing.B) {
				s := pf.New(context.Background(), benchOptions(workers, pinned))
				defer s.Stop()

				b.ReportAllocs()

				rounds := 0
				for b.Loop() {
					s.For(iterations, w.fn)
					s.Sweep()
					rounds++
				}
				b.ReportMetric(float64(iterations)*float64(rounds)/b.Elapsed().Seconds(), "iter/s")
			})
		}
	}
}

func BenchmarkFrame(b *testing.B) {
	const jobsPerFrame = 8

	s := pf.New(context.Background(), benchOptions(runtime.GOMAXPROCS(0)-1, false))
	defer s.Stop()

	handles := make([]pf.JobHandle, 0, jobsPerFrame)

	b.ReportAllocs()

	for b.Loop() {
		handles = handles[:0]
		for i := range jobsPerFrame {
			handles = append(handles, s.Submit(shaWork, 256, pf.Priority(i*16)))
		}
		for _, h := range handles {
			h.WaitForFinish()
		}
		s.Sweep()
	}
}

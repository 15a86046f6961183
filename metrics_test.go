package parfor_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	pf "github.com/azargarov/parfor"
)

func TestPrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := pf.NewPrometheusMetrics(reg)

	opts := newTestOptions(2)
	opts.Metrics = m
	s := pf.New(context.Background(), opts)
	defer s.Stop()

	s.For(300, emptyWork)
	s.Sweep()

	if n, err := testutil.GatherAndCount(reg); err != nil || n != 6 {
		t.Fatalf("gathered %d metric families (err %v); want 6", n, err)
	}

	want := map[string]float64{
		"parfor_jobs_submitted_total":       1,
		"parfor_iterations_completed_total": 300,
		"parfor_jobs_recycled_total":        1,
		"parfor_live_jobs":                  0,
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		exp, ok := want[f.GetName()]
		if !ok {
			continue
		}
		got := f.GetMetric()[0].GetCounter().GetValue()
		if g := f.GetMetric()[0].GetGauge(); g != nil {
			got = g.GetValue()
		}
		if got != exp {
			t.Fatalf("%s = %v; want %v", f.GetName(), got, exp)
		}
		delete(want, f.GetName())
	}
	if len(want) != 0 {
		t.Fatalf("metrics not exported: %v", want)
	}
}

func TestAtomicMetricsCountsIterations(t *testing.T) {
	m := &pf.AtomicMetrics{}
	opts := newTestOptions(4)
	opts.Metrics = m
	s := pf.New(context.Background(), opts)
	defer s.Stop()

	s.For(pf.MaxIterations, cpuWork)

	if m.Completed() != pf.MaxIterations {
		t.Fatalf("completed = %d; want %d", m.Completed(), pf.MaxIterations)
	}
	if m.Submitted() != 1 {
		t.Fatalf("submitted = %d; want 1", m.Submitted())
	}
}

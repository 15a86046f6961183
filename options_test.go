package parfor

import (
	"context"
	"testing"
	"time"
)

func TestNewClampsInvalidOptions(t *testing.T) {
	s := New(context.Background(), Options{
		Workers:           MaxWorkers + 10,
		ActiveCores:       2,
		ForceSingleThread: true,
		BucketCapacity:    -1,
		BucketGrowth:      -1,
		Wait:              WaitPolicy{Spins: -3, Initial: time.Second, Max: time.Millisecond},
	})
	defer s.Stop()

	o := s.opts
	if err := o.Validate(); err != nil {
		t.Fatalf("clamped options still invalid: %v", err)
	}
	if o.Workers != MaxWorkers {
		t.Fatalf("workers = %d; want %d", o.Workers, MaxWorkers)
	}
	if o.BucketCapacity != 64 || o.BucketGrowth != 64 {
		t.Fatalf("bucket capacity/growth = %d/%d; want 64/64", o.BucketCapacity, o.BucketGrowth)
	}
	if o.Wait.Spins != 20 || o.Wait.Initial != time.Millisecond {
		t.Fatalf("wait policy = %+v; want 20 spins and initial clamped to max", o.Wait)
	}
}

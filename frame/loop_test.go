package frame_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/azargarov/parfor/frame"
)

func TestTickRunsCallbacksByOrder(t *testing.T) {
	l := frame.New(context.Background())

	var got []string
	l.AddUpdateCallback(func() { got = append(got, "late") }, 255)
	l.AddUpdateCallback(func() { got = append(got, "first") }, 0)
	l.AddUpdateCallback(func() { got = append(got, "mid-a") }, 10)
	l.AddUpdateCallback(func() { got = append(got, "mid-b") }, 10)

	l.Tick()

	want := []string{"first", "mid-a", "mid-b", "late"}
	if !slices.Equal(got, want) {
		t.Fatalf("order = %v; want %v", got, want)
	}
	if l.Ticks() != 1 {
		t.Fatalf("Ticks = %d; want 1", l.Ticks())
	}
}

func TestRemoveCallback(t *testing.T) {
	l := frame.New(context.Background())

	calls := 0
	remove := l.AddUpdateCallback(func() { calls++ }, 5)
	l.Tick()
	remove()
	remove()
	l.Tick()

	if calls != 1 {
		t.Fatalf("calls = %d; want 1", calls)
	}
	if l.Len() != 0 {
		t.Fatalf("Len = %d; want 0", l.Len())
	}
}

func TestPanickingCallbackDoesNotStopTick(t *testing.T) {
	l := frame.New(context.Background())

	ran := false
	l.AddUpdateCallback(func() { panic("boom") }, 0)
	l.AddUpdateCallback(func() { ran = true }, 1)

	l.Tick()

	if !ran {
		t.Fatal("callback after the panicking one did not run")
	}
}

func TestRunStopsOnContext(t *testing.T) {
	l := frame.New(context.Background())

	ticks := 0
	l.AddUpdateCallback(func() { ticks++ }, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := l.Run(ctx, time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run error = %v; want deadline exceeded", err)
	}
	if ticks == 0 {
		t.Fatal("Run never ticked")
	}
}

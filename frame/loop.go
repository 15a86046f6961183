// Package frame runs per-tick update callbacks in a fixed order.
//
// A Loop is driven by one goroutine, either by calling Tick directly or
// through Run. Callbacks always run on that goroutine, which makes a Loop
// the natural home for work that must stay on one goroutine, such as
// parfor.Scheduler.Sweep.
package frame

import (
	"cmp"
	"context"
	"runtime/debug"
	"slices"
	"sync/atomic"
	"time"

	lg "github.com/Andrej220/go-utils/zlog"

	"github.com/azargarov/parfor/internal/syncutil"
)

type callback struct {
	id    uint64
	order uint8
	fn    func()
}

// Loop holds the registered callbacks. Registration is safe from any
// goroutine; Tick is not reentrant.
type Loop struct {
	ctx context.Context

	mu        syncutil.Mutex
	callbacks []callback
	nextID    uint64

	// scratch is only touched by the ticking goroutine.
	scratch []callback
	ticks   atomic.Uint64
}

// New returns an empty loop. ctx supplies the logger.
func New(ctx context.Context) *Loop {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Loop{ctx: ctx}
}

// AddUpdateCallback registers fn to run on every tick. Lower orders run
// first; equal orders run in registration order. The returned function
// unregisters fn and may be called more than once.
func (l *Loop) AddUpdateCallback(fn func(), order uint8) (remove func()) {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.callbacks = append(l.callbacks, callback{id: id, order: order, fn: fn})
	slices.SortStableFunc(l.callbacks, func(a, b callback) int {
		return cmp.Compare(a.order, b.order)
	})
	l.mu.Unlock()

	return func() { l.remove(id) }
}

func (l *Loop) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callbacks = slices.DeleteFunc(l.callbacks, func(c callback) bool {
		return c.id == id
	})
}

// Len returns the number of registered callbacks.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.callbacks)
}

// Ticks returns how many ticks have completed.
func (l *Loop) Ticks() uint64 { return l.ticks.Load() }

// Tick runs every registered callback once. A panicking callback is
// logged and the rest still run.
func (l *Loop) Tick() {
	l.mu.Lock()
	l.scratch = append(l.scratch[:0], l.callbacks...)
	l.mu.Unlock()

	for _, c := range l.scratch {
		l.call(c)
	}
	clear(l.scratch)
	l.ticks.Add(1)
}

func (l *Loop) call(c callback) {
	defer func() {
		if r := recover(); r != nil {
			lg.FromContext(l.ctx).Error("update callback panicked",
				lg.Int("order", int(c.order)),
				lg.Any("panic", r),
				lg.String("stack", string(debug.Stack())),
			)
		}
	}()
	c.fn()
}

// Run ticks every interval on the calling goroutine until ctx ends and
// returns ctx.Err().
func (l *Loop) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.Tick()
		}
	}
}

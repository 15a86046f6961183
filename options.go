package parfor

import (
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
)

// MaxWorkers bounds the number of dedicated worker goroutines.
const MaxWorkers = 256

// Options configure a Scheduler.
//
// Zero values are replaced in FillDefaults: tagged fields from their
// `default` tag, the rest from the machine.
type Options struct {
	// Workers is the number of dedicated worker goroutines. The submitting
	// goroutine is an extra execution slot on top of these.
	// Defaults to NumCPU-1, minimum 1.
	Workers int

	// ActiveCores is how many cores the scheduler may keep busy, counting
	// the submitting goroutine. Submit wakes ActiveCores-1 workers, which
	// leaves the remaining cores to the host application.
	// Defaults to NumCPU.
	ActiveCores int

	// ForceSingleThread runs every submitted job inline on the calling
	// goroutine. No worker ever touches the job. Meant for debugging and
	// deterministic runs.
	ForceSingleThread bool

	// PinWorkers locks each worker to an OS thread bound to one CPU.
	// Only honoured on Linux.
	PinWorkers bool

	// BucketCapacity is the initial capacity of every priority bucket.
	BucketCapacity int `default:"64"`

	// BucketGrowth is how many slots a full bucket grows by.
	BucketGrowth int `default:"64"`

	// Wait tunes how WaitForFinish waits for other slots to finish.
	Wait WaitPolicy

	// Metrics receives scheduler counters. Defaults to NoopMetrics.
	Metrics MetricsPolicy

	// OnJobError is called with errors produced by recovered iteration
	// panics. It may be called concurrently from any worker.
	OnJobError func(error)

	// OnInternalError is called on misuse and invariant violations.
	OnInternalError func(error)
}

// FillDefaults replaces zero values with defaults.
func (o *Options) FillDefaults() error {
	if err := defaults.Set(o); err != nil {
		return errors.Wrap(err, "parfor: applying option defaults")
	}

	cores := runtime.NumCPU()
	if o.Workers <= 0 {
		o.Workers = max(1, cores-1)
	}
	if o.ActiveCores <= 0 {
		o.ActiveCores = cores
	}
	if o.Metrics == nil {
		o.Metrics = &NoopMetrics{}
	}
	return nil
}

// Validate reports options that FillDefaults cannot repair.
func (o *Options) Validate() error {
	switch {
	case o.Workers > MaxWorkers:
		return errors.Newf("parfor: %d workers requested, at most %d supported", o.Workers, MaxWorkers)
	case o.BucketCapacity < 0 || o.BucketGrowth < 0:
		return errors.Newf("parfor: negative bucket capacity %d or growth %d", o.BucketCapacity, o.BucketGrowth)
	case o.Wait.Spins < 0 || o.Wait.Initial < 0 || o.Wait.Max < 0:
		return errors.Newf("parfor: negative wait policy %+v", o.Wait)
	case o.Wait.Initial > o.Wait.Max:
		return errors.Newf("parfor: wait policy initial backoff %s exceeds max %s", o.Wait.Initial, o.Wait.Max)
	}
	return nil
}

// clamp repairs whatever Validate rejected.
func (o *Options) clamp() {
	var d Options
	defaults.MustSet(&d)

	o.Workers = min(o.Workers, MaxWorkers)
	if o.BucketCapacity < 0 {
		o.BucketCapacity = d.BucketCapacity
	}
	if o.BucketGrowth < 0 {
		o.BucketGrowth = d.BucketGrowth
	}
	if o.Wait.Spins < 0 {
		o.Wait.Spins = d.Wait.Spins
	}
	if o.Wait.Initial < 0 {
		o.Wait.Initial = d.Wait.Initial
	}
	if o.Wait.Max < 0 {
		o.Wait.Max = d.Wait.Max
	}
	o.Wait.Initial = min(o.Wait.Initial, o.Wait.Max)
}

package parfor

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrWrongGoroutine is reported when a submitter-only operation is
	// called from any goroutine other than the one that created the
	// Scheduler.
	ErrWrongGoroutine = errors.New("parfor: called off the submitting goroutine")

	// ErrMissingJob is reported when a bucket is asked to remove a job it
	// does not hold.
	ErrMissingJob = errors.New("parfor: job not found in priority bucket")

	// ErrCompletedOverflow is reported when a job has credited more
	// iterations than it has.
	ErrCompletedOverflow = errors.New("parfor: completed iterations exceed iteration count")

	// ErrIterationPanic wraps panics recovered from job callbacks.
	ErrIterationPanic = errors.New("parfor: iteration panicked")

	// ErrSchedulerClosed is reported when work is submitted after Shutdown.
	ErrSchedulerClosed = errors.New("parfor: scheduler closed")
)

// reportInternalError reports an internal scheduler error.
//
// Internal errors are misuse and invariant violations. They never stop
// the scheduler. If no handler is registered, the error is only logged.
func (s *Scheduler) reportInternalError(e error) {
	if s.opts.OnInternalError != nil {
		s.opts.OnInternalError(e)
	}
}

// reportJobError reports an error produced by panic recovery inside a job
// callback. Called from whichever goroutine ran the iteration.
func (s *Scheduler) reportJobError(err error) {
	if s.opts.OnJobError != nil {
		s.opts.OnJobError(err)
	}
}

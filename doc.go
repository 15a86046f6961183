// Package parfor provides a work-stealing parallel-for scheduler for
// frame-driven programs.
//
// Design goals
//
// The package is designed around the following principles:
//
//   - No allocation per submission once the job pool is warm
//   - Short critical sections; workers survey ranges without locks
//   - The submitting goroutine helps instead of idling
//   - Urgent work overtakes everything already queued
//
// Architecture overview
//
// The scheduler is composed of four layers:
//
//  1. Jobs
//     A job is a function called once for every index in
//     [0, iterations). Its iteration space is split into one range per
//     execution slot. Slot 0 belongs to the submitting goroutine, slots
//     1..Workers to the worker goroutines.
//
//  2. Priority buckets
//     Live jobs sit in one of 256 buckets. Workers scan them from
//     priority 0 upwards and restart the scan whenever the generation
//     stamp changes. Bucket 0 keeps the newest job first.
//
//  3. Workers
//     Each worker parks on its own wake channel. Submit wakes
//     ActiveCores-1 of them, starting from the highest slot.
//
//  4. Sweep
//     Finished jobs stay in their bucket until Sweep returns them to the
//     job pool. Sweep is meant to run once per tick; AttachTo hooks it
//     into a frame.Loop.
//
// Work stealing
//
// A slot first runs indices from its own range. When that is empty it
// surveys the other slots, tries them largest first, and moves the upper
// half of the first range it can split into its own slot. A sub-range
// is credited to the job as a whole once its last index has run.
//
// Threading model
//
// The goroutine that calls New is the submitter. Submit, ChangePriority,
// Sweep and the blocking JobHandle methods must be called there. Calls
// from other goroutines are logged, reported as ErrWrongGoroutine and
// ignored. Builds with the debug tag panic instead.
//
// Error handling
//
// The scheduler distinguishes between two classes of errors:
//
//   - Job errors: panics recovered from job callbacks
//   - Internal errors: misuse and broken invariants
//
// Both are logged and passed to the optional handlers in Options. None
// of them stop the scheduler. A panicking iteration still counts as
// completed.
//
// CPU pinning
//
// On Linux, workers may optionally be pinned to specific CPUs.
// When enabled, workers are locked to OS threads and restricted
// to run on a single CPU core.
//
// Build tags
//
//   - debug: steal statistics (StatSnapshot) and fatal misuse
//   - deadlock: range and bucket locks report suspected deadlocks
package parfor

//go:build !deadlock

// Package syncutil holds the mutex types used by the scheduler.
//
// Building with the deadlock tag swaps them for go-deadlock's detecting
// implementations without touching call sites.
package syncutil

import "sync"

// DeadlockEnabled is true if the deadlock detector is enabled.
const DeadlockEnabled = false

// A Mutex is a mutual exclusion lock.
type Mutex struct {
	sync.Mutex
}

// An RWMutex is a reader/writer mutual exclusion lock.
type RWMutex struct {
	sync.RWMutex
}

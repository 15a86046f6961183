//go:build debug

package parfor

import (
	"fmt"
	"sync/atomic"
)

const debugBuild = true

var statDbg struct {
	stealAttempts atomic.Uint64
	stealMisses   atomic.Uint64
	stealAborts   atomic.Uint64
	recycled      atomic.Uint64
}

func statStealAttempt() { statDbg.stealAttempts.Add(1) }
func statStealMiss()    { statDbg.stealMisses.Add(1) }
func statStealAbort()   { statDbg.stealAborts.Add(1) }
func statRecycled()     { statDbg.recycled.Add(1) }

// StatSnapshot formats the debug counters.
func StatSnapshot() string {
	return fmt.Sprintf(
		"steals: attempts=%d misses=%d aborts=%d recycled=%d",
		statDbg.stealAttempts.Load(),
		statDbg.stealMisses.Load(),
		statDbg.stealAborts.Load(),
		statDbg.recycled.Load(),
	)
}

// submitterViolation makes off-goroutine misuse fatal in debug builds.
func submitterViolation(err error) {
	panic(err)
}

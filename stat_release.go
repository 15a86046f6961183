//go:build !debug

package parfor

func statStealAttempt() {}
func statStealMiss()    {}
func statStealAbort()   {}
func statRecycled()     {}

// StatSnapshot returns an empty string unless built with the debug tag.
func StatSnapshot() string { return "" }

// submitterViolation is a logged no-op in release builds.
func submitterViolation(error) {}

const debugBuild = false

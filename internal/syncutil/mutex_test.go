package syncutil

import (
	"sync"
	"testing"
)

func TestMutexExcludes(t *testing.T) {
	var (
		mu Mutex
		wg sync.WaitGroup
		n  int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				mu.Lock()
				n++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if n != 8000 {
		t.Fatalf("n = %d; want 8000", n)
	}
}

func TestRWMutexReaders(t *testing.T) {
	var mu RWMutex
	mu.RLock()
	mu.RLock()
	mu.RUnlock()
	mu.RUnlock()
	mu.Lock()
	mu.Unlock()
}

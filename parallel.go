package nclr

import (
	"runtime"
	"sync"
)

// maxParallelWorkers caps goroutines used for band processing. Zero means
// GOMAXPROCS.
var maxParallelWorkers = 0

var (
	workerSemOnce sync.Once
	workerSem     chan struct{}
)

// parallelFor splits [0,total) into contiguous bands and runs fn on each
// band concurrently. Bands never overlap, so fn may write its band of a
// shared slice without locking.
func parallelFor(total int, fn func(start, end int)) {
	if total <= 0 {
		return
	}
	capacity := runtime.GOMAXPROCS(0)
	if maxParallelWorkers > 0 && capacity > maxParallelWorkers {
		capacity = maxParallelWorkers
	}
	if capacity < 1 {
		capacity = 1
	}
	workerSemOnce.Do(func() {
		workerSem = make(chan struct{}, capacity)
	})
	if cap(workerSem) < capacity {
		capacity = cap(workerSem)
		if capacity < 1 {
			capacity = 1
		}
	}
	workers := capacity
	if workers > total {
		workers = total
	}
	if workers <= 1 {
		fn(0, total)
		return
	}
	step := (total + workers - 1) / workers
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		start := i * step
		end := start + step
		if end > total {
			end = total
		}
		if start >= end {
			break
		}
		workerSem <- struct{}{}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			defer func() { <-workerSem }()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

package dynamo

import (
	"runtime"
	"sync"
)

// Chunk is a half-open index range [Start, End).
type Chunk struct{ Start, End int }

// Chunks splits [0, n) into at most workers contiguous ranges of at least
// minChunk indices each. The ranges cover [0, n) in order.
func Chunks(n, minChunk, workers int) []Chunk {
	if n <= 0 {
		return nil
	}
	if minChunk > 0 {
		workers = min(workers, n/minChunk)
	}
	workers = max(workers, 1)

	size := (n + workers - 1) / workers
	out := make([]Chunk, 0, workers)
	for start := 0; start < n; start += size {
		out = append(out, Chunk{start, min(start+size, n)})
	}
	return out
}

// ParallelFor calls fn on the chunks of [0, n), one goroutine per chunk,
// and waits for all of them. Small ranges run on the calling goroutine.
func ParallelFor(n, minChunk int, fn func(start, end int)) {
	chunks := Chunks(n, minChunk, runtime.NumCPU())
	if len(chunks) <= 1 {
		if n > 0 {
			fn(0, n)
		}
		return
	}

	var wg sync.WaitGroup
	for _, c := range chunks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(c.Start, c.End)
		}()
	}
	wg.Wait()
}

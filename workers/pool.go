// Package workers provides the data-parallel worker pool used by every
// per-agent phase of the tick.
package workers

import (
	"runtime"
	"sync"
)

// DefaultThreshold is the minimum item count to use parallel processing.
// Below this, single-threaded is faster due to goroutine overhead.
const DefaultThreshold = 1024

// Runner splits [0, n) into contiguous chunks and calls fn once per chunk.
// worker is in [0, Workers()) and is unique among concurrently running
// chunks, so callers may index per-worker scratch with it. Run returns after
// every chunk has finished.
type Runner interface {
	Workers() int
	Run(n int, fn func(lo, hi, worker int))
}

// Serial runs everything inline on the calling goroutine.
type Serial struct{}

// Workers returns 1.
func (Serial) Workers() int { return 1 }

// Run calls fn(0, n, 0).
func (Serial) Run(n int, fn func(lo, hi, worker int)) {
	if n > 0 {
		fn(0, n, 0)
	}
}

// workChunk represents a range of items for a worker to process.
type workChunk struct {
	start, end int
	fn         func(lo, hi, worker int)
}

// Pool is a fixed set of persistent worker goroutines.
// Run must not be called concurrently or from inside a chunk.
type Pool struct {
	numWorkers int
	threshold  int

	// Worker pool channels
	workChan chan workChunk // sends work to workers
	doneChan chan struct{}  // workers signal completion
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup // tracks active workers
	running  bool           // true if workers are running
}

// NewPool creates a pool with the given worker count (0 = GOMAXPROCS) and
// inline threshold (0 = DefaultThreshold). Workers start on first use.
func NewPool(numWorkers, threshold int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Pool{numWorkers: numWorkers, threshold: threshold}
}

// Workers returns the number of workers.
func (p *Pool) Workers() int {
	return p.numWorkers
}

// startWorkers launches persistent worker goroutines.
func (p *Pool) startWorkers() {
	if p.running {
		return
	}

	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Close signals all workers to exit and waits for them.
func (p *Pool) Close() {
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

// worker runs in a goroutine, processing chunks until stopped.
func (p *Pool) worker(workerID int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			chunk.fn(chunk.start, chunk.end, workerID)
			p.doneChan <- struct{}{}
		}
	}
}

// Run dispatches [0, n) across the pool and waits for completion.
func (p *Pool) Run(n int, fn func(lo, hi, worker int)) {
	if n <= 0 {
		return
	}
	if n < p.threshold || p.numWorkers == 1 {
		fn(0, n, 0)
		return
	}

	if !p.running {
		p.startWorkers()
	}

	chunkSize := (n + p.numWorkers - 1) / p.numWorkers

	chunksDispatched := 0
	for w := 0; w < p.numWorkers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}

		p.workChan <- workChunk{start: start, end: end, fn: fn}
		chunksDispatched++
	}

	for i := 0; i < chunksDispatched; i++ {
		<-p.doneChan
	}
}

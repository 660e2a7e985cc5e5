// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package parallel runs kernel work items on a fixed set of goroutines.
package parallel

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed is returned when work is submitted to a closed pool.
var ErrPoolClosed = errors.New("parallel: pool closed")

// PanicError reports a work item that panicked.
type PanicError struct {
	// Item is the first work item index of the batch that panicked.
	Item int

	// Value is the recovered panic value.
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("parallel: work item %d panicked: %v", e.Item, e.Value)
}

// WorkerPool is a pool of goroutines executing batches of work items.
//
// Each worker owns a queue and steals from the other queues when its own
// is empty, which balances load when some batches run longer than others.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers    int
	workQueues []chan func()
	done       chan struct{}
	wg         sync.WaitGroup
	running    atomic.Bool

	// submitMu orders enqueues before close(done): Run holds it shared
	// while sending, Close holds it exclusively while closing.
	submitMu sync.RWMutex
}

// NewWorkerPool creates a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	// 4x workers of buffering hides submission latency.
	queueSize := max(workers*4, 8)

	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan func(), workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	myQueue := p.workQueues[id]

	for {
		select {
		case <-p.done:
			p.drainQueue(myQueue)
			return
		case work := <-myQueue:
			work()
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				p.drainQueue(myQueue)
				return
			case work := <-myQueue:
				work()
			}
		}
	}
}

func (p *WorkerPool) drainQueue(queue chan func()) {
	for {
		select {
		case work := <-queue:
			work()
		default:
			return
		}
	}
}

// steal takes one batch from another worker's queue, or returns nil.
func (p *WorkerPool) steal(myID int) func() {
	for i := range p.workers {
		if i == myID {
			continue
		}
		select {
		case work := <-p.workQueues[i]:
			return work
		default:
		}
	}
	return nil
}

// Run executes fn(lo, hi) over [0, n) split into batches of at most batch
// items and waits for all batches. Batches run in no particular order.
//
// If any batch panics, the remaining batches still run to completion and
// Run returns a *PanicError for the lowest panicking batch. A batch size
// of 0 or less picks one that gives each worker about four batches.
func (p *WorkerPool) Run(n, batch int, fn func(lo, hi int)) error {
	if n <= 0 {
		return nil
	}
	if !p.running.Load() {
		return ErrPoolClosed
	}
	if batch <= 0 {
		batch = max(1, (n+p.workers*4-1)/(p.workers*4))
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr *PanicError
	)
	record := func(lo int, v any) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil || lo < firstErr.Item {
			firstErr = &PanicError{Item: lo, Value: v}
		}
	}

	for i, lo := 0, 0; lo < n; i, lo = i+1, lo+batch {
		hi := min(lo+batch, n)
		start := lo
		wg.Add(1)
		work := func() {
			defer wg.Done()
			defer func() {
				if v := recover(); v != nil {
					record(start, v)
				}
			}()
			fn(start, hi)
		}

		if !p.submit(i%p.workers, work) {
			// Closed mid-run: finish the remaining batches inline.
			work()
		}
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return nil
}

// submit queues work on worker w. It reports false once the pool is
// closed, in which case work was not queued.
func (p *WorkerPool) submit(w int, work func()) bool {
	p.submitMu.RLock()
	defer p.submitMu.RUnlock()
	if !p.running.Load() {
		return false
	}
	p.workQueues[w] <- work
	return true
}

// Close stops the workers after draining queued batches.
// Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	p.submitMu.Lock()
	if !p.running.CompareAndSwap(true, false) {
		p.submitMu.Unlock()
		return
	}
	close(p.done)
	p.submitMu.Unlock()
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int { return p.workers }

// IsRunning reports whether the pool accepts work.
func (p *WorkerPool) IsRunning() bool { return p.running.Load() }

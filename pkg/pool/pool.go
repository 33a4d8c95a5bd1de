// Package pool provides a fixed-size worker pool for parallel
// fan-out. Work items beyond the worker count queue instead of
// spawning new goroutines.
package pool

import (
	"runtime"
	"sync"
)

// MaxWorkers derives a bounded worker count from available hardware
// parallelism, capped so large symbol counts cannot exhaust the host.
func MaxWorkers() int {
	n := runtime.NumCPU() * 2
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Pool runs submitted tasks on a fixed set of workers.
type Pool struct {
	size     int
	taskChan chan func()
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
}

// New creates a pool with the given number of workers. A non-positive
// size falls back to MaxWorkers.
func New(size int) *Pool {
	if size <= 0 {
		size = MaxWorkers()
	}
	return &Pool{
		size:     size,
		taskChan: make(chan func(), size*2),
		stopChan: make(chan struct{}),
	}
}

// Size returns the worker count.
func (p *Pool) Size() int { return p.size }

// Start launches the workers.
func (p *Pool) Start() {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Stop signals the workers to exit and waits for them. Queued tasks
// that no worker picked up are dropped.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
	})
	p.wg.Wait()
}

// Submit queues a task, blocking while the queue is full. Tasks
// submitted after Stop are dropped.
func (p *Pool) Submit(task func()) {
	select {
	case p.taskChan <- task:
	case <-p.stopChan:
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case task := <-p.taskChan:
			if task != nil {
				task()
			}
		case <-p.stopChan:
			return
		}
	}
}

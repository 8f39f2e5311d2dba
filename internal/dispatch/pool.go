// File: internal/dispatch/pool.go
//
// Pool is a bounded goroutine pool backed by github.com/eapache/queue,
// the teacher's own domain dependency for task dispatch (internal/
// concurrency/executor.go). Submit rejects once the queue is full
// rather than growing it, matching spec.md §5's "pool queue is bounded
// and overflow is a fatal error surfaced to the operator."
package dispatch

import (
	"errors"
	"sync"

	"github.com/eapache/queue"
)

// ErrPoolOverflow is returned by Submit when the pool's bounded queue
// is already at capacity.
var ErrPoolOverflow = errors.New("dispatch: pool queue overflow")

// ErrPoolClosed is returned by Submit once Close has been called.
var ErrPoolClosed = errors.New("dispatch: pool closed")

// Job is one unit of work handed to a pool worker.
type Job func()

// Pool runs submitted Jobs across a fixed number of worker goroutines,
// draining a single shared bounded queue.
type Pool struct {
	name     string
	capacity int

	mu     sync.Mutex
	cond   *sync.Cond
	q      *queue.Queue
	closed bool

	wg sync.WaitGroup
}

// NewPool starts a pool of numWorkers goroutines pulling from a queue
// bounded at capacity entries.
func NewPool(name string, numWorkers, capacity int) *Pool {
	p := &Pool{
		name:     name,
		capacity: capacity,
		q:        queue.New(),
	}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go p.runWorker()
	}
	return p
}

// Submit enqueues job for execution by one of the pool's workers.
// Returns ErrPoolOverflow if the queue is at capacity and ErrPoolClosed
// once Close has been called — both are treated as fatal by the
// dispatcher per spec.md §5, never silently retried.
func (p *Pool) Submit(job Job) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	if p.q.Length() >= p.capacity {
		p.mu.Unlock()
		return ErrPoolOverflow
	}
	p.q.Add(job)
	p.mu.Unlock()
	p.cond.Signal()
	return nil
}

// Len reports the current queue depth, for metrics/tests.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.q.Length()
}

func (p *Pool) runWorker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for p.q.Length() == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.q.Length() == 0 && p.closed {
			p.mu.Unlock()
			return
		}
		item := p.q.Peek()
		p.q.Remove()
		p.mu.Unlock()

		job, ok := item.(Job)
		if !ok {
			continue
		}
		runSafely(job)
	}
}

// runSafely executes job, recovering a panic so one misbehaving job
// (or subprotocol/extension callback) cannot take down a worker
// goroutine permanently.
func runSafely(job Job) {
	defer func() { recover() }()
	job()
}

// Close signals all workers to exit once the queue drains and waits
// for them to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}

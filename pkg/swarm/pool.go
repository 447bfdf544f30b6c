// Package swarm runs batch tasks on an adaptive worker pool. Concurrency
// follows an AIMD controller fed by per-task latency and throttle signals,
// so the pool backs off when the upstream API pushes back and creeps up
// again while responses stay healthy.
package swarm

import (
	"context"
	"sync"
	"time"
)

// Task is one unit of work for the pool.
type Task func(ctx context.Context) error

// Pool manages the worker set. Submit queues work; Wait blocks until every
// submitted task has finished, which is the join barrier before any
// aggregation over the results.
type Pool struct {
	aimd      *AIMD
	tasks     chan Task
	quit      chan struct{}
	throttled func(error) bool

	pending sync.WaitGroup
	workers sync.WaitGroup

	mu        sync.Mutex
	active    int
	completed int64
}

// Stats is a point-in-time snapshot of the pool.
type Stats struct {
	ActiveWorkers  int
	Concurrency    int
	TasksCompleted int64
}

// NewPool creates a pool whose worker count floats between min and max,
// starting at start. throttled classifies task errors that should trigger
// multiplicative backoff; nil means never.
func NewPool(start, min, max int, throttled func(error) bool) *Pool {
	if throttled == nil {
		throttled = func(error) bool { return false }
	}
	return &Pool{
		aimd:      NewAIMD(start, min, max),
		tasks:     make(chan Task, 1000),
		quit:      make(chan struct{}),
		throttled: throttled,
	}
}

// Start begins the resize loop. Workers come and go as the AIMD target
// moves; Stop or ctx cancellation winds them down.
func (p *Pool) Start(ctx context.Context) {
	go p.loop(ctx)
}

// Submit queues a task. Must not be called after Stop.
func (p *Pool) Submit(t Task) {
	p.pending.Add(1)
	p.tasks <- t
}

// Wait blocks until all submitted tasks have completed.
func (p *Pool) Wait() {
	p.pending.Wait()
}

// Stop shuts the pool down and waits for workers to exit.
func (p *Pool) Stop() {
	close(p.quit)
	p.workers.Wait()
}

// GetStats returns current pool statistics.
func (p *Pool) GetStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		ActiveWorkers:  p.active,
		Concurrency:    p.aimd.GetConcurrency(),
		TasksCompleted: p.completed,
	}
}

func (p *Pool) loop(ctx context.Context) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.quit:
			return
		case <-ticker.C:
			target := p.aimd.GetConcurrency()
			current := p.activeCount()
			for i := current; i < target; i++ {
				p.workers.Add(1)
				go p.worker(ctx)
			}
			// Excess workers exit on their own once they notice the
			// target dropped.
		}
	}
}

func (p *Pool) activeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *Pool) worker(ctx context.Context) {
	p.mu.Lock()
	p.active++
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
		p.workers.Done()
	}()

	for {
		if p.activeCount() > p.aimd.GetConcurrency() {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-p.quit:
			return
		case task := <-p.tasks:
			start := time.Now()
			err := task(ctx)
			p.aimd.Feedback(time.Since(start), p.throttled(err))

			p.mu.Lock()
			p.completed++
			p.mu.Unlock()
			p.pending.Done()
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

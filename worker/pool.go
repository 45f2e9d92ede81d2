// Package worker runs submitted tasks on a fixed number of goroutines.
package worker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrPoolClosed is returned by Submit after Shutdown.
	ErrPoolClosed = errors.New("worker: pool closed")
	// ErrQueueFull is returned by TrySubmit when no queue slot is free.
	ErrQueueFull = errors.New("worker: queue full")
)

// Task is a unit of work. A returned error is logged, never propagated.
type Task func(ctx context.Context) error

type Pool struct {
	tasks   chan func()
	workers sync.WaitGroup
	pending sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	logger *zap.Logger
}

// NewPool starts size workers sharing a queue of queueSize tasks.
func NewPool(size, queueSize int, logger *zap.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &Pool{
		tasks:  make(chan func(), queueSize),
		logger: logger,
	}

	p.workers.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	defer p.workers.Done()
	for task := range p.tasks {
		task()
	}
}

// Submit queues task under name. It blocks while the queue is full.
func (p *Pool) Submit(ctx context.Context, name string, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.pending.Add(1)
	p.tasks <- p.wrap(ctx, name, task)
	return nil
}

// TrySubmit queues task under name without blocking. It returns
// ErrQueueFull when the queue has no free slot.
func (p *Pool) TrySubmit(ctx context.Context, name string, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.pending.Add(1)
	select {
	case p.tasks <- p.wrap(ctx, name, task):
		return nil
	default:
		p.pending.Done()
		return ErrQueueFull
	}
}

func (p *Pool) wrap(ctx context.Context, name string, task Task) func() {
	return func() {
		defer p.pending.Done()
		if err := task(ctx); err != nil {
			p.logger.Error("Task failed", zap.String("task", name), zap.Error(err))
		}
	}
}

// Wait blocks until every task submitted so far has finished.
func (p *Pool) Wait() {
	p.pending.Wait()
}

// Shutdown stops accepting tasks, drains the queue and waits for the workers.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.workers.Wait()
}

// Package scheduler implements the cooperative task executor the spec calls for: a context-scoped pool of worker
// goroutines that the ItemPager and ExpiryPager use to decompose a run into one parent task plus one child task per
// vBucket (spec.md §5).
//
// This is ported from the workerpool package found elsewhere in the retrieval pack (a generic, bounded-concurrency
// pool: New/Submit/Shutdown with WithWorkers/WithBufferSize options) rather than from anything in kiwi itself, which
// has no task-executor analogue — kiwi only spawns fire-and-forget goroutines (e.g. the HyperClock reaper). Submit
// is reworked from that source: there, a Submit racing a concurrent Shutdown can send on the task channel after
// Shutdown has closed it, which panics. Here Submit and Shutdown share a mutex guarding the closed flag and the
// close itself, so a Submit either lands before the close (and is still drained by Shutdown's wait) or observes
// closed and is dropped — never a send on a closed channel.
package scheduler

import (
	"context"
	"runtime"
	"sync"
)

// Pool runs Task values concurrently across a fixed number of worker goroutines.
type Pool[T any] struct {
	tasks  chan T
	wg     sync.WaitGroup
	cancel context.CancelFunc
	once   sync.Once

	mux    sync.RWMutex
	closed bool

	handler func(ctx context.Context, task T)
}

// Option configures a Pool at construction time.
type Option[T any] func(*poolConfig)

type poolConfig struct {
	workers    int
	bufferSize int
}

// WithWorkers overrides the worker goroutine count (default runtime.NumCPU()).
func WithWorkers[T any](n int) Option[T] {
	return func(cfg *poolConfig) {
		if n > 0 {
			cfg.workers = n
		}
	}
}

// WithBufferSize overrides the task channel's buffer size (default equals the worker count).
func WithBufferSize[T any](n int) Option[T] {
	return func(cfg *poolConfig) {
		if n > 0 {
			cfg.bufferSize = n
		}
	}
}

// New starts a Pool whose workers run handler for every submitted task. Workers stop accepting new tasks once ctx
// is cancelled. The worker goroutines start here and block until tasks are submitted.
func New[T any](ctx context.Context, handler func(ctx context.Context, task T), opts ...Option[T]) *Pool[T] {
	cfg := &poolConfig{workers: runtime.NumCPU()}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.bufferSize == 0 {
		cfg.bufferSize = cfg.workers
	}

	workerCtx, cancel := context.WithCancel(ctx)
	p := &Pool[T]{
		tasks:   make(chan T, cfg.bufferSize),
		cancel:  cancel,
		handler: handler,
	}
	p.wg.Add(cfg.workers)
	for range cfg.workers {
		go p.worker(workerCtx)
	}
	return p
}

// Submit enqueues a task, blocking if every worker is busy and the buffer is full. A Submit that loses the race
// with a concurrent Shutdown is dropped instead of panicking on a send to a closed channel.
func (p *Pool[T]) Submit(task T) {
	p.mux.RLock()
	defer p.mux.RUnlock()
	if p.closed {
		return
	}
	p.tasks <- task
}

// Shutdown closes the task channel and waits for every already-queued task to finish. Safe to call more than once.
func (p *Pool[T]) Shutdown() {
	p.once.Do(func() {
		p.mux.Lock()
		p.closed = true
		close(p.tasks)
		p.mux.Unlock()
		p.wg.Wait()
		p.cancel()
	})
}

func (p *Pool[T]) worker(ctx context.Context) {
	defer p.wg.Done()
	for task := range p.tasks {
		select {
		case <-ctx.Done():
			return
		default:
			p.handler(ctx, task)
		}
	}
}

// Package dispatch provides the bounded worker pool between the watcher
// and the processor chain.
package dispatch

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Defaults.
const (
	DefaultWorkers   = 2
	DefaultQueueSize = 256
)

// Item is one dispatch-ready path. Nothing else rides along: the chain
// re-reads file state at processing time, so no stale snapshot crosses the
// dispatch boundary. ID correlates a file's log lines across workers.
type Item struct {
	ID         string
	Path       string
	EnqueuedAt time.Time
}

// Runner executes one item. A non-nil error counts the item as failed.
type Runner func(Item) error

// PanicHandler is invoked when a runner panics.
type PanicHandler func(item Item, v any, stack []byte)

// Pool is a bounded worker pool draining a dispatch queue. Submission is
// non-blocking: a full queue drops the item and reports it to the caller,
// which decides how to recover (the watcher clears its cooldown so the
// file gets another chance).
type Pool struct {
	queueSize int
	workers   int
	runner    Runner
	onPanic   PanicHandler

	mu      sync.Mutex // protects queue creation/destruction
	queue   chan Item
	running atomic.Bool
	wg      sync.WaitGroup

	enqueued  atomic.Uint64
	processed atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// Option configures a Pool.
type Option func(*Pool)

// WithWorkers sets the number of worker goroutines.
func WithWorkers(count int) Option {
	return func(p *Pool) {
		if count > 0 {
			p.workers = count
		}
	}
}

// WithQueueSize sets the dispatch queue capacity.
func WithQueueSize(size int) Option {
	return func(p *Pool) {
		if size > 0 {
			p.queueSize = size
		}
	}
}

// WithPanicHandler sets the handler called when a runner panics.
func WithPanicHandler(h PanicHandler) Option {
	return func(p *Pool) {
		p.onPanic = h
	}
}

// New creates a pool that hands items to runner.
func New(runner Runner, opts ...Option) *Pool {
	p := &Pool{
		queueSize: DefaultQueueSize,
		workers:   DefaultWorkers,
		runner:    runner,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running.Load() {
		return ErrAlreadyRunning
	}

	p.queue = make(chan Item, p.queueSize)
	p.running.Store(true)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return nil
}

// Stop drains the queue and waits for in-flight work, or until ctx
// expires. Callers must stop submitting before calling Stop.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running.Load() {
		p.mu.Unlock()
		return ErrNotRunning
	}
	p.running.Store(false)
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit enqueues a path without blocking. It reports false when the pool
// is stopped or the queue is full; a full-queue drop is counted.
func (p *Pool) Submit(path string) bool {
	if !p.running.Load() {
		return false
	}

	item := Item{
		ID:         uuid.New().String(),
		Path:       path,
		EnqueuedAt: time.Now(),
	}

	select {
	case p.queue <- item:
		p.enqueued.Add(1)
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for item := range p.queue {
		p.run(item)
	}
}

func (p *Pool) run(item Item) {
	p.processed.Add(1)

	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			if p.onPanic != nil {
				stack := debug.Stack()
				func() {
					defer func() { _ = recover() }()
					p.onPanic(item, r, stack)
				}()
			}
		}
	}()

	if err := p.runner(item); err != nil {
		p.failed.Add(1)
		return
	}
	p.succeeded.Add(1)
}

// QueueDepth returns the number of waiting items, or 0 when stopped.
func (p *Pool) QueueDepth() int {
	if !p.running.Load() {
		return 0
	}
	return len(p.queue)
}

// IsRunning reports whether the pool accepts submissions.
func (p *Pool) IsRunning() bool {
	return p.running.Load()
}

// Stats is a point-in-time counter snapshot.
type Stats struct {
	Enqueued   uint64
	Processed  uint64
	Succeeded  uint64
	Failed     uint64
	Dropped    uint64
	QueueDepth int
}

// Stats returns pool statistics.
func (p *Pool) Stats() Stats {
	return Stats{
		Enqueued:   p.enqueued.Load(),
		Processed:  p.processed.Load(),
		Succeeded:  p.succeeded.Load(),
		Failed:     p.failed.Load(),
		Dropped:    p.dropped.Load(),
		QueueDepth: p.QueueDepth(),
	}
}

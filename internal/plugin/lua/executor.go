package lua

import (
	"errors"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// executorQueueSize bounds the number of pending calls per plugin.
const executorQueueSize = 16

type call struct {
	fn     func(L *lua.LState) error
	result chan error
}

// Executor serializes all operations on one plugin's Lua state through a
// single goroutine. The chain may invoke the same plugin from several pool
// workers at once; calls queue here and run one at a time.
//
// A call abandoned by the chain's timeout still occupies the executor until
// it finishes, so a runaway script stalls only its own plugin.
type Executor struct {
	L     *lua.LState
	queue chan *call
	done  chan struct{}

	// mu orders enqueues against Close: every call enqueued under the read
	// lock is visible to the worker's final drain, so Execute can never
	// block on a result that will not arrive.
	mu     sync.RWMutex
	closed bool
}

// NewExecutor creates an executor for the given Lua state and starts its
// worker goroutine.
func NewExecutor(L *lua.LState) *Executor {
	e := &Executor{
		L:     L,
		queue: make(chan *call, executorQueueSize),
		done:  make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *Executor) run() {
	for {
		select {
		case <-e.done:
			e.drain()
			return
		case c := <-e.queue:
			c.result <- e.execute(c)
			close(c.result)
		}
	}
}

func (e *Executor) execute(c *call) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case error:
				err = v
			case string:
				err = errors.New(v)
			default:
				err = errors.New("lua panic")
			}
		}
	}()
	return c.fn(e.L)
}

func (e *Executor) drain() {
	for {
		select {
		case c := <-e.queue:
			c.result <- ErrExecutorClosed
			close(c.result)
		default:
			return
		}
	}
}

// Execute queues fn and blocks until it has run on the executor goroutine.
func (e *Executor) Execute(fn func(L *lua.LState) error) error {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return ErrExecutorClosed
	}
	c := &call{
		fn:     fn,
		result: make(chan error, 1),
	}
	e.queue <- c
	e.mu.RUnlock()

	return <-c.result
}

// Close stops the executor. Queued calls complete with ErrExecutorClosed.
// Safe to call more than once.
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.done)
}

// Package queue provides an unbounded FIFO queue drained by a single worker.
package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Handler processes one item.
type Handler[T any] func(ctx context.Context, item T) error

// Observer receives queue statistics. *metrics.Metrics implements it.
type Observer interface {
	SetQueueDepth(n int)
	ItemProcessed(d time.Duration, err error)
}

// PanicError wraps a panic recovered from a handler.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("queue handler panicked: %v", e.Value)
}

type entry[T any] struct {
	item T
	done chan error
}

// Queue processes items strictly in arrival order. At most one handler
// invocation is in flight at any time; items enqueued while the worker is
// busy wait in an unbounded backlog.
type Queue[T any] struct {
	ctx     context.Context
	handler Handler[T]
	obs     Observer

	mu      sync.Mutex
	items   []entry[T]
	running bool
	idle    *sync.Cond
}

// Option configures a Queue.
type Option func(*options)

type options struct {
	obs Observer
}

// WithObserver reports depth and outcomes to obs.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.obs = obs }
}

// New creates a queue whose handler runs with ctx.
func New[T any](ctx context.Context, handler Handler[T], opts ...Option) *Queue[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	q := &Queue[T]{ctx: ctx, handler: handler, obs: o.obs}
	q.idle = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends item and returns a channel that receives the handler's
// result exactly once and is then closed. Enqueue never blocks on the
// handler.
func (q *Queue[T]) Enqueue(item T) <-chan error {
	done := make(chan error, 1)

	q.mu.Lock()
	q.items = append(q.items, entry[T]{item: item, done: done})
	depth := len(q.items)
	start := !q.running
	if start {
		q.running = true
	}
	q.mu.Unlock()

	q.setDepth(depth)
	if start {
		go q.drain()
	}
	return done
}

// Len returns the number of items not yet picked up by the worker.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Running reports whether the worker is active.
func (q *Queue[T]) Running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Wait blocks until the backlog is empty and the worker has stopped.
func (q *Queue[T]) Wait() {
	q.mu.Lock()
	for q.running {
		q.idle.Wait()
	}
	q.mu.Unlock()
}

func (q *Queue[T]) drain() {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.running = false
			q.idle.Broadcast()
			q.mu.Unlock()
			return
		}
		next := q.items[0]
		var zero entry[T]
		q.items[0] = zero
		q.items = q.items[1:]
		depth := len(q.items)
		q.mu.Unlock()

		q.setDepth(depth)

		start := time.Now()
		err := q.process(next.item)
		if q.obs != nil {
			q.obs.ItemProcessed(time.Since(start), err)
		}

		next.done <- err
		close(next.done)
	}
}

func (q *Queue[T]) process(item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			pe := &PanicError{Value: r, Stack: debug.Stack()}
			log.Error().
				Interface("panic", r).
				Str("stack", string(pe.Stack)).
				Msg("Recovered from panic in queue handler")
			err = pe
		}
	}()
	return q.handler(q.ctx, item)
}

func (q *Queue[T]) setDepth(n int) {
	if q.obs != nil {
		q.obs.SetQueueDepth(n)
	}
}

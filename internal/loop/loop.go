// Package loop runs closures on a single interactive goroutine.
//
// Every piece of mutable viewer state (page store, layout, render counters)
// is touched only by closures executed from one Queue. Background work hands
// results back by posting a closure instead of taking locks.
package loop

import (
	"context"
	"sync"
)

// Poster accepts closures to run on the interactive goroutine.
type Poster interface {
	Post(fn func())
}

// Queue is an unbounded FIFO of closures. Post is safe from any goroutine;
// Next, RunPending, Run and RunUntil must all be called from the single
// goroutine that owns the interactive state.
type Queue struct {
	mu     sync.Mutex
	items  []func()
	notify chan struct{}
	closed bool
}

var _ Poster = (*Queue)(nil)

// New returns an empty queue.
func New() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Post enqueues fn. Posting to a closed queue drops fn.
func (q *Queue) Post(fn func()) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, fn)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Close drops queued closures and rejects new ones.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.items = nil
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Len reports the number of queued closures.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) pop() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	fn := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return fn, true
}

// Next blocks until a closure is available and returns it without running it.
// It returns false when ctx is done or the queue is closed.
func (q *Queue) Next(ctx context.Context) (func(), bool) {
	for {
		if fn, ok := q.pop(); ok {
			return fn, true
		}
		q.mu.Lock()
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, false
		}
		select {
		case <-ctx.Done():
			return nil, false
		case <-q.notify:
		}
	}
}

// RunPending runs queued closures, including ones posted while running,
// until the queue is empty. It returns how many ran.
func (q *Queue) RunPending() int {
	n := 0
	for {
		fn, ok := q.pop()
		if !ok {
			return n
		}
		fn()
		n++
	}
}

// Run executes closures until ctx is done or the queue is closed.
func (q *Queue) Run(ctx context.Context) error {
	for {
		fn, ok := q.Next(ctx)
		if !ok {
			return ctx.Err()
		}
		fn()
	}
}

// RunUntil executes closures until cond reports true. cond is evaluated on
// the calling goroutine before waiting and after every closure.
func (q *Queue) RunUntil(ctx context.Context, cond func() bool) error {
	for !cond() {
		fn, ok := q.Next(ctx)
		if !ok {
			if err := ctx.Err(); err != nil {
				return err
			}
			return context.Canceled
		}
		fn()
	}
	return nil
}

// Package taskq serializes two-phase document tasks.
//
// Each task has a background step and a completion step. One worker
// goroutine runs background steps in submission order; completion steps run
// on the interactive goroutine, and the next background step does not start
// until the previous completion step has returned. That total order is what
// the session relies on instead of locks.
package taskq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/five82/folio/internal/loop"
)

// Task is one unit of document work.
type Task interface {
	// Work runs off the interactive goroutine. It may read immutable inputs
	// but must not mutate state shared with the interactive goroutine.
	Work(ctx context.Context) error
	// Done runs on the interactive goroutine with Work's result.
	Done(err error)
}

// Func adapts a pair of closures to Task. Either may be nil.
type Func struct {
	WorkFn func(ctx context.Context) error
	DoneFn func(err error)
}

// Work implements Task.
func (f Func) Work(ctx context.Context) error {
	if f.WorkFn == nil {
		return nil
	}
	return f.WorkFn(ctx)
}

// Done implements Task.
func (f Func) Done(err error) {
	if f.DoneFn != nil {
		f.DoneFn(err)
	}
}

// Queue is a single-worker FIFO of tasks.
type Queue struct {
	poster loop.Poster
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending []Task
	wake    chan struct{}
	stopped bool
	stop    chan struct{}
	once    sync.Once
	exited  chan struct{}
}

// New starts a queue whose completion steps are posted to poster.
func New(poster loop.Poster, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		poster: poster,
		logger: logger.With("component", "taskq"),
		ctx:    ctx,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go q.worker()
	return q
}

// Submit enqueues t. It is a no-op once Stop has been called.
func (q *Queue) Submit(t Task) {
	if t == nil {
		return
	}
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, t)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Stop drains no further tasks and cancels the context handed to Work.
// Only the first call has an effect.
func (q *Queue) Stop() {
	q.once.Do(func() {
		q.mu.Lock()
		q.stopped = true
		q.pending = nil
		q.mu.Unlock()
		close(q.stop)
		q.cancel()
	})
}

// Stopped reports whether Stop has been called.
func (q *Queue) Stopped() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stopped
}

// Exited is closed once the worker goroutine has returned.
func (q *Queue) Exited() <-chan struct{} {
	return q.exited
}

func (q *Queue) next() (Task, bool) {
	for {
		q.mu.Lock()
		if q.stopped {
			q.mu.Unlock()
			return nil, false
		}
		if len(q.pending) > 0 {
			t := q.pending[0]
			q.pending[0] = nil
			q.pending = q.pending[1:]
			q.mu.Unlock()
			return t, true
		}
		q.mu.Unlock()

		select {
		case <-q.stop:
			return nil, false
		case <-q.wake:
		}
	}
}

func (q *Queue) worker() {
	defer close(q.exited)
	for {
		t, ok := q.next()
		if !ok {
			return
		}

		err := q.runWork(t)
		if q.Stopped() {
			return
		}

		done := make(chan struct{})
		q.poster.Post(func() {
			defer close(done)
			t.Done(err)
		})

		select {
		case <-done:
		case <-q.stop:
			return
		}
	}
}

func (q *Queue) runWork(t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
			q.logger.Error("background step panicked", "panic", r)
		}
	}()
	return t.Work(q.ctx)
}

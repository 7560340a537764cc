package pointer

import (
	"context"
)

// Executor runs posted work serially
type Executor interface {
	Post(fn func())
}

// Loop is a single-goroutine executor. Everything that touches the engine
// is posted here so the engine itself needs no locking.
type Loop struct {
	queue chan func()
	done  chan struct{}
}

// NewLoop creates a loop with room for size pending closures
func NewLoop(size int) *Loop {
	if size <= 0 {
		size = 1024
	}
	return &Loop{
		queue: make(chan func(), size),
		done:  make(chan struct{}),
	}
}

// Post queues fn. It blocks while the queue is full and drops fn once the
// loop has stopped.
func (l *Loop) Post(fn func()) {
	select {
	case <-l.done:
		return
	default:
	}

	select {
	case l.queue <- fn:
	case <-l.done:
	}
}

// Run executes posted closures until ctx is cancelled
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.queue:
			fn()
		}
	}
}

// Inline runs work on the caller's goroutine. Only for single-threaded
// callers such as tests.
type Inline struct{}

// Post calls fn immediately
func (Inline) Post(fn func()) { fn() }

// call posts fn and waits for its result
func call[T any](ctx context.Context, exec Executor, fn func() T) (T, error) {
	ch := make(chan T, 1)
	exec.Post(func() { ch <- fn() })

	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

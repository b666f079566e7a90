// Package eventloop provides the single goroutine that owns positioning state. Work posted from any
// goroutine is run in order on the loop, one turn at a time.
package eventloop

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Invoke once the loop no longer accepts work.
var ErrClosed = errors.New("event loop is closed")

// Job represents a task to be executed on the loop.
type Job struct {
	Task func()
}

// Loop is an unbounded FIFO of jobs drained by whoever runs it. Posting never blocks, so jobs may
// post further jobs; those run on a later turn.
type Loop struct {
	mu     sync.Mutex
	queue  []Job
	wake   chan struct{}
	closed bool
}

// New creates an empty loop.
func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post queues fn for a later turn. It reports false if the loop is closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, Job{Task: fn})
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Invoke runs fn on the loop and waits for it to finish. It must not be called from the loop itself.
func (l *Loop) Invoke(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of queued jobs.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// RunPending runs one turn: the jobs queued before the call. It returns how many ran.
func (l *Loop) RunPending() int {
	l.mu.Lock()
	batch := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, job := range batch {
		job.Task()
	}
	return len(batch)
}

// Drain runs turns until the queue is empty.
func (l *Loop) Drain() int {
	total := 0
	for {
		n := l.RunPending()
		if n == 0 {
			return total
		}
		total += n
	}
}

// Run drives the loop until ctx is cancelled, then runs what is still queued.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-l.wake:
			l.RunPending()
		case <-ctx.Done():
			l.Drain()
			return
		}
	}
}

// Close stops accepting new jobs. Already queued jobs still run.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
}

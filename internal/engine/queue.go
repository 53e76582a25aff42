package engine

import (
	"context"
	"sync"
)

// command is work posted to the session owner. name is logged at debug
// level when the command runs.
type command struct {
	name string
	run  func(ctx context.Context, s *Session)
}

// commandQueue is a thread-safe FIFO of commands for the session owner.
//
// The queue is unbounded: loader completions and external data producers
// post from their own goroutines and must never block on the owner. Only
// the owner dequeues.
//
// The queue uses a channel for signaling so the owner can wait for work
// in a select alongside ctx.Done().
type commandQueue struct {
	mu       sync.Mutex
	commands []command
	closed   bool
	signal   chan struct{} // work may be available (buffered, size 1)
}

// newCommandQueue creates an empty command queue.
func newCommandQueue() *commandQueue {
	return &commandQueue{
		commands: make([]command, 0, 8),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds a command to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed; the command is dropped.
func (q *commandQueue) Enqueue(c command) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.commands = append(q.commands, c)

	// non-blocking; the buffer of 1 coalesces repeated signals
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front command without blocking.
// Returns (command{}, false) if the queue is empty.
func (q *commandQueue) TryDequeue() (command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.commands) == 0 {
		return command{}, false
	}
	c := q.commands[0]

	// clear the slot so the closure and what it captures can be collected
	q.commands[0] = command{}
	if len(q.commands) == 1 {
		q.commands = q.commands[:0]
	} else {
		q.commands = q.commands[1:]
	}
	return c, true
}

// Wait returns a channel that signals when commands may be available. It
// is closed when the queue is closed. Use with select:
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // drain with TryDequeue
//	}
func (q *commandQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued commands.
func (q *commandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.commands)
}

// Closed reports whether Close has been called.
func (q *commandQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops accepting commands and wakes the owner by closing the
// signal channel. Queued commands are still returned by TryDequeue.
// Closing twice is a no-op.
func (q *commandQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

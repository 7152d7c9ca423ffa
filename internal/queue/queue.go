// Package queue provides the bounded hand-off between reporting goroutines
// and the single connection writer.
//
// Producers block in Push while the queue is full. This backpressure is the
// only point at which reporting can stall; frames are never dropped to make
// room. Close wakes every blocked producer and the consumer, and discards
// whatever is still queued.
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Push once the queue has been closed.
var ErrClosed = errors.New("delivery queue closed")

// Stats is a snapshot of queue counters.
type Stats struct {
	Pushed    uint64
	Popped    uint64
	Discarded uint64
	Depth     int
}

// Queue is a bounded FIFO of encoded frames. Any number of goroutines may
// Push; exactly one should Pop.
type Queue struct {
	frames    chan []byte
	done      chan struct{}
	closeOnce sync.Once

	pushed    atomic.Uint64
	popped    atomic.Uint64
	discarded atomic.Uint64
}

// New creates a queue holding at most capacity frames. A capacity below 1
// is treated as 1.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		frames: make(chan []byte, capacity),
		done:   make(chan struct{}),
	}
}

// Push appends frame, blocking while the queue is full. It returns
// ErrClosed if the queue is or becomes closed, or ctx.Err() if ctx ends
// first.
func (q *Queue) Push(ctx context.Context, frame []byte) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.frames <- frame:
		q.pushed.Add(1)
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop removes the oldest frame, blocking until one is available. The
// boolean is false once the queue is closed or ctx ends.
func (q *Queue) Pop(ctx context.Context) ([]byte, bool) {
	select {
	case <-q.done:
		return nil, false
	default:
	}

	select {
	case frame := <-q.frames:
		q.popped.Add(1)
		return frame, true
	case <-q.done:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// Close shuts the queue down. It is safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
		for {
			select {
			case <-q.frames:
				q.discarded.Add(1)
			default:
				return
			}
		}
	})
}

// Done is closed when the queue shuts down.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Len returns the number of queued frames.
func (q *Queue) Len() int {
	return len(q.frames)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.frames)
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Pushed:    q.pushed.Load(),
		Popped:    q.popped.Load(),
		Discarded: q.discarded.Load(),
		Depth:     q.Len(),
	}
}

package audio

import (
	"context"
	"errors"
	"sync"
)

// DefaultQueueCapacity holds 256 seconds of audio at 8000-sample frames
const DefaultQueueCapacity = 512

// ErrQueueClosed is returned by Pop once the queue is closed and drained
var ErrQueueClosed = errors.New("frame queue closed")

// FrameQueue hands frames from the capture thread to the decode loop.
// Push never blocks; when the queue is at capacity the oldest frame is
// dropped. PushWait is for sources that can be paused and waits for room
// instead. Pop blocks until a frame arrives, the queue is closed, or the
// context is cancelled.
type FrameQueue struct {
	mu      sync.Mutex
	frames  []Frame
	head    int
	count   int
	dropped uint64
	closed  bool
	notify  chan struct{}
	space   chan struct{}
}

// NewFrameQueue creates a queue holding at most capacity frames
func NewFrameQueue(capacity int) *FrameQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &FrameQueue{
		frames: make([]Frame, capacity),
		notify: make(chan struct{}, 1),
		space:  make(chan struct{}, 1),
	}
}

// Push appends f. It reports whether an older frame had to be dropped.
// Frames pushed after Close are discarded.
func (q *FrameQueue) Push(f Frame) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}

	evicted := false
	if q.count == len(q.frames) {
		q.frames[q.head] = Frame{}
		q.head = (q.head + 1) % len(q.frames)
		q.count--
		q.dropped++
		evicted = true
	}
	q.frames[(q.head+q.count)%len(q.frames)] = f
	q.count++
	q.mu.Unlock()

	q.wake()
	return evicted
}

// PushWait appends f, waiting while the queue is full. It never drops.
// It returns ErrQueueClosed once the queue is closed, or ctx's error.
func (q *FrameQueue) PushWait(ctx context.Context, f Frame) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrQueueClosed
		}
		if q.count < len(q.frames) {
			q.frames[(q.head+q.count)%len(q.frames)] = f
			q.count++
			q.mu.Unlock()
			q.wake()
			return nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.space:
		}
	}
}

// Pop removes and returns the oldest frame
func (q *FrameQueue) Pop(ctx context.Context) (Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}

		q.mu.Lock()
		if q.count > 0 {
			f := q.frames[q.head]
			q.frames[q.head] = Frame{}
			q.head = (q.head + 1) % len(q.frames)
			q.count--
			q.mu.Unlock()
			signal(q.space)
			return f, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return Frame{}, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-q.notify:
		}
	}
}

// Close stops accepting frames. Frames already queued can still be popped.
func (q *FrameQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
	signal(q.space)
}

// Len returns the number of queued frames
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the queue capacity in frames
func (q *FrameQueue) Cap() int {
	return len(q.frames)
}

// Dropped returns how many frames were evicted by overflow so far
func (q *FrameQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *FrameQueue) wake() {
	signal(q.notify)
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

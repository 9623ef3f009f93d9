// Package queue provides the bounded drop-oldest frame buffer that sits
// between the hardware codec and the network pumps. Push never blocks the
// producer; when the wire falls behind, the oldest frames are shed so
// latency and memory stay bounded.
package queue

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/zero2005x/RokidStream-sub001/media"
)

// Queue is a fixed-capacity FIFO of frames with drop-oldest overflow.
// Safe for concurrent use by one or more producers and consumers.
type Queue struct {
	mu      sync.Mutex
	notify  chan struct{}
	frames  []media.Frame
	cap     int
	dropped atomic.Int64
}

// New creates a queue holding at most capacity frames. Capacity must be
// at least 1.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		notify: make(chan struct{}, 1),
		frames: make([]media.Frame, 0, capacity),
		cap:    capacity,
	}
}

// Push appends a frame, evicting the oldest frame first when the queue is
// full. It never blocks and never fails.
func (q *Queue) Push(f media.Frame) {
	q.mu.Lock()
	if len(q.frames) == q.cap {
		copy(q.frames, q.frames[1:])
		q.frames = q.frames[:q.cap-1]
		q.dropped.Add(1)
	}
	q.frames = append(q.frames, f)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest frame. It waits up to timeout for a
// frame to arrive; ok is false on timeout.
func (q *Queue) Pop(timeout time.Duration) (media.Frame, bool) {
	if f, ok := q.tryPop(); ok {
		return f, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-q.notify:
			if f, ok := q.tryPop(); ok {
				return f, true
			}
			// Lost the race to another consumer; keep waiting.
		case <-timer.C:
			return media.Frame{}, false
		}
	}
}

func (q *Queue) tryPop() (media.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.frames) == 0 {
		return media.Frame{}, false
	}
	f := q.frames[0]
	copy(q.frames, q.frames[1:])
	q.frames = q.frames[:len(q.frames)-1]
	return f, true
}

// Len returns the number of queued frames.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Dropped returns the total number of frames evicted by Push since creation.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

// Drain discards all queued frames and returns how many were discarded.
func (q *Queue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.frames)
	q.frames = q.frames[:0]
	return n
}

package render

import (
	"log"
	"sync"

	"signaturelens/internal/frame"
)

// DefaultQueueCapacity bounds in-flight preview latency to two frames.
const DefaultQueueCapacity = 2

// Queue is the bounded, single-consumer request queue between the hardware
// callback goroutine and the render goroutine.
//
// Drop policy: a preview request arriving at capacity evicts the oldest
// queued preview request (releasing its frame); if the queue is occupied
// only by capture requests, the new preview frame is dropped instead, so a
// guaranteed capture is never displaced. Capture requests are inserted
// unconditionally, transiently exceeding the soft cap if necessary.
type Queue struct {
	mu       sync.Mutex
	reqs     []Request
	capacity int
	closed   bool
	dropped  uint64

	// avail is a wakeup signal for the single consumer; it carries no
	// data, Dequeue re-checks the queue under the lock.
	avail chan struct{}
}

// NewQueue creates a queue with the given soft capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{
		capacity: capacity,
		avail:    make(chan struct{}, 1),
	}
}

// EnqueuePreview inserts a preview request without blocking, applying the
// drop policy. Evicted or dropped frames are released here, exactly once.
func (q *Queue) EnqueuePreview(f *frame.Frame) {
	var evicted *frame.Frame
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		f.Release()
		return
	}
	if len(q.reqs) >= q.capacity {
		i := q.oldestPreviewLocked()
		if i < 0 {
			// Only captures queued; drop the incoming frame instead.
			q.dropped++
			q.mu.Unlock()
			f.Release()
			return
		}
		evicted = q.reqs[i].Frame
		q.reqs = append(q.reqs[:i], q.reqs[i+1:]...)
		q.dropped++
	}
	q.reqs = append(q.reqs, Request{Kind: KindPreview, Frame: f})
	q.mu.Unlock()
	if evicted != nil {
		evicted.Release()
	}
	q.signal()
}

// EnqueueCapture inserts a capture request unconditionally.
func (q *Queue) EnqueueCapture(f *frame.Frame, complete Completion) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		f.Release()
		if complete != nil {
			complete(Result{}, ErrStopped)
		}
		return
	}
	q.reqs = append(q.reqs, Request{Kind: KindCapture, Frame: f, Complete: complete})
	q.mu.Unlock()
	q.signal()
}

// Dequeue blocks until a request is available or stop is closed. It returns
// requests in FIFO order; ok is false when the consumer should exit.
func (q *Queue) Dequeue(stop <-chan struct{}) (Request, bool) {
	for {
		q.mu.Lock()
		if len(q.reqs) > 0 {
			req := q.reqs[0]
			q.reqs = q.reqs[1:]
			q.mu.Unlock()
			return req, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return Request{}, false
		}

		select {
		case <-q.avail:
		case <-stop:
			return Request{}, false
		}
	}
}

// Close drains the queue: remaining frames are released and pending capture
// completions resolve with ErrStopped. Further enqueues release their frames
// immediately.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	remaining := q.reqs
	q.reqs = nil
	q.mu.Unlock()
	q.signal()

	for _, req := range remaining {
		req.Frame.Release()
		if req.Kind == KindCapture && req.Complete != nil {
			req.Complete(Result{}, ErrStopped)
		}
	}
	if n := len(remaining); n > 0 {
		log.Printf("[RenderQueue] Released %d undelivered requests on close", n)
	}
}

// Len returns the number of queued requests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.reqs)
}

// Dropped returns the number of preview frames evicted or dropped so far.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *Queue) oldestPreviewLocked() int {
	for i, req := range q.reqs {
		if req.Kind == KindPreview {
			return i
		}
	}
	return -1
}

func (q *Queue) signal() {
	select {
	case q.avail <- struct{}{}:
	default:
	}
}

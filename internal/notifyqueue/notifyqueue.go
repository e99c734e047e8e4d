// Package notifyqueue decouples a client's listener socket read loop
// from serial execution of watch callbacks. §4.4 requires that
// callbacks "must not block the listener" from reading the next
// notification frame off the wire; a deque-backed handoff queue, the
// same structure the teacher uses to track in-flight requests in
// internal/base_tcp_client.go, gives the read loop somewhere to drop a
// frame and move on while a single worker goroutine drains the queue
// and runs callbacks in arrival order.
package notifyqueue

import (
	"sync"

	"github.com/edwingeng/deque/v2"
)

// Frame is one decoded notification, ready to be handed to a callback.
type Frame struct {
	Key      string
	OldValue []byte
	NewValue []byte
	Tag      byte
}

// Queue runs one worker goroutine that pops frames in FIFO order and
// invokes handle on each. Push never blocks on the worker.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	dq     *deque.Deque[Frame]
	closed bool
	handle func(Frame)
	done   chan struct{}
}

func New(handle func(Frame)) *Queue {
	q := &Queue{
		dq:     deque.NewDeque[Frame](),
		handle: handle,
		done:   make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// Push enqueues a frame for the worker goroutine. Safe to call
// concurrently with Close.
func (q *Queue) Push(f Frame) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.dq.PushFront(f)
	q.cond.Signal()
	q.mu.Unlock()
}

// Close stops the worker once it has drained everything already
// pushed, and blocks until it has, including any callback in progress.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for q.dq.Len() == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.dq.Len() == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		f := q.dq.PopBack()
		q.mu.Unlock()

		q.handle(f)
	}
}

package bus

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"main/internal/schema"
)

var (
	ErrQueueFull   = errors.New("decision queue full")
	ErrQueueClosed = errors.New("decision queue closed")
)

// Event is one decision fanned out to observers (metrics, logs). Observers
// never sit on the evaluation path; a full queue drops rather than blocks.
type Event struct {
	Decision schema.RiskDecision
	Latency  time.Duration
}

// Queue is a bounded, non-blocking decision queue.
type Queue struct {
	ch     chan Event
	closed uint32
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan Event, capacity)}
}

// TryPublish enqueues an event without blocking.
func (q *Queue) TryPublish(e Event) error {
	if atomic.LoadUint32(&q.closed) != 0 {
		return ErrQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the queue from accepting new events.
func (q *Queue) Close() {
	if atomic.CompareAndSwapUint32(&q.closed, 0, 1) {
		close(q.ch)
	}
}

// Run consumes events until the context is done or the queue is closed.
func (q *Queue) Run(ctx context.Context, handler func(Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-q.ch:
			if !ok {
				return
			}
			handler(e)
		}
	}
}

package session

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO of outbound client messages. The pipeline
// pushes from its event worker; the connection owner pops and writes to the
// socket. Unboundedness matters: a slow client must never block transcript
// processing, only delay its own delivery.
type Queue struct {
	mu     sync.Mutex
	items  []Message
	signal chan struct{}
	closed bool
}

// NewQueue returns an empty open Queue.
func NewQueue() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Push appends msg. Pushing to a closed queue is a no-op.
func (q *Queue) Push(msg Message) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, msg)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Pop blocks until a message is available, the queue is closed, or ctx is
// done. The second return is false once the queue is closed and drained.
func (q *Queue) Pop(ctx context.Context) (Message, bool, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			msg := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return msg, true, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return Message{}, false, nil
		}

		select {
		case <-q.signal:
		case <-ctx.Done():
			return Message{}, false, ctx.Err()
		}
	}
}

// Close marks the queue closed. Pending messages remain poppable.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

package decode

import (
	"context"
	"sync"

	"github.com/saviobatista/groundstation/internal/types"
)

// Queue is an unbounded FIFO of recordings awaiting decode. The head stays
// in the queue until Done is called for it.
type Queue struct {
	mu     sync.Mutex
	items  []*types.Recording
	notify chan struct{}
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Append adds a recording at the tail
func (q *Queue) Append(rec *types.Recording) {
	q.mu.Lock()
	q.items = append(q.items, rec)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Peek returns the head without removing it
func (q *Queue) Peek() (*types.Recording, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0], true
}

// Done removes the head once its pipeline has finished. It reports false
// when the head is not the recording with the given id.
func (q *Queue) Done(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 || q.items[0].ID != id {
		return false
	}
	q.items[0] = nil
	q.items = q.items[1:]
	return true
}

// Len returns the number of recordings in the queue, including the one in decode
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Wait blocks until the queue is non-empty or ctx is done
func (q *Queue) Wait(ctx context.Context) error {
	for {
		if q.Len() > 0 {
			return nil
		}
		select {
		case <-q.notify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

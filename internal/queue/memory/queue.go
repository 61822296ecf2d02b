// Package memory provides the bounded in-process target queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/storefront-review-crawler/internal/crawler"
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch     chan crawler.QueueItem
	mu     sync.RWMutex
	closed bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan crawler.QueueItem, capacity),
	}
}

// Enqueue pushes an item, blocking while the queue is full. It fails with
// crawler.ErrQueueClosed after Close.
func (q *Queue) Enqueue(ctx context.Context, item crawler.QueueItem) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return crawler.ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next item. Once the queue is closed and drained it
// returns crawler.ErrQueueClosed.
func (q *Queue) Dequeue(ctx context.Context) (crawler.QueueItem, error) {
	select {
	case <-ctx.Done():
		return crawler.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return crawler.QueueItem{}, crawler.ErrQueueClosed
		}
		return item, nil
	}
}

// Len reports the number of buffered items.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting items. Buffered items remain dequeueable.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}

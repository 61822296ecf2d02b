// Package dispatcher manages worker fan-out over the target queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/storefront-review-crawler/internal/crawler"
	"github.com/JakeFAU/storefront-review-crawler/internal/worker"
)

// ClosableQueue is a queue whose producer side can be finished.
type ClosableQueue interface {
	crawler.Queue
	Close()
}

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   ClosableQueue
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(queue ClosableQueue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Run enqueues urls, closes the queue and blocks until every worker exits.
// It returns the halting error when a worker stopped the run, or the
// context error when ctx ended first.
func (d *Dispatcher) Run(ctx context.Context, urls []string) error {
	runCtx, halt := context.WithCancelCause(ctx)
	defer halt(nil)

	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(runCtx, halt)
		}(w)
	}

	for _, url := range urls {
		if err := d.Enqueue(runCtx, crawler.QueueItem{URL: url}); err != nil {
			break
		}
	}
	d.queue.Close()
	wg.Wait()

	if cause := context.Cause(runCtx); cause != nil {
		if crawler.HaltsRun(cause) {
			return fmt.Errorf("run halted: %w", cause)
		}
		return fmt.Errorf("run interrupted: %w", cause)
	}
	return nil
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item crawler.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

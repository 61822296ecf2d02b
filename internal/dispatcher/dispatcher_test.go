// Package dispatcher contains tests for worker coordination.
package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-review-crawler/internal/crawler"
	"github.com/JakeFAU/storefront-review-crawler/internal/pipeline"
	"github.com/JakeFAU/storefront-review-crawler/internal/queue/memory"
	"github.com/JakeFAU/storefront-review-crawler/internal/worker"
)

// TestDispatcherRunProcessesAllURLs ensures every URL reaches a worker and Run returns once drained.
func TestDispatcherRunProcessesAllURLs(t *testing.T) {
	t.Parallel()

	target := &recordingTarget{}
	tally := &worker.Tally{}
	q := memory.NewQueue(1)
	workers := make([]*worker.Worker, 3)
	for i := range workers {
		workers[i] = worker.New(q, target, nil, nil, tally, worker.Config{}, zap.NewNop())
	}
	urls := []string{"a", "b", "c", "d", "e"}

	if err := New(q, workers).Run(context.Background(), urls); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := tally.Snapshot().Processed; got != len(urls) {
		t.Fatalf("expected %d processed, got %d", len(urls), got)
	}
	if got := target.count(); got != len(urls) {
		t.Fatalf("expected %d attempts, got %d", len(urls), got)
	}
}

// TestDispatcherRunHaltsOnStoreError verifies a store failure stops the run and is returned.
func TestDispatcherRunHaltsOnStoreError(t *testing.T) {
	t.Parallel()

	storeErr := crawler.NewError(crawler.KindStoreWrite, "a", errors.New("disk full"))
	target := &recordingTarget{failWith: storeErr}
	q := memory.NewQueue(1)
	w := worker.New(q, target, nil, nil, nil, worker.Config{HaltOnStoreError: true}, zap.NewNop())

	err := New(q, []*worker.Worker{w}).Run(context.Background(), []string{"a", "b", "c"})
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected store error, got %v", err)
	}
	if got := target.count(); got != 1 {
		t.Fatalf("expected the run to stop after one attempt, got %d", got)
	}
}

// TestDispatcherRunStopsOnCancel verifies cancellation unblocks Run.
func TestDispatcherRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	target := &recordingTarget{block: make(chan struct{})}
	q := memory.NewQueue(1)
	w := worker.New(q, target, nil, nil, nil, worker.Config{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- New(q, []*worker.Worker{w}).Run(ctx, []string{"a", "b", "c"})
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

// TestDispatcherEnqueueForwardsErrors verifies queue errors are wrapped for callers.
func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(1)
	q.Close()
	err := New(q, nil).Enqueue(context.Background(), crawler.QueueItem{URL: "a"})
	if !errors.Is(err, crawler.ErrQueueClosed) || err.Error() != "queue enqueue: queue closed" {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

type recordingTarget struct {
	mu       sync.Mutex
	calls    int
	failWith error
	block    chan struct{}
}

func (r *recordingTarget) Attempt(ctx context.Context, _ string) (pipeline.Result, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return pipeline.Result{}, crawler.NewError(crawler.KindUnknown, "", ctx.Err())
		}
	}
	if r.failWith != nil {
		return pipeline.Result{}, r.failWith
	}
	return pipeline.Result{}, nil
}

func (r *recordingTarget) Record(context.Context, string, error) {}

func (r *recordingTarget) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

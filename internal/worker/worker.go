// Package worker implements the per-target execution loop.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-review-crawler/internal/crawler"
	"github.com/JakeFAU/storefront-review-crawler/internal/metrics"
	"github.com/JakeFAU/storefront-review-crawler/internal/pipeline"
)

// Target runs one attempt for a URL and records the final failure.
type Target interface {
	Attempt(ctx context.Context, url string) (pipeline.Result, error)
	Record(ctx context.Context, url string, err error)
}

// Config controls Worker behavior.
type Config struct {
	VisitedTTL       time.Duration
	HaltOnStoreError bool
}

// Tally aggregates outcomes across workers.
type Tally struct {
	mu sync.Mutex
	c  crawler.RunCounters
}

// Snapshot returns a copy of the counters.
func (t *Tally) Snapshot() crawler.RunCounters {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.c
}

func (t *Tally) add(fn func(*crawler.RunCounters)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.c)
}

// Worker consumes queue items and drives them through the pipeline.
type Worker struct {
	queue   crawler.Queue
	target  Target
	visited crawler.VisitedSet
	retry   crawler.RetryPolicy
	tally   *Tally
	cfg     Config
	logger  *zap.Logger
	onDone  func(url string, err error)
}

// New constructs a Worker. visited, retry and tally may be nil.
func New(
	queue crawler.Queue,
	target Target,
	visited crawler.VisitedSet,
	retry crawler.RetryPolicy,
	tally *Tally,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if tally == nil {
		tally = &Tally{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:   queue,
		target:  target,
		visited: visited,
		retry:   retry,
		tally:   tally,
		cfg:     cfg,
		logger:  logger,
	}
}

// OnDone registers a callback invoked after every target, for progress display.
func (w *Worker) OnDone(fn func(url string, err error)) {
	w.onDone = fn
}

// Run blocks, consuming queue items until the queue is drained and closed or
// ctx finishes. halt cancels the whole run; it may be nil.
func (w *Worker) Run(ctx context.Context, halt context.CancelCauseFunc) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, crawler.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued target", zap.String("url", item.URL))

		metrics.IncActiveWorkers()
		err = w.handle(ctx, item)
		metrics.DecActiveWorkers()

		if w.onDone != nil {
			w.onDone(item.URL, err)
		}
		if err != nil && crawler.HaltsRun(err) && w.cfg.HaltOnStoreError && halt != nil {
			w.logger.Error("halting run after store failure", zap.String("url", item.URL), zap.Error(err))
			halt(err)
			return
		}
	}
}

func (w *Worker) handle(ctx context.Context, item crawler.QueueItem) error {
	logger := w.logger.With(zap.String("url", item.URL))

	if w.seen(ctx, logger, item.URL) {
		w.tally.add(func(c *crawler.RunCounters) { c.Seen++ })
		metrics.ObserveApp(item.URL, metrics.StatusSeen)
		logger.Info("skipping recently processed target")
		return nil
	}

	attempt := item.Attempt
	for {
		res, err := w.target.Attempt(ctx, item.URL)
		if err == nil {
			w.tally.add(func(c *crawler.RunCounters) {
				c.Processed++
				c.Comments += res.Comments
			})
			w.markVisited(ctx, logger, item.URL)
			return nil
		}
		if !w.shouldRetry(err, attempt) {
			w.target.Record(ctx, item.URL, err)
			w.tally.add(func(c *crawler.RunCounters) { c.Skipped++ })
			metrics.ObserveApp(item.URL, metrics.StatusSkipped)
			logger.Warn("target skipped", zap.Int("attempts", attempt+1), zap.Error(err))
			return err
		}

		delay := w.retry.Backoff(attempt)
		logger.Info("retrying target",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.String("error_type", string(crawler.KindOf(err))),
		)
		w.tally.add(func(c *crawler.RunCounters) { c.Retries++ })
		if sleepErr := crawler.SleepContext(ctx, delay); sleepErr != nil {
			w.target.Record(ctx, item.URL, err)
			w.tally.add(func(c *crawler.RunCounters) { c.Skipped++ })
			return err
		}
		attempt++
	}
}

func (w *Worker) shouldRetry(err error, attempt int) bool {
	return w.retry != nil && w.retry.ShouldRetry(err, attempt)
}

func (w *Worker) seen(ctx context.Context, logger *zap.Logger, url string) bool {
	if w.visited == nil {
		return false
	}
	ok, err := w.visited.IsVisited(ctx, url)
	if err != nil {
		logger.Warn("visited lookup failed", zap.Error(err))
		return false
	}
	return ok
}

func (w *Worker) markVisited(ctx context.Context, logger *zap.Logger, url string) {
	if w.visited == nil || w.cfg.VisitedTTL <= 0 {
		return
	}
	if err := w.visited.MarkVisited(ctx, url, w.cfg.VisitedTTL); err != nil {
		logger.Warn("mark visited failed", zap.Error(err))
	}
}

// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/pubsub"
	gcsstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-review-crawler/internal/api"
	"github.com/JakeFAU/storefront-review-crawler/internal/clock/system"
	"github.com/JakeFAU/storefront-review-crawler/internal/config"
	"github.com/JakeFAU/storefront-review-crawler/internal/crawler"
	"github.com/JakeFAU/storefront-review-crawler/internal/discovery"
	"github.com/JakeFAU/storefront-review-crawler/internal/dispatcher"
	"github.com/JakeFAU/storefront-review-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/storefront-review-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/storefront-review-crawler/internal/hash/sha256"
	"github.com/JakeFAU/storefront-review-crawler/internal/id/uuid"
	"github.com/JakeFAU/storefront-review-crawler/internal/ledger"
	"github.com/JakeFAU/storefront-review-crawler/internal/pipeline"
	"github.com/JakeFAU/storefront-review-crawler/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/storefront-review-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/storefront-review-crawler/internal/queue/memory"
	"github.com/JakeFAU/storefront-review-crawler/internal/render"
	"github.com/JakeFAU/storefront-review-crawler/internal/storage/gcs"
	"github.com/JakeFAU/storefront-review-crawler/internal/storage/local"
	"github.com/JakeFAU/storefront-review-crawler/internal/storage/postgres"
	"github.com/JakeFAU/storefront-review-crawler/internal/storage/workbook"
	visitedredis "github.com/JakeFAU/storefront-review-crawler/internal/visited/redis"
	"github.com/JakeFAU/storefront-review-crawler/internal/worker"
)

// Summary is reported at the end of a run.
type Summary struct {
	Counters     crawler.RunCounters
	AppRows      int
	CommentRows  int
	Duration     time.Duration
	WorkbookPath string
	LedgerPath   string
}

// Option customizes New.
type Option func(*options)

type options struct {
	browser    render.Browser
	fetcher    crawler.Fetcher
	snapshots  crawler.BlobStore
	retrievals crawler.RetrievalStore
	publisher  crawler.Publisher
	visited    crawler.VisitedSet
}

// WithBrowser replaces the headless Chrome browser.
func WithBrowser(b render.Browser) Option {
	return func(o *options) { o.browser = b }
}

// WithFetcher replaces the listing fetcher.
func WithFetcher(f crawler.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithSnapshots replaces the configured snapshot archive.
func WithSnapshots(s crawler.BlobStore) Option {
	return func(o *options) { o.snapshots = s }
}

// WithRetrievals replaces the configured audit store.
func WithRetrievals(r crawler.RetrievalStore) Option {
	return func(o *options) { o.retrievals = r }
}

// WithPublisher replaces the configured notification publisher.
func WithPublisher(p crawler.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithVisited replaces the configured skip-if-seen set.
func WithVisited(v crawler.VisitedSet) Option {
	return func(o *options) { o.visited = v }
}

// App holds all the shared, long-lived services for one invocation.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	store      *workbook.Store
	ledger     *ledger.Ledger
	processor  *pipeline.Processor
	discoverer *discovery.Discoverer
	visited    crawler.VisitedSet
	tally      *worker.Tally
	checks     map[string]api.ReadinessCheck
	closers    []func()
}

// New wires every component from cfg. Optional outputs are only connected
// when configured. It fails fast if a configured service cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		tally:  &worker.Tally{},
		checks: map[string]api.ReadinessCheck{},
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	a.store = workbook.New(cfg.WorkbookPath(), logger.Named("workbook"))
	a.ledger = ledger.New(cfg.FailedTasksPath(), logger.Named("ledger"))
	a.checks["output"] = func(context.Context) error {
		_, err := os.Stat(cfg.Output.Dir)
		return err
	}

	if err := a.wireOptional(ctx, &o); err != nil {
		a.Close()
		return nil, err
	}

	if o.browser == nil {
		limiter := ratelimit.New(ratelimit.Config{RPS: cfg.Crawler.RenderRPS, Burst: cfg.Crawler.RenderBurst})
		browser, err := render.NewChromedpBrowser(render.ChromedpConfig{
			Headless:         cfg.Headless.Headless,
			MaxParallel:      cfg.Headless.MaxParallel,
			UserAgent:        cfg.Crawler.UserAgent,
			ActionTimeout:    cfg.Headless.ActionTimeout,
			LoadMoreSelector: cfg.Headless.LoadMoreSelector,
		}, limiter, logger.Named("chromedp"))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := browser.Close(); err != nil {
				logger.Warn("close browser", zap.Error(err))
			}
		})
		o.browser = browser
	}
	renderer := render.New(o.browser, render.Config{
		NavigationTimeout: cfg.NavigationTimeout(),
		ExpansionTimeout:  cfg.Headless.ExpansionTimeout,
		SettleDelay:       cfg.Headless.SettleDelay,
		StabilizeDelay:    cfg.Headless.StabilizeDelay,
		MaxExpansions:     cfg.Headless.MaxExpansions,
		LogClicks:         cfg.Headless.LogClicks,
	}, logger.Named("render"))

	ids := uuid.New()
	extractor := extract.New(cfg.Selectors, ids)

	processor, err := pipeline.New(pipeline.Deps{
		Renderer:   renderer,
		Extractor:  extractor,
		Store:      a.store,
		Ledger:     a.ledger,
		Snapshots:  o.snapshots,
		Retrievals: o.retrievals,
		Publisher:  o.publisher,
		Hasher:     sha256.New(),
		Clock:      system.New(),
		AuditIDs:   uuid.TimeOrdered{},
	}, pipeline.Config{
		MetadataTimeout: cfg.Stages.MetadataTimeout,
		CommentsTimeout: cfg.Stages.CommentsTimeout,
		SnapshotPrefix:  cfg.Snapshots.Prefix,
		ContentType:     cfg.Snapshots.ContentType,
		Topic:           cfg.PubSub.TopicName,
	}, logger.Named("pipeline"))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.processor = processor

	if o.fetcher == nil {
		o.fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.Crawler.UserAgent,
			Timeout:   cfg.HTTPTimeout(),
		}, crawler.NewTransportRetryPolicy(crawler.RetryConfig{
			MaxAttempts: cfg.HTTP.MaxRetries,
			BaseDelay:   time.Duration(cfg.HTTP.BackoffInitialMs) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.HTTP.BackoffMaxMs) * time.Millisecond,
		}), logger.Named("fetcher"))
	}
	a.discoverer = discovery.New(discovery.Config{
		BaseDomain:   cfg.Site.BaseDomain,
		ListingRoute: cfg.Site.ListingRoute,
		Timeout:      cfg.Stages.LinksTimeout,
	}, o.fetcher, extractor, logger.Named("discovery"))
	if cfg.Site.RespectRobots {
		a.discoverer.WithRobots(discovery.NewRobots(o.fetcher, cfg.Crawler.UserAgent, logger.Named("robots")))
	}

	logger.Info("application services initialized",
		zap.String("workbook", cfg.WorkbookPath()),
		zap.String("failed_tasks", cfg.FailedTasksPath()),
		zap.Bool("snapshots", o.snapshots != nil),
		zap.Bool("audit", o.retrievals != nil),
		zap.Bool("notifications", o.publisher != nil),
		zap.Bool("skip_if_seen", a.visited != nil),
	)
	return a, nil
}

// wireOptional connects the snapshot archive, audit store, notification
// topic and visited set that the config enables and opts did not replace.
func (a *App) wireOptional(ctx context.Context, o *options) error {
	cfg := a.cfg
	if o.snapshots == nil {
		switch cfg.Snapshots.Backend {
		case "local":
			store, err := local.New(local.Config{BaseDir: cfg.Snapshots.Dir})
			if err != nil {
				return fmt.Errorf("init local snapshots: %w", err)
			}
			o.snapshots = store
		case "gcs":
			client, err := gcsstorage.NewClient(ctx)
			if err != nil {
				return fmt.Errorf("init gcs client: %w", err)
			}
			a.closers = append(a.closers, func() { _ = client.Close() })
			store, err := gcs.New(client, gcs.Config{Bucket: cfg.Snapshots.GCSBucket})
			if err != nil {
				return fmt.Errorf("init gcs snapshots: %w", err)
			}
			o.snapshots = store
		}
	}

	if o.retrievals == nil && cfg.DB.DSN != "" {
		store, err := postgres.NewRetrievalStore(ctx, postgres.RetrievalStoreConfig{
			DSN:             cfg.DB.DSN,
			Table:           cfg.DB.Table,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: cfg.DB.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("init retrieval store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure retrieval schema: %w", err)
		}
		o.retrievals = store
	}

	if o.publisher == nil && cfg.PubSub.TopicName != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("init pubsub client: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		pub := pubsubpublisher.New(client.Topic(cfg.PubSub.TopicName))
		a.closers = append(a.closers, pub.Stop)
		o.publisher = pub
	}

	if o.visited == nil && cfg.Redis.Addr != "" {
		set := visitedredis.New(visitedredis.NewClient(visitedredis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}), cfg.Redis.Prefix)
		if err := set.Ping(ctx); err != nil {
			_ = set.Close()
			return fmt.Errorf("init visited set: %w", err)
		}
		a.closers = append(a.closers, func() { _ = set.Close() })
		a.checks["redis"] = set.Ping
		o.visited = set
	}
	a.visited = o.visited
	return nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Counters reports live counters for the current run.
func (a *App) Counters() *worker.Tally {
	return a.tally
}

// Links discovers the application URLs on the listing page.
func (a *App) Links(ctx context.Context) ([]string, error) {
	return a.discoverer.Links(ctx)
}

// Crawl discovers links and processes every one of them.
func (a *App) Crawl(ctx context.Context, onDone func(url string, err error)) (Summary, error) {
	links, err := a.Links(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("discover links: %w", err)
	}
	return a.Process(ctx, links, onDone)
}

// Process fans urls out over the configured workers and blocks until all are
// handled or the run halts. onDone may be nil.
func (a *App) Process(ctx context.Context, urls []string, onDone func(url string, err error)) (Summary, error) {
	start := time.Now()
	if err := a.store.EnsureInitialized(ctx); err != nil {
		return Summary{}, crawler.NewError(crawler.KindStoreWrite, a.store.Path(), err)
	}

	if a.cfg.Metrics.Addr != "" {
		srvCtx, stop := context.WithCancel(ctx)
		defer stop()
		srv := api.NewServer(a.checks, a.tally, a.logger.Named("api"))
		go func() {
			if err := srv.ListenAndServe(srvCtx, a.cfg.Metrics.Addr); err != nil {
				a.logger.Error("api server failed", zap.Error(err))
			}
		}()
	}

	q := memory.NewQueue(a.cfg.Crawler.QueueDepth)
	retry := crawler.NewTargetRetryPolicy(crawler.RetryConfig{
		MaxAttempts: a.cfg.Crawler.TargetRetries,
		BaseDelay:   a.cfg.Crawler.RetryBaseDelay,
		MaxDelay:    a.cfg.Crawler.RetryMaxDelay,
	})
	workers := make([]*worker.Worker, a.cfg.Crawler.Concurrency)
	for i := range workers {
		w := worker.New(q, a.processor, a.visited, retry, a.tally, worker.Config{
			VisitedTTL:       a.cfg.Redis.VisitedTTL,
			HaltOnStoreError: a.cfg.Crawler.HaltOnStoreError,
		}, a.logger.Named("worker").With(zap.Int("worker", i)))
		if onDone != nil {
			w.OnDone(onDone)
		}
		workers[i] = w
	}

	a.logger.Info("run started", zap.Int("targets", len(urls)), zap.Int("workers", len(workers)))
	runErr := dispatcher.New(q, workers).Run(ctx, urls)

	summary := Summary{
		Counters:     a.tally.Snapshot(),
		Duration:     time.Since(start),
		WorkbookPath: a.store.Path(),
		LedgerPath:   a.cfg.FailedTasksPath(),
	}
	apps, comments, err := a.store.RowCounts(context.WithoutCancel(ctx))
	if err != nil {
		a.logger.Warn("read workbook row counts", zap.Error(err))
	}
	summary.AppRows, summary.CommentRows = apps, comments

	a.logger.Info("run finished",
		zap.Int("processed", summary.Counters.Processed),
		zap.Int("skipped", summary.Counters.Skipped),
		zap.Int("seen", summary.Counters.Seen),
		zap.Int("retries", summary.Counters.Retries),
		zap.Int("app_rows", summary.AppRows),
		zap.Int("comment_rows", summary.CommentRows),
		zap.Duration("duration", summary.Duration),
	)
	return summary, runErr
}

// Close gracefully shuts down all services in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

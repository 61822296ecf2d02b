// Package pipeline sequences render, extraction and persistence for one application page.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-review-crawler/internal/crawler"
	"github.com/JakeFAU/storefront-review-crawler/internal/hash/sha256"
	"github.com/JakeFAU/storefront-review-crawler/internal/metrics"
)

const (
	defaultStageTimeout = 10 * time.Second
	snapshotDigestLen   = 16
)

// Config controls stage budgets and the optional side outputs.
type Config struct {
	MetadataTimeout time.Duration
	CommentsTimeout time.Duration
	SnapshotPrefix  string
	ContentType     string
	Topic           string
}

// Deps lists the collaborators. Renderer, Extractor, Store and Ledger are required.
type Deps struct {
	Renderer   crawler.Renderer
	Extractor  crawler.Extractor
	Store      crawler.AppendStore
	Ledger     crawler.FailureLedger
	Snapshots  crawler.BlobStore
	Retrievals crawler.RetrievalStore
	Publisher  crawler.Publisher
	Hasher     crawler.Hasher
	Clock      crawler.Clock
	AuditIDs   crawler.IDGenerator
}

// Processor runs the per-application pipeline.
type Processor struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// Result summarizes one successful attempt.
type Result struct {
	AppID    string
	Comments int
}

// New validates deps and returns a Processor.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Processor, error) {
	switch {
	case deps.Renderer == nil:
		return nil, errors.New("pipeline: renderer is required")
	case deps.Extractor == nil:
		return nil, errors.New("pipeline: extractor is required")
	case deps.Store == nil:
		return nil, errors.New("pipeline: append store is required")
	case deps.Ledger == nil:
		return nil, errors.New("pipeline: failure ledger is required")
	}
	if cfg.MetadataTimeout <= 0 {
		cfg.MetadataTimeout = defaultStageTimeout
	}
	if cfg.CommentsTimeout <= 0 {
		cfg.CommentsTimeout = defaultStageTimeout
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	if deps.Hasher == nil {
		deps.Hasher = sha256.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{deps: deps, cfg: cfg, logger: logger}, nil
}

// Process runs one attempt and records any failure in the ledger before returning it.
func (p *Processor) Process(ctx context.Context, url string) error {
	_, err := p.Attempt(ctx, url)
	if err != nil {
		p.Record(ctx, url, err)
	}
	return err
}

// Record writes a classified failure for url to the ledger.
func (p *Processor) Record(ctx context.Context, url string, err error) {
	var tagged *crawler.Error
	msg := err.Error()
	if errors.As(err, &tagged) {
		msg = tagged.Message()
	}
	p.deps.Ledger.Record(ctx, crawler.FailureRecord{
		URL:          url,
		ErrorKind:    crawler.KindOf(err),
		ErrorMessage: msg,
	})
}

// Attempt runs render, extraction and append without touching the ledger.
// Every returned error is a *crawler.Error.
func (p *Processor) Attempt(ctx context.Context, url string) (Result, error) {
	logger := p.logger.With(zap.String("url", url))

	page, err := p.deps.Renderer.Render(ctx, url)
	if err != nil {
		logger.Warn("render failed", zap.Error(err))
		return Result{}, tag(crawler.KindUnknown, url, err)
	}
	logger.Debug("page rendered", zap.Int("expansions", page.Expansions), zap.Duration("duration", page.Duration))

	app, err := runStage(ctx, p.cfg.MetadataTimeout, "metadata", url, func() (crawler.ApplicationMetadata, error) {
		return p.deps.Extractor.Metadata(page.HTML)
	})
	if err != nil {
		logger.Warn("metadata extraction failed", zap.Error(err))
		return Result{}, err
	}

	comments, err := runStage(ctx, p.cfg.CommentsTimeout, "comments", url, func() ([]crawler.Comment, error) {
		return p.deps.Extractor.Comments(page.HTML, app.AppID)
	})
	if err != nil {
		logger.Warn("comment extraction failed", zap.Error(err))
		return Result{}, err
	}

	if err := p.deps.Store.Append(ctx, app, comments); err != nil {
		logger.Error("append failed", zap.Error(err))
		return Result{}, crawler.NewError(crawler.KindStoreWrite, url, err)
	}
	metrics.ObserveApp(url, metrics.StatusProcessed)
	metrics.ObserveComments(url, len(comments))
	logger.Info("application stored",
		zap.String("app_id", app.AppID),
		zap.String("app_name", app.AppName),
		zap.Int("comments", len(comments)),
	)

	p.sideOutputs(ctx, logger, page, app, len(comments))
	return Result{AppID: app.AppID, Comments: len(comments)}, nil
}

// sideOutputs archives the snapshot, writes the audit row and publishes the
// notification. Failures here are logged only.
func (p *Processor) sideOutputs(
	ctx context.Context,
	logger *zap.Logger,
	page crawler.RenderedPage,
	app crawler.ApplicationMetadata,
	comments int,
) {
	if p.deps.Snapshots == nil && p.deps.Retrievals == nil && p.deps.Publisher == nil {
		return
	}
	digest, err := p.deps.Hasher.Hash([]byte(page.HTML))
	if err != nil {
		logger.Warn("hash snapshot", zap.Error(err))
		return
	}

	var uri string
	if p.deps.Snapshots != nil {
		uri, err = p.deps.Snapshots.PutObject(ctx, p.snapshotPath(app.AppID, digest), p.cfg.ContentType,
			strings.NewReader(page.HTML))
		if err != nil {
			logger.Warn("snapshot upload failed", zap.Error(err))
			uri = ""
		}
	}

	if p.deps.Retrievals != nil {
		if err := p.storeRetrieval(ctx, page, app.AppID, digest, uri, comments); err != nil {
			logger.Warn("retrieval audit failed", zap.Error(err))
		}
	}

	if p.deps.Publisher != nil && p.cfg.Topic != "" {
		payload := map[string]any{
			"app_id":       app.AppID,
			"app_name":     app.AppName,
			"url":          page.URL,
			"comments":     comments,
			"expansions":   page.Expansions,
			"hash":         digest,
			"blob_uri":     uri,
			"retrieved_at": p.now().Format(time.RFC3339),
		}
		if _, err := p.deps.Publisher.Publish(ctx, p.cfg.Topic, payload); err != nil {
			logger.Warn("publish notification failed", zap.Error(err))
		}
	}
}

func (p *Processor) storeRetrieval(
	ctx context.Context,
	page crawler.RenderedPage,
	appID, digest, uri string,
	comments int,
) error {
	id := ""
	if p.deps.AuditIDs != nil {
		var err error
		if id, err = p.deps.AuditIDs.NewID(); err != nil {
			return fmt.Errorf("audit id: %w", err)
		}
	}
	return p.deps.Retrievals.StoreRetrieval(ctx, crawler.RetrievalRecord{
		ID:           id,
		AppID:        appID,
		URL:          page.URL,
		Hash:         digest,
		BlobURI:      uri,
		Expansions:   page.Expansions,
		CommentCount: comments,
		DurationMs:   page.Duration.Milliseconds(),
		RetrievedAt:  p.now(),
	})
}

func (p *Processor) snapshotPath(appID, digest string) string {
	name := fmt.Sprintf("%s-%s.html", appID, sha256.Short(digest, snapshotDigestLen))
	prefix := strings.Trim(p.cfg.SnapshotPrefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func (p *Processor) now() time.Time {
	if p.deps.Clock == nil {
		return time.Now().UTC()
	}
	return p.deps.Clock.Now()
}

type stageResult[T any] struct {
	val T
	err error
}

// runStage bounds a synchronous extraction step. Overrunning the budget is an
// extraction failure; the step's goroutine finishes in the background.
func runStage[T any](ctx context.Context, budget time.Duration, name, url string, fn func() (T, error)) (T, error) {
	var zero T
	stageCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	done := make(chan stageResult[T], 1)
	go func() {
		v, err := fn()
		done <- stageResult[T]{val: v, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return zero, tag(crawler.KindExtraction, url, res.err)
		}
		return res.val, nil
	case <-stageCtx.Done():
		if ctx.Err() != nil {
			return zero, crawler.NewError(crawler.KindUnknown, url, context.Cause(ctx))
		}
		return zero, crawler.Errorf(crawler.KindExtraction, url, "%s extraction exceeded %s", name, budget)
	}
}

// tag keeps an existing classification and fills in the URL.
func tag(kind crawler.ErrorKind, url string, err error) error {
	var tagged *crawler.Error
	if errors.As(err, &tagged) {
		if tagged.URL == "" {
			clone := *tagged
			clone.URL = url
			return &clone
		}
		return err
	}
	return crawler.NewError(kind, url, err)
}

package render

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-review-crawler/internal/policy/ratelimit"
)

// DefaultLoadMoreSelector matches the storefront's "more comments" button.
const DefaultLoadMoreSelector = "button.newbtn.AppCommentsList__loadmore"

// ErrBrowserClosed is returned by NewSession after Close.
var ErrBrowserClosed = errors.New("browser closed")

// ChromedpConfig controls the headless Chrome process.
type ChromedpConfig struct {
	Headless         bool
	MaxParallel      int
	UserAgent        string
	ActionTimeout    time.Duration
	LoadMoreSelector string
}

// ChromedpBrowser implements Browser with one Chrome process and a tab per session.
type ChromedpBrowser struct {
	cfg           ChromedpConfig
	logger        *zap.Logger
	limiter       *ratelimit.Limiter
	sem           chan struct{}
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	closeOnce     sync.Once
}

// NewChromedpBrowser launches Chrome and waits for it to accept targets.
// limiter may be nil.
func NewChromedpBrowser(cfg ChromedpConfig, limiter *ratelimit.Limiter, logger *zap.Logger) (*ChromedpBrowser, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 10 * time.Second
	}
	if cfg.LoadMoreSelector == "" {
		cfg.LoadMoreSelector = DefaultLoadMoreSelector
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	var sem chan struct{}
	if cfg.MaxParallel > 0 {
		sem = make(chan struct{}, cfg.MaxParallel)
	}
	return &ChromedpBrowser{
		cfg:           cfg,
		logger:        logger,
		limiter:       limiter,
		sem:           sem,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Close shuts down Chrome.
func (b *ChromedpBrowser) Close() error {
	b.closeOnce.Do(func() {
		b.browserCancel()
		b.allocCancel()
	})
	return nil
}

// NewSession opens a tab once a concurrency slot is free. Cancelling ctx
// closes the tab.
func (b *ChromedpBrowser) NewSession(ctx context.Context) (Session, error) {
	if b.browserCtx.Err() != nil {
		return nil, ErrBrowserClosed
	}
	release, err := b.acquireSlot(ctx)
	if err != nil {
		return nil, err
	}

	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	// The first Run attaches the tab; it must not inherit a deadline.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		release()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return &chromedpSession{
		browser:     b,
		tabCtx:      tabCtx,
		cancelTab:   cancelTab,
		release:     release,
		stopForward: forwardCancel(ctx, cancelTab),
	}, nil
}

func (b *ChromedpBrowser) acquireSlot(ctx context.Context) (func(), error) {
	if b.sem == nil {
		return func() {}, nil
	}
	select {
	case b.sem <- struct{}{}:
		return func() { <-b.sem }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire render slot: %w", ctx.Err())
	}
}

type chromedpSession struct {
	browser     *ChromedpBrowser
	tabCtx      context.Context
	cancelTab   context.CancelFunc
	release     func()
	stopForward func()
	closeOnce   sync.Once
}

func (s *chromedpSession) Navigate(ctx context.Context, url string) error {
	if err := s.browser.limiter.Wait(ctx, url); err != nil {
		return err
	}
	actions := []chromedp.Action{}
	if ua := s.browser.cfg.UserAgent; ua != "" {
		actions = append(actions, emulation.SetUserAgentOverride(ua))
	}
	actions = append(actions,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	return s.run(ctx, actions...)
}

func (s *chromedpSession) HasLoadMore(ctx context.Context) (bool, error) {
	var present bool
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		return !!el && !el.disabled && el.offsetParent !== null;
	})()`, strconv.Quote(s.browser.cfg.LoadMoreSelector))
	if err := s.run(ctx, chromedp.Evaluate(expr, &present)); err != nil {
		return false, err
	}
	return present, nil
}

func (s *chromedpSession) ClickLoadMore(ctx context.Context) error {
	actionCtx, cancel := context.WithTimeout(ctx, s.browser.cfg.ActionTimeout)
	defer cancel()
	return s.run(actionCtx, chromedp.Click(s.browser.cfg.LoadMoreSelector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (s *chromedpSession) ScrollToBottom(ctx context.Context) error {
	return s.run(ctx, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil))
}

func (s *chromedpSession) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (s *chromedpSession) Close() error {
	s.closeOnce.Do(func() {
		s.stopForward()
		s.cancelTab()
		s.release()
	})
	return nil
}

// run executes actions on the tab bounded by ctx's deadline and cancellation.
func (s *chromedpSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.tabCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := forwardCancel(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("chromedp run: %w", ctxErr)
		}
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

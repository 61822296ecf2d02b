// Package render drives a browser session through a page load and the
// exhaustive expansion of its comment list.
package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-review-crawler/internal/crawler"
	"github.com/JakeFAU/storefront-review-crawler/internal/metrics"
)

// Session is one browser tab. Close must be safe to call once per session.
type Session interface {
	Navigate(ctx context.Context, url string) error
	HasLoadMore(ctx context.Context) (bool, error)
	ClickLoadMore(ctx context.Context) error
	ScrollToBottom(ctx context.Context) error
	HTML(ctx context.Context) (string, error)
	Close() error
}

// Browser hands out sessions.
type Browser interface {
	NewSession(ctx context.Context) (Session, error)
}

// State is a renderer state.
type State int

// Renderer states.
const (
	StateLoading State = iota
	StateExpanding
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateExpanding:
		return "expanding"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config holds renderer timings.
type Config struct {
	NavigationTimeout time.Duration
	// ExpansionTimeout bounds the whole Loading to Complete sequence.
	ExpansionTimeout time.Duration
	SettleDelay      time.Duration
	StabilizeDelay   time.Duration
	// MaxExpansions caps load-more clicks; zero means until the control disappears.
	MaxExpansions int
	LogClicks     bool
}

// DefaultConfig mirrors the storefront's observed load behavior.
func DefaultConfig() Config {
	return Config{
		NavigationTimeout: 30 * time.Second,
		ExpansionTimeout:  360 * time.Second,
		SettleDelay:       2 * time.Second,
		StabilizeDelay:    time.Second,
	}
}

// Renderer implements crawler.Renderer on top of a Browser.
type Renderer struct {
	browser Browser
	cfg     Config
	logger  *zap.Logger
}

// New builds a Renderer. Zero timings fall back to DefaultConfig.
func New(browser Browser, cfg Config, logger *zap.Logger) *Renderer {
	def := DefaultConfig()
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = def.NavigationTimeout
	}
	if cfg.ExpansionTimeout <= 0 {
		cfg.ExpansionTimeout = def.ExpansionTimeout
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if cfg.StabilizeDelay < 0 {
		cfg.StabilizeDelay = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{browser: browser, cfg: cfg, logger: logger}
}

// Render loads url, clicks the load-more control until it is gone and returns
// the final markup. The session is released on every path.
func (r *Renderer) Render(ctx context.Context, url string) (crawler.RenderedPage, error) {
	start := time.Now()
	page, err := r.render(ctx, url)
	outcome := "ok"
	if err != nil {
		outcome = string(crawler.KindOf(err))
	}
	metrics.ObserveRender(outcome, time.Since(start))
	page.Duration = time.Since(start)
	return page, err
}

func (r *Renderer) render(ctx context.Context, url string) (crawler.RenderedPage, error) {
	budgetCtx, cancel := context.WithTimeout(ctx, r.cfg.ExpansionTimeout)
	defer cancel()

	logger := r.logger.With(zap.String("url", url))
	run := &run{ctx: ctx, budget: budgetCtx, url: url}

	session, err := r.browser.NewSession(budgetCtx)
	if err != nil {
		return crawler.RenderedPage{}, run.classify(fmt.Errorf("open session: %w", err), crawler.KindUnknown)
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			logger.Warn("close browser session", zap.Error(closeErr))
		}
	}()

	var (
		state  = StateLoading
		clicks int
		html   string
	)
	for {
		logger.Debug("render state", zap.Stringer("state", state), zap.Int("expansions", clicks))
		switch state {
		case StateLoading:
			navCtx, navCancel := context.WithTimeout(budgetCtx, r.cfg.NavigationTimeout)
			err = session.Navigate(navCtx, url)
			timedOut := errors.Is(navCtx.Err(), context.DeadlineExceeded)
			navCancel()
			if err != nil {
				kind := crawler.KindUnknown
				if timedOut || errors.Is(err, context.DeadlineExceeded) {
					kind = crawler.KindNavigationTimeout
				}
				state = StateFailed
				err = run.classify(fmt.Errorf("navigate: %w", err), kind)
				continue
			}
			state = StateExpanding

		case StateExpanding:
			clicked, more, expandErr := r.expandOnce(budgetCtx, session, clicks, logger)
			if clicked {
				clicks++
			}
			if expandErr != nil {
				state = StateFailed
				err = run.classify(expandErr, crawler.KindExpansionTimeout)
				continue
			}
			if !more {
				state = StateComplete
			}

		case StateComplete:
			html, err = session.HTML(budgetCtx)
			if err != nil {
				state = StateFailed
				err = run.classify(fmt.Errorf("capture html: %w", err), crawler.KindUnknown)
				continue
			}
			logger.Debug("render complete", zap.Int("expansions", clicks), zap.Int("bytes", len(html)))
			return crawler.RenderedPage{URL: url, HTML: html, Expansions: clicks}, nil

		case StateFailed:
			logger.Debug("render failed", zap.Int("expansions", clicks), zap.Error(err))
			return crawler.RenderedPage{URL: url, Expansions: clicks}, err
		}
	}
}

// expandOnce runs one probe, click, settle, scroll and stabilize cycle. It
// reports whether a click happened and whether another probe should follow.
// Probe, click and scroll errors end the expansion quietly; only budget
// expiry or cancellation is returned as an error.
func (r *Renderer) expandOnce(ctx context.Context, session Session, clicks int, logger *zap.Logger) (clicked, more bool, err error) {
	if err := ctx.Err(); err != nil {
		return false, false, err
	}
	if r.cfg.MaxExpansions > 0 && clicks >= r.cfg.MaxExpansions {
		logger.Debug("expansion cap reached", zap.Int("max", r.cfg.MaxExpansions))
		return false, false, nil
	}

	present, err := session.HasLoadMore(ctx)
	if err != nil {
		return false, false, r.quiet(ctx, logger, "probe load-more", err)
	}
	if !present {
		return false, false, nil
	}
	if err := session.ClickLoadMore(ctx); err != nil {
		return false, false, r.quiet(ctx, logger, "click load-more", err)
	}
	metrics.ObserveLoadMoreClick()
	if r.cfg.LogClicks {
		logger.Info("clicked load-more", zap.Int("click", clicks+1))
	}
	if err := crawler.SleepContext(ctx, r.cfg.SettleDelay); err != nil {
		return true, false, err
	}
	if err := session.ScrollToBottom(ctx); err != nil {
		return true, false, r.quiet(ctx, logger, "scroll to bottom", err)
	}
	if err := crawler.SleepContext(ctx, r.cfg.StabilizeDelay); err != nil {
		return true, false, err
	}
	return true, true, nil
}

// quiet downgrades an expansion error to "nothing more to expand" unless the
// budget ran out while it happened.
func (r *Renderer) quiet(ctx context.Context, logger *zap.Logger, step string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", step, ctxErr)
	}
	logger.Debug("expansion stopped", zap.String("step", step), zap.Error(err))
	return nil
}

type run struct {
	ctx    context.Context
	budget context.Context
	url    string
}

// classify tags err. Cancellation of the caller's context wins, then budget
// expiry, then the step's own kind.
func (r *run) classify(err error, kind crawler.ErrorKind) error {
	switch {
	case r.ctx.Err() != nil:
		return crawler.NewError(crawler.KindUnknown, r.url, fmt.Errorf("%w: %w", err, context.Cause(r.ctx)))
	case errors.Is(r.budget.Err(), context.DeadlineExceeded):
		return crawler.NewError(crawler.KindExpansionTimeout, r.url, fmt.Errorf("render budget exceeded: %w", err))
	default:
		return crawler.NewError(kind, r.url, err)
	}
}

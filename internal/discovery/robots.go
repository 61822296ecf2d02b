package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-review-crawler/internal/crawler"
)

// RobotsPolicy reports whether a URL may be crawled.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// Robots enforces robots.txt per host, fetching each file once through the
// shared fetcher.
type Robots struct {
	fetcher   crawler.Fetcher
	userAgent string
	logger    *zap.Logger

	mu    sync.Mutex
	cache map[string]*robotstxt.RobotsData
}

// NewRobots builds a Robots policy for the given user agent.
func NewRobots(fetcher crawler.Fetcher, userAgent string, logger *zap.Logger) *Robots {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Robots{
		fetcher:   fetcher,
		userAgent: userAgent,
		logger:    logger,
		cache:     make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed implements RobotsPolicy. Unreachable robots files allow access.
func (r *Robots) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false
	}
	data, err := r.load(ctx, parsed)
	if err != nil {
		r.logger.Warn("robots fetch failed; allowing access", zap.String("host", parsed.Host), zap.Error(err))
		return true
	}
	group := data.FindGroup(r.userAgent)
	if group == nil {
		return true
	}
	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}

func (r *Robots) load(ctx context.Context, parsed *url.URL) (*robotstxt.RobotsData, error) {
	host := strings.ToLower(parsed.Host)
	r.mu.Lock()
	cached, ok := r.cache[host]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	robotsURL := url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/robots.txt"}
	resp, err := r.fetcher.Fetch(ctx, crawler.FetchRequest{URL: robotsURL.String()})
	var data *robotstxt.RobotsData
	var status *crawler.StatusError
	switch {
	case err == nil:
		data, err = robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
	case errors.As(err, &status):
		data, err = robotstxt.FromStatusAndBytes(status.Code, nil)
	default:
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}

	r.mu.Lock()
	r.cache[host] = data
	r.mu.Unlock()
	return data, nil
}

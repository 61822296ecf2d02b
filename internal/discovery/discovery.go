// Package discovery lists the application pages linked from a storefront listing.
package discovery

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-review-crawler/internal/crawler"
)

// LinkParser extracts hrefs from listing markup.
type LinkParser interface {
	Links(html string) ([]string, error)
}

// Config locates the listing page.
type Config struct {
	BaseDomain   string
	ListingRoute string
	Timeout      time.Duration
}

// Discoverer implements crawler.LinkDiscoverer.
type Discoverer struct {
	cfg     Config
	fetcher crawler.Fetcher
	parser  LinkParser
	robots  RobotsPolicy
	logger  *zap.Logger
}

// New builds a Discoverer.
func New(cfg Config, fetcher crawler.Fetcher, parser LinkParser, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{cfg: cfg, fetcher: fetcher, parser: parser, logger: logger}
}

// WithRobots makes Links skip a disallowed listing and drop disallowed links.
func (d *Discoverer) WithRobots(p RobotsPolicy) *Discoverer {
	d.robots = p
	return d
}

// ListingURL is the absolute URL of the listing page.
func (d *Discoverer) ListingURL() (string, error) {
	return Resolve(d.cfg.BaseDomain, d.cfg.ListingRoute)
}

// Links fetches the listing and returns absolute application URLs in page
// order with duplicates removed.
func (d *Discoverer) Links(ctx context.Context) ([]string, error) {
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}
	listing, err := d.ListingURL()
	if err != nil {
		return nil, err
	}
	if d.robots != nil && !d.robots.Allowed(ctx, listing) {
		return nil, fmt.Errorf("listing %s disallowed by robots.txt", listing)
	}

	resp, err := d.fetcher.Fetch(ctx, crawler.FetchRequest{URL: listing})
	if err != nil {
		return nil, fmt.Errorf("fetch listing %s: %w", listing, err)
	}
	hrefs, err := d.parser.Links(string(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse listing %s: %w", listing, err)
	}

	seen := make(map[string]struct{}, len(hrefs))
	links := make([]string, 0, len(hrefs))
	for _, href := range hrefs {
		abs, err := Resolve(d.cfg.BaseDomain, href)
		if err != nil {
			d.logger.Warn("skipping unresolvable link", zap.String("href", href), zap.Error(err))
			continue
		}
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}
		if d.robots != nil && !d.robots.Allowed(ctx, abs) {
			d.logger.Info("skipping link disallowed by robots.txt", zap.String("url", abs))
			continue
		}
		links = append(links, abs)
	}
	d.logger.Info("listing discovered",
		zap.String("listing", listing),
		zap.Int("links", len(links)),
		zap.Int("attempts", resp.Attempts),
	)
	return links, nil
}

// Resolve joins ref onto base. Absolute refs are returned unchanged.
func Resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base domain %q: %w", base, err)
	}
	if b.Scheme == "" || b.Host == "" {
		return "", fmt.Errorf("base domain %q must be absolute", base)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse link %q: %w", ref, err)
	}
	resolved := b.ResolveReference(r)
	resolved.Fragment = ""
	return resolved.String(), nil
}

// Package collyfetcher implements Fetcher using gocolly with retries.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-review-crawler/internal/crawler"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	retry         crawler.RetryPolicy
	logger        *zap.Logger
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. A nil retry policy means a single attempt.
func New(cfg Config, retry crawler.RetryPolicy, logger *zap.Logger) *Fetcher {
	if retry == nil {
		retry = crawler.NewTransportRetryPolicy(crawler.RetryConfig{MaxAttempts: 0})
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		retry:         retry,
		logger:        logger,
		baseCollector: c,
	}
}

// Fetch GETs the URL, retrying transient failures per the retry policy.
// Non-2xx responses are returned as *crawler.StatusError.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	for attempt := 0; ; attempt++ {
		result, err := f.fetchOnce(ctx, request)
		if err == nil {
			result.Attempts = attempt + 1
			return result, nil
		}
		if ctx.Err() != nil || !f.retry.ShouldRetry(err, attempt) {
			return crawler.FetchResponse{}, err
		}
		delay := f.retry.Backoff(attempt)
		f.logger.Warn("fetch failed, retrying",
			zap.String("url", request.URL),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if sleepErr := crawler.SleepContext(ctx, delay); sleepErr != nil {
			return crawler.FetchResponse{}, fmt.Errorf("fetch retry canceled: %w", sleepErr)
		}
	}
}

func (f *Fetcher) fetchOnce(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	var (
		result   crawler.FetchResponse
		fetchErr error
	)
	collector := f.buildCollector(request, time.Now(), &result, &fetchErr)
	if err := f.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		return crawler.FetchResponse{}, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	request crawler.FetchRequest,
	start time.Time,
	result *crawler.FetchResponse,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	// Retries and repeated discovery runs visit the same URL.
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	f.configureCollectorHooks(collector, request, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request crawler.FetchRequest,
	start time.Time,
	result *crawler.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(request, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = crawler.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= http.StatusMultipleChoices {
			*fetchErr = &crawler.StatusError{Code: r.StatusCode}
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func (f *Fetcher) copyHeaders(request crawler.FetchRequest, r *colly.Request) {
	if request.Headers == nil {
		return
	}
	for key, values := range request.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

package crawler

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net"
	"net/http"
	"time"
)

// ExponentialRetryPolicy implements RetryPolicy with jittered backoff.
type ExponentialRetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	classify    func(error) bool
}

// RetryConfig tunes an ExponentialRetryPolicy.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// NewExponentialRetryPolicy builds a policy with sane defaults.
func NewExponentialRetryPolicy() *ExponentialRetryPolicy {
	return &ExponentialRetryPolicy{
		maxAttempts: 3,
		baseDelay:   250 * time.Millisecond,
		maxDelay:    5 * time.Second,
		classify:    transportRetryable,
	}
}

// NewTransportRetryPolicy retries transient transport failures for plain HTTP fetches.
func NewTransportRetryPolicy(cfg RetryConfig) *ExponentialRetryPolicy {
	p := NewExponentialRetryPolicy()
	p.apply(cfg)
	return p
}

// NewTargetRetryPolicy retries whole pipeline runs whose failure kind is Retryable.
func NewTargetRetryPolicy(cfg RetryConfig) *ExponentialRetryPolicy {
	p := NewExponentialRetryPolicy()
	p.apply(cfg)
	p.classify = Retryable
	return p
}

func (p *ExponentialRetryPolicy) apply(cfg RetryConfig) {
	if cfg.MaxAttempts >= 0 {
		p.maxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseDelay > 0 {
		p.baseDelay = cfg.BaseDelay
	}
	if cfg.MaxDelay > 0 {
		p.maxDelay = cfg.MaxDelay
	}
}

// ShouldRetry decides whether the error is retryable.
func (p *ExponentialRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	return p.classify(err)
}

// Backoff returns the wait duration before the next attempt.
func (p *ExponentialRetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := p.randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

func (p *ExponentialRetryPolicy) randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

func transportRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code >= 500 || status.Code == 429
	}
	return true
}

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

// SleepContext waits for d or until ctx ends.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

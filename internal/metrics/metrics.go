// Package metrics exposes Prometheus collectors for the crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App outcome labels.
const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusSeen      = "seen"
)

var (
	appsTotal                  *prometheus.CounterVec
	commentsTotal              *prometheus.CounterVec
	failuresTotal              *prometheus.CounterVec
	renderDurationSeconds      *prometheus.HistogramVec
	loadMoreClicksTotal        prometheus.Counter
	workbookRows               *prometheus.GaugeVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call multiple times; every Observe helper calls it.
func Init() {
	once.Do(func() {
		appsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appcrawler_apps_total",
				Help: "Application pages handled, labeled by site and outcome.",
			},
			[]string{"site", "status"},
		)

		commentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appcrawler_comments_total",
				Help: "Comments appended to the workbook, labeled by site.",
			},
			[]string{"site"},
		)

		failuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appcrawler_failures_total",
				Help: "Failure ledger entries, labeled by error kind.",
			},
			[]string{"kind"},
		)

		renderDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "appcrawler_render_duration_seconds",
				Help:    "Wall-clock time spent rendering and expanding a page.",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 240, 360},
			},
			[]string{"outcome"},
		)

		loadMoreClicksTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "appcrawler_load_more_clicks_total",
				Help: "Load-more controls clicked while expanding comment lists.",
			},
		)

		workbookRows = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "appcrawler_workbook_rows",
				Help: "Data rows currently stored per workbook sheet.",
			},
			[]string{"sheet"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "appcrawler_active_workers",
				Help: "Number of workers currently processing a target.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "appcrawler_rate_limit_delays_seconds",
				Help:    "Histogram of per-domain render throttle waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveApp counts one target outcome.
func ObserveApp(rawURL, status string) {
	Init()
	appsTotal.WithLabelValues(SanitizeSite(rawURL), status).Inc()
}

// ObserveComments adds n appended comments for the site.
func ObserveComments(rawURL string, n int) {
	Init()
	if n > 0 {
		commentsTotal.WithLabelValues(SanitizeSite(rawURL)).Add(float64(n))
	}
}

// ObserveFailure counts one failure ledger entry.
func ObserveFailure(kind string) {
	Init()
	failuresTotal.WithLabelValues(kind).Inc()
}

// ObserveRender records a render duration. outcome is "ok" or an error kind.
func ObserveRender(outcome string, duration time.Duration) {
	Init()
	renderDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveLoadMoreClick counts one expansion click.
func ObserveLoadMoreClick() {
	Init()
	loadMoreClicksTotal.Inc()
}

// SetWorkbookRows publishes the data row count of a sheet.
func SetWorkbookRows(sheet string, rows int) {
	Init()
	workbookRows.WithLabelValues(sheet).Set(float64(rows))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

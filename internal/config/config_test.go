package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Site.BaseDomain != "https://cafebazaar.ir" || cfg.Site.ListingRoute != "/lists/ml-mental-health-exercises" {
		t.Fatalf("unexpected site defaults: %+v", cfg.Site)
	}
	if cfg.NavigationTimeout() != 30*time.Second {
		t.Fatalf("expected 30s navigation timeout, got %v", cfg.NavigationTimeout())
	}
	if cfg.Headless.ExpansionTimeout != 360*time.Second {
		t.Fatalf("expected 360s expansion budget, got %v", cfg.Headless.ExpansionTimeout)
	}
	if cfg.Headless.SettleDelay != 2*time.Second || cfg.Headless.StabilizeDelay != time.Second {
		t.Fatalf("unexpected delays: %+v", cfg.Headless)
	}
	if !cfg.Headless.Headless || !cfg.Headless.LogClicks {
		t.Fatalf("expected headless and click logging on by default: %+v", cfg.Headless)
	}
	if !cfg.Crawler.HaltOnStoreError {
		t.Fatal("expected halt_on_store_error default true")
	}
	if cfg.Stages.MetadataTimeout != 30*time.Second || cfg.Stages.LinksTimeout != 30*time.Second {
		t.Fatalf("unexpected stage defaults: %+v", cfg.Stages)
	}
	if cfg.WorkbookPath() != filepath.Join("output", "apps_data.xlsx") {
		t.Fatalf("unexpected workbook path %s", cfg.WorkbookPath())
	}
	if cfg.FailedTasksPath() != filepath.Join("output", "failed_tasks.csv") {
		t.Fatalf("unexpected ledger path %s", cfg.FailedTasksPath())
	}
	if cfg.Selectors.Title != "h1.AppName" || cfg.Selectors.ImageAttr != "data-lazy-srcset" {
		t.Fatalf("unexpected selector defaults: %+v", cfg.Selectors)
	}
	if cfg.Snapshots.Backend != "" || cfg.DB.DSN != "" || cfg.Redis.Addr != "" {
		t.Fatal("expected optional outputs disabled by default")
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
output:
  dir: /tmp/run
  workbook: apps.xlsx
site:
  base_domain: https://example.com
  listing_route: /lists/games
crawler:
  concurrency: 6
  target_retries: 2
  retry_base_delay: 500ms
  halt_on_store_error: false
headless:
  headless: false
  nav_timeout_ms: 15000
  expansion_timeout: 2m
  max_expansions: 40
  log_clicks: false
stages:
  comments_timeout: 45s
snapshots:
  backend: gcs
  gcs_bucket: raw-pages
redis:
  addr: localhost:6379
  visited_ttl: 12h
selectors:
  title: h1.Title
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WorkbookPath() != filepath.Join("/tmp/run", "apps.xlsx") {
		t.Fatalf("unexpected workbook path %s", cfg.WorkbookPath())
	}
	if cfg.Site.BaseDomain != "https://example.com" || cfg.Site.ListingRoute != "/lists/games" {
		t.Fatalf("unexpected site: %+v", cfg.Site)
	}
	if cfg.Crawler.Concurrency != 6 || cfg.Crawler.TargetRetries != 2 || cfg.Crawler.HaltOnStoreError {
		t.Fatalf("unexpected crawler config: %+v", cfg.Crawler)
	}
	if cfg.Crawler.RetryBaseDelay != 500*time.Millisecond {
		t.Fatalf("expected 500ms base delay, got %v", cfg.Crawler.RetryBaseDelay)
	}
	if cfg.Headless.Headless || cfg.Headless.LogClicks || cfg.Headless.MaxExpansions != 40 {
		t.Fatalf("unexpected headless config: %+v", cfg.Headless)
	}
	if cfg.NavigationTimeout() != 15*time.Second || cfg.Headless.ExpansionTimeout != 2*time.Minute {
		t.Fatalf("unexpected timeouts: %+v", cfg.Headless)
	}
	if cfg.Stages.CommentsTimeout != 45*time.Second || cfg.Stages.MetadataTimeout != 30*time.Second {
		t.Fatalf("unexpected stages: %+v", cfg.Stages)
	}
	if cfg.Snapshots.GCSBucket != "raw-pages" || cfg.Redis.VisitedTTL != 12*time.Hour {
		t.Fatalf("unexpected optional outputs: %+v %+v", cfg.Snapshots, cfg.Redis)
	}
	if cfg.Selectors.Title != "h1.Title" || cfg.Selectors.Header != "section.DetailsPageHeader" {
		t.Fatalf("unexpected selectors: %+v", cfg.Selectors)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("APPCRAWLER_CRAWLER_CONCURRENCY", "9")
	t.Setenv("APPCRAWLER_DB_DSN", "postgres://crawler@localhost/crawler")
	t.Setenv("APPCRAWLER_HEADLESS_EXPANSION_TIMEOUT", "90s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawler.Concurrency != 9 {
		t.Fatalf("expected concurrency 9, got %d", cfg.Crawler.Concurrency)
	}
	if cfg.DB.DSN != "postgres://crawler@localhost/crawler" {
		t.Fatalf("expected DSN from env, got %q", cfg.DB.DSN)
	}
	if cfg.Headless.ExpansionTimeout != 90*time.Second {
		t.Fatalf("expected 90s, got %v", cfg.Headless.ExpansionTimeout)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"relative base domain", func(c *Config) { c.Site.BaseDomain = "cafebazaar.ir" }, "site.base_domain"},
		{"zero concurrency", func(c *Config) { c.Crawler.Concurrency = 0 }, "crawler.concurrency"},
		{"negative retries", func(c *Config) { c.Crawler.TargetRetries = -1 }, "crawler.target_retries"},
		{"zero http timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, "http.timeout_seconds"},
		{"zero parallel", func(c *Config) { c.Headless.MaxParallel = 0 }, "headless.max_parallel"},
		{"zero nav timeout", func(c *Config) { c.Headless.NavTimeoutMs = 0 }, "headless.nav_timeout_ms"},
		{"negative expansions", func(c *Config) { c.Headless.MaxExpansions = -1 }, "headless.max_expansions"},
		{"gcs without bucket", func(c *Config) { c.Snapshots.Backend = "gcs" }, "snapshots.gcs_bucket"},
		{"unknown backend", func(c *Config) { c.Snapshots.Backend = "s3" }, "snapshots.backend"},
		{"topic without project", func(c *Config) { c.PubSub.TopicName = "apps" }, "pubsub.project_id"},
		{"redis without ttl", func(c *Config) { c.Redis.Addr = "localhost:6379"; c.Redis.VisitedTTL = 0 }, "redis.visited_ttl"},
		{"empty output", func(c *Config) { c.Output.Workbook = "" }, "output.workbook"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

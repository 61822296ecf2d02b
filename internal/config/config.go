// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/storefront-review-crawler/internal/extract"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Output    OutputConfig      `mapstructure:"output"`
	Site      SiteConfig        `mapstructure:"site"`
	Crawler   CrawlerConfig     `mapstructure:"crawler"`
	HTTP      HTTPConfig        `mapstructure:"http"`
	Headless  HeadlessConfig    `mapstructure:"headless"`
	Stages    StagesConfig      `mapstructure:"stages"`
	Logging   LoggingConfig     `mapstructure:"logging"`
	Snapshots SnapshotsConfig   `mapstructure:"snapshots"`
	DB        DBConfig          `mapstructure:"db"`
	PubSub    PubSubConfig      `mapstructure:"pubsub"`
	Redis     RedisConfig       `mapstructure:"redis"`
	Metrics   MetricsConfig     `mapstructure:"metrics"`
	Selectors extract.Selectors `mapstructure:"selectors"`
}

// OutputConfig names the files a run writes.
type OutputConfig struct {
	Dir         string `mapstructure:"dir"`
	Workbook    string `mapstructure:"workbook"`
	FailedTasks string `mapstructure:"failed_tasks"`
	LogFile     string `mapstructure:"log_file"`
}

// SiteConfig locates the storefront listing.
type SiteConfig struct {
	BaseDomain    string `mapstructure:"base_domain"`
	ListingRoute  string `mapstructure:"listing_route"`
	RespectRobots bool   `mapstructure:"respect_robots"`
}

// CrawlerConfig governs dispatcher and retry behavior.
type CrawlerConfig struct {
	Concurrency      int           `mapstructure:"concurrency"`
	QueueDepth       int           `mapstructure:"queue_depth"`
	UserAgent        string        `mapstructure:"user_agent"`
	TargetRetries    int           `mapstructure:"target_retries"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay    time.Duration `mapstructure:"retry_max_delay"`
	HaltOnStoreError bool          `mapstructure:"halt_on_store_error"`
	RenderRPS        float64       `mapstructure:"render_rps"`
	RenderBurst      int           `mapstructure:"render_burst"`
}

// HTTPConfig configures the listing fetch.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// HeadlessConfig configures the browser renderer.
type HeadlessConfig struct {
	Headless         bool          `mapstructure:"headless"`
	MaxParallel      int           `mapstructure:"max_parallel"`
	NavTimeoutMs     int           `mapstructure:"nav_timeout_ms"`
	ExpansionTimeout time.Duration `mapstructure:"expansion_timeout"`
	SettleDelay      time.Duration `mapstructure:"settle_delay"`
	StabilizeDelay   time.Duration `mapstructure:"stabilize_delay"`
	ActionTimeout    time.Duration `mapstructure:"action_timeout"`
	MaxExpansions    int           `mapstructure:"max_expansions"`
	LoadMoreSelector string        `mapstructure:"load_more_selector"`
	LogClicks        bool          `mapstructure:"log_clicks"`
}

// StagesConfig bounds the extraction and discovery stages.
type StagesConfig struct {
	MetadataTimeout time.Duration `mapstructure:"metadata_timeout"`
	CommentsTimeout time.Duration `mapstructure:"comments_timeout"`
	LinksTimeout    time.Duration `mapstructure:"links_timeout"`
}

// LoggingConfig toggles zap development features and the rotating file sink.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	Stacktraces bool   `mapstructure:"stacktraces"`
	File        bool   `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
	Compress    bool   `mapstructure:"compress"`
}

// SnapshotsConfig selects where raw rendered HTML is archived. Backend is
// "", "local" or "gcs".
type SnapshotsConfig struct {
	Backend     string `mapstructure:"backend"`
	Dir         string `mapstructure:"dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// DBConfig controls the render audit table.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig holds the notification topic.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// RedisConfig enables cross-run skip-if-seen.
type RedisConfig struct {
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	Prefix     string        `mapstructure:"prefix"`
	VisitedTTL time.Duration `mapstructure:"visited_ttl"`
}

// MetricsConfig starts the operator HTTP server when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("APPCRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.workbook", "apps_data.xlsx")
	v.SetDefault("output.failed_tasks", "failed_tasks.csv")
	v.SetDefault("output.log_file", "crawler.log")
	v.SetDefault("site.base_domain", "https://cafebazaar.ir")
	v.SetDefault("site.listing_route", "/lists/ml-mental-health-exercises")
	v.SetDefault("site.respect_robots", false)
	v.SetDefault("crawler.concurrency", 2)
	v.SetDefault("crawler.queue_depth", 64)
	v.SetDefault("crawler.user_agent", "storefront-review-crawler/0.1")
	v.SetDefault("crawler.target_retries", 1)
	v.SetDefault("crawler.retry_base_delay", 2*time.Second)
	v.SetDefault("crawler.retry_max_delay", 30*time.Second)
	v.SetDefault("crawler.halt_on_store_error", true)
	v.SetDefault("crawler.render_rps", 0.5)
	v.SetDefault("crawler.render_burst", 1)
	v.SetDefault("http.timeout_seconds", 10)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 2000)
	v.SetDefault("headless.headless", true)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_ms", 30000)
	v.SetDefault("headless.expansion_timeout", 360*time.Second)
	v.SetDefault("headless.settle_delay", 2*time.Second)
	v.SetDefault("headless.stabilize_delay", time.Second)
	v.SetDefault("headless.action_timeout", 10*time.Second)
	v.SetDefault("headless.max_expansions", 0)
	v.SetDefault("headless.load_more_selector", "button.newbtn.AppCommentsList__loadmore")
	v.SetDefault("headless.log_clicks", true)
	v.SetDefault("stages.metadata_timeout", 30*time.Second)
	v.SetDefault("stages.comments_timeout", 30*time.Second)
	v.SetDefault("stages.links_timeout", 30*time.Second)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("snapshots.dir", "snapshots")
	v.SetDefault("snapshots.prefix", "pages")
	v.SetDefault("snapshots.content_type", "text/html; charset=utf-8")
	v.SetDefault("db.table", "render_retrievals")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.max_conn_lifetime", time.Hour)
	v.SetDefault("redis.prefix", "appcrawler:visited:")
	v.SetDefault("redis.visited_ttl", 24*time.Hour)
	// Empty defaults register the keys so environment overrides reach Unmarshal.
	for _, key := range []string{
		"snapshots.backend", "snapshots.gcs_bucket", "db.dsn", "pubsub.project_id",
		"pubsub.topic_name", "redis.addr", "redis.password", "metrics.addr",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("redis.db", 0)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("logging.stacktraces", false)
	v.SetDefault("logging.compress", false)
	for key, val := range selectorDefaults() {
		v.SetDefault("selectors."+key, val)
	}
}

func selectorDefaults() map[string]string {
	d := extract.DefaultSelectors()
	return map[string]string{
		"header":           d.Header,
		"title":            d.Title,
		"info_cube":        d.InfoCube,
		"description":      d.Description,
		"carousel_image":   d.CarouselImage,
		"image_attr":       d.ImageAttr,
		"comment":          d.Comment,
		"account_attr":     d.AccountAttr,
		"username":         d.Username,
		"body":             d.Body,
		"rating_fill":      d.RatingFill,
		"rating_container": d.RatingContainer,
		"app_link":         d.AppLink,
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if c.Output.Dir == "" || c.Output.Workbook == "" || c.Output.FailedTasks == "" {
		errs = append(errs, errors.New("output.dir, output.workbook and output.failed_tasks must be set"))
	}
	if u, err := url.Parse(c.Site.BaseDomain); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("site.base_domain must be an absolute URL, got %q", c.Site.BaseDomain))
	}
	if c.Crawler.Concurrency <= 0 {
		errs = append(errs, errors.New("crawler.concurrency must be > 0"))
	}
	if c.Crawler.QueueDepth < 0 {
		errs = append(errs, errors.New("crawler.queue_depth must be >= 0"))
	}
	if c.Crawler.TargetRetries < 0 {
		errs = append(errs, errors.New("crawler.target_retries must be >= 0"))
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("http.timeout_seconds must be > 0"))
	}
	if c.Headless.MaxParallel <= 0 {
		errs = append(errs, errors.New("headless.max_parallel must be > 0"))
	}
	if c.Headless.NavTimeoutMs <= 0 || c.Headless.ExpansionTimeout <= 0 {
		errs = append(errs, errors.New("headless.nav_timeout_ms and headless.expansion_timeout must be > 0"))
	}
	if c.Headless.MaxExpansions < 0 {
		errs = append(errs, errors.New("headless.max_expansions must be >= 0"))
	}
	switch c.Snapshots.Backend {
	case "", "local":
	case "gcs":
		if c.Snapshots.GCSBucket == "" {
			errs = append(errs, errors.New("snapshots.gcs_bucket must be set for the gcs backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("snapshots.backend %q is not one of local, gcs", c.Snapshots.Backend))
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		errs = append(errs, errors.New("pubsub.project_id must be set when pubsub.topic_name is"))
	}
	if c.Redis.Addr != "" && c.Redis.VisitedTTL <= 0 {
		errs = append(errs, errors.New("redis.visited_ttl must be > 0 when redis.addr is set"))
	}
	return errors.Join(errs...)
}

// WorkbookPath returns the workbook location under the output directory.
func (c Config) WorkbookPath() string {
	return filepath.Join(c.Output.Dir, c.Output.Workbook)
}

// FailedTasksPath returns the failure ledger location.
func (c Config) FailedTasksPath() string {
	return filepath.Join(c.Output.Dir, c.Output.FailedTasks)
}

// LogFilePath returns the rotating log file location.
func (c Config) LogFilePath() string {
	return filepath.Join(c.Output.Dir, c.Output.LogFile)
}

// NavigationTimeout converts the page-load budget to a duration.
func (c Config) NavigationTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutMs) * time.Millisecond
}

// HTTPTimeout converts the listing fetch timeout to a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

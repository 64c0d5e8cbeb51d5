// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/wikititles-crawler/internal/crawler"
	"github.com/JakeFAU/wikititles-crawler/internal/retry"
)

// Site environments.
const (
	EnvDev        = "dev"
	EnvWikipedia  = "wikipedia"
	EnvProduction = "production"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Site      SiteConfig      `mapstructure:"site"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Retry     RetryConfig     `mapstructure:"retry"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Report    ReportConfig    `mapstructure:"report"`
	Status    StatusConfig    `mapstructure:"status"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// SiteConfig selects the MediaWiki endpoint.
type SiteConfig struct {
	Env               string `mapstructure:"env"`
	BaseURL           string `mapstructure:"base_url"`
	ProdBaseURL       string `mapstructure:"prod_base_url"`
	DevBaseURL        string `mapstructure:"dev_base_url"`
	DevNamespaceLimit int    `mapstructure:"dev_namespace_limit"`
}

// CrawlerConfig governs pool sizing and per-namespace pagination.
type CrawlerConfig struct {
	Concurrency            int    `mapstructure:"concurrency"`
	ProgressInterval       int    `mapstructure:"progress_interval"`
	MaxBatchesPerNamespace int    `mapstructure:"max_batches_per_namespace"`
	CountMode              string `mapstructure:"count_mode"`
}

// RetryConfig mirrors retry.Policy.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Factor      float64       `mapstructure:"factor"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Randomize   bool          `mapstructure:"randomize"`
	Classify    bool          `mapstructure:"classify"`
}

// HTTPConfig configures the fetcher.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
}

// PublisherConfig selects where title batches go.
type PublisherConfig struct {
	Kind      string `mapstructure:"kind"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ReportConfig selects where the final report is exported.
type ReportConfig struct {
	Kind   string `mapstructure:"kind"`
	Dir    string `mapstructure:"dir"`
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
	DSN    string `mapstructure:"dsn"`
	Table  string `mapstructure:"table"`
}

// StatusConfig enables the status server when Addr is set.
type StatusConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig names the service for tracing.
type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	ProjectID   string `mapstructure:"project_id"`
}

// Plan is the run shape resolved once before dispatch.
type Plan struct {
	Env     string
	BaseURL string
	// NamespaceLimit truncates the discovered namespaces; zero keeps them all.
	NamespaceLimit int
	Parallelism    int
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
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
	v.SetDefault("site.env", EnvDev)
	v.SetDefault("site.base_url", "")
	v.SetDefault("site.prod_base_url", "https://en.wikipedia.org/w/api.php?origin=*")
	v.SetDefault("site.dev_base_url", "https://www.mediawiki.org/w/api.php?origin=*")
	v.SetDefault("site.dev_namespace_limit", 2)
	v.SetDefault("crawler.concurrency", 0)
	v.SetDefault("crawler.progress_interval", 10000)
	v.SetDefault("crawler.max_batches_per_namespace", 0)
	v.SetDefault("crawler.count_mode", string(crawler.CountReported))
	v.SetDefault("retry.max_attempts", 6)
	v.SetDefault("retry.factor", 3.0)
	v.SetDefault("retry.min_delay", 200*time.Millisecond)
	v.SetDefault("retry.max_delay", 2*time.Second)
	v.SetDefault("retry.randomize", true)
	v.SetDefault("retry.classify", false)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.user_agent", "wikititles-crawler/0.1")
	v.SetDefault("publisher.kind", "none")
	v.SetDefault("publisher.project_id", "")
	v.SetDefault("publisher.topic", "")
	v.SetDefault("report.kind", "none")
	v.SetDefault("report.dir", "reports")
	v.SetDefault("report.bucket", "")
	v.SetDefault("report.prefix", "runs")
	v.SetDefault("report.dsn", "")
	v.SetDefault("report.table", "namespace_counts")
	v.SetDefault("status.addr", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("telemetry.service_name", "wikititles-crawler")
	v.SetDefault("telemetry.project_id", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.Concurrency < 0 {
		return fmt.Errorf("crawler.concurrency must be >= 0")
	}
	if c.Crawler.ProgressInterval <= 0 {
		return fmt.Errorf("crawler.progress_interval must be > 0")
	}
	if c.Crawler.MaxBatchesPerNamespace < 0 {
		return fmt.Errorf("crawler.max_batches_per_namespace must be >= 0")
	}
	switch crawler.CountMode(c.Crawler.CountMode) {
	case crawler.CountReported, crawler.CountTitles:
	default:
		return fmt.Errorf("crawler.count_mode must be %q or %q", crawler.CountReported, crawler.CountTitles)
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	if c.Retry.Factor < 1 {
		return fmt.Errorf("retry.factor must be >= 1")
	}
	if c.Retry.MinDelay < 0 || c.Retry.MaxDelay < c.Retry.MinDelay {
		return fmt.Errorf("retry delays must satisfy 0 <= min_delay <= max_delay")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	switch c.Publisher.Kind {
	case "none", "memory":
	case "pubsub":
		if c.Publisher.ProjectID == "" || c.Publisher.Topic == "" {
			return fmt.Errorf("publisher.project_id and publisher.topic are required for pubsub")
		}
	default:
		return fmt.Errorf("unknown publisher.kind %q", c.Publisher.Kind)
	}
	switch c.Report.Kind {
	case "none":
	case "local":
		if c.Report.Dir == "" {
			return fmt.Errorf("report.dir is required for local reports")
		}
	case "gcs":
		if c.Report.Bucket == "" {
			return fmt.Errorf("report.bucket is required for gcs reports")
		}
	case "postgres":
		if c.Report.DSN == "" {
			return fmt.Errorf("report.dsn is required for postgres reports")
		}
	default:
		return fmt.Errorf("unknown report.kind %q", c.Report.Kind)
	}
	return nil
}

// Resolve computes the run plan. numCPU is consulted only when
// crawler.concurrency is zero.
func (c Config) Resolve(numCPU int) Plan {
	plan := Plan{Env: strings.ToLower(strings.TrimSpace(c.Site.Env))}
	switch plan.Env {
	case EnvWikipedia, EnvProduction:
		plan.BaseURL = c.Site.ProdBaseURL
	case EnvDev:
		plan.BaseURL = c.Site.DevBaseURL
		plan.NamespaceLimit = c.Site.DevNamespaceLimit
	default:
		plan.BaseURL = c.Site.DevBaseURL
	}
	if c.Site.BaseURL != "" {
		plan.BaseURL = c.Site.BaseURL
	}
	plan.Parallelism = c.Crawler.Concurrency
	if plan.Parallelism <= 0 {
		plan.Parallelism = numCPU
	}
	if plan.Parallelism <= 0 {
		plan.Parallelism = runtime.NumCPU()
	}
	return plan
}

// RetryPolicy converts the retry section into a retry.Policy.
func (c Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		Factor:      c.Retry.Factor,
		MinDelay:    c.Retry.MinDelay,
		MaxDelay:    c.Retry.MaxDelay,
		Randomize:   c.Retry.Randomize,
		Classify:    c.Retry.Classify,
	}
}

// HTTPTimeout returns the per-request timeout.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// Truncate applies the plan's namespace limit.
func (p Plan) Truncate(namespaces []crawler.Namespace) []crawler.Namespace {
	if p.NamespaceLimit > 0 && len(namespaces) > p.NamespaceLimit {
		return namespaces[:p.NamespaceLimit]
	}
	return namespaces
}

// Package config loads and validates harvester configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/JakeFAU/news-harvester/internal/harvest"
	"github.com/JakeFAU/news-harvester/internal/portal"
)

// EnvPrefix prefixes every environment override, e.g. HARVEST_CRAWL_WINDOW_DAYS.
const EnvPrefix = "HARVEST"

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Portal  PortalConfig  `mapstructure:"portal"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Proxy   ProxyConfig   `mapstructure:"proxy"`
	Paths   PathsConfig   `mapstructure:"paths"`
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
	Sinks   SinksConfig   `mapstructure:"sinks"`
	Browser BrowserConfig `mapstructure:"browser"`
	Run     RunConfig     `mapstructure:"run"`
}

// PortalConfig describes the news portal endpoints.
type PortalConfig struct {
	BaseURL          string        `mapstructure:"base_url" validate:"required,url"`
	UserAgent        string        `mapstructure:"user_agent" validate:"required"`
	Timeout          time.Duration `mapstructure:"timeout" validate:"gt=0"`
	PageSize         int           `mapstructure:"page_size" validate:"gt=0"`
	FallbackPageSize int           `mapstructure:"fallback_page_size" validate:"gt=0,ltefield=PageSize"`
}

// CrawlConfig governs partitioning, pacing and fan-out.
type CrawlConfig struct {
	WindowDays  int    `mapstructure:"window_days" validate:"gt=0"`
	MaxRequests int    `mapstructure:"max_requests" validate:"gte=0"`
	PerSeconds  int    `mapstructure:"per_seconds" validate:"gte=0"`
	MaxInFlight int    `mapstructure:"max_in_flight" validate:"gt=0"`
	Discovery   string `mapstructure:"discovery" validate:"oneof=api browser"`
}

// RetryConfig shapes the retry policy. MaxAttempts 0 retries forever without
// backoff.
type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts" validate:"gte=0"`
	BackoffInitial time.Duration `mapstructure:"backoff_initial" validate:"gte=0"`
	BackoffMax     time.Duration `mapstructure:"backoff_max" validate:"gtefield=BackoffInitial"`
}

// ProxyConfig lists egress proxies and how they are validated.
type ProxyConfig struct {
	Candidates    []string      `mapstructure:"candidates" validate:"min=1,dive,required"`
	BlacklistFile string        `mapstructure:"blacklist_file" validate:"required"`
	ProbeDate     string        `mapstructure:"probe_date" validate:"required,datetime=2006-01-02"`
	ProbeCode     string        `mapstructure:"probe_code" validate:"required"`
	LockTTL       time.Duration `mapstructure:"lock_ttl" validate:"gt=0"`
}

// PathsConfig locates state, output and the publisher table.
type PathsConfig struct {
	StateDir   string `mapstructure:"state_dir" validate:"required"`
	OutputDir  string `mapstructure:"output_dir" validate:"required"`
	PressCodes string `mapstructure:"press_codes" validate:"required"`
}

// LoggingConfig toggles zap development features and the log file.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
	Level       string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

// ServerConfig controls the status server. Port 0 disables it.
type ServerConfig struct {
	Port int `mapstructure:"port" validate:"gte=0,lte=65535"`
}

// SinksConfig enables optional destinations for merged periods.
type SinksConfig struct {
	GCSBucket     string `mapstructure:"gcs_bucket"`
	GCSPrefix     string `mapstructure:"gcs_prefix"`
	PubSubProject string `mapstructure:"pubsub_project" validate:"required_with=PubSubTopic"`
	PubSubTopic   string `mapstructure:"pubsub_topic" validate:"required_with=PubSubProject"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	PostgresTable string `mapstructure:"postgres_table" validate:"required_with=PostgresDSN"`
}

// BrowserConfig configures browser discovery.
type BrowserConfig struct {
	Headless   bool          `mapstructure:"headless"`
	NavTimeout time.Duration `mapstructure:"nav_timeout" validate:"gt=0"`
	ExecPath   string        `mapstructure:"exec_path"`
}

// RunConfig is the harvest request. Flags usually override it.
type RunConfig struct {
	Begin string   `mapstructure:"begin" validate:"omitempty,datetime=2006-01-02"`
	End   string   `mapstructure:"end" validate:"omitempty,datetime=2006-01-02"`
	Press []string `mapstructure:"press" validate:"dive,required"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
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
	v.SetDefault("portal.base_url", portal.DefaultBaseURL)
	v.SetDefault("portal.user_agent", portal.DefaultUserAgent)
	v.SetDefault("portal.timeout", portal.DefaultTimeout)
	v.SetDefault("portal.page_size", 100)
	v.SetDefault("portal.fallback_page_size", 10)
	v.SetDefault("crawl.window_days", 10)
	v.SetDefault("crawl.max_requests", 100)
	v.SetDefault("crawl.per_seconds", 3)
	v.SetDefault("crawl.max_in_flight", 8)
	v.SetDefault("crawl.discovery", "api")
	v.SetDefault("retry.max_attempts", 8)
	v.SetDefault("retry.backoff_initial", 250*time.Millisecond)
	v.SetDefault("retry.backoff_max", 10*time.Second)
	v.SetDefault("proxy.candidates", []string{})
	v.SetDefault("proxy.blacklist_file", "state/proxy_blacklist.txt")
	v.SetDefault("proxy.probe_date", "2023-08-01")
	v.SetDefault("proxy.probe_code", "02100601")
	v.SetDefault("proxy.lock_ttl", 30*time.Second)
	v.SetDefault("paths.state_dir", "state")
	v.SetDefault("paths.output_dir", "data")
	v.SetDefault("paths.press_codes", "press_codes.yaml")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("server.port", 0)
	v.SetDefault("sinks.postgres_table", "articles")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.nav_timeout", 30*time.Second)
	v.SetDefault("run.press", []string{})
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Portal.PageSize%c.Portal.FallbackPageSize != 0 {
		return fmt.Errorf("portal.page_size must be a multiple of portal.fallback_page_size")
	}
	if c.Crawl.MaxRequests > 0 && c.Crawl.PerSeconds == 0 {
		return errors.New("crawl.per_seconds must be > 0 when crawl.max_requests is set")
	}
	return nil
}

// Range resolves the run dates. An empty end harvests a single day.
func (r RunConfig) Range() (harvest.DateRange, error) {
	if r.Begin == "" {
		return harvest.DateRange{}, errors.New("run.begin is required")
	}
	return harvest.ParseDateRange(r.Begin, r.End)
}

// Selection resolves the publisher selection. One name is a single
// selection; more names form a batch.
func (r RunConfig) Selection() (harvest.Selection, error) {
	var sel harvest.Selection
	switch len(r.Press) {
	case 0:
		return sel, errors.New("run.press requires at least one publisher")
	case 1:
		sel = harvest.Single(r.Press[0])
	default:
		sel = harvest.Batch(r.Press...)
	}
	return sel, sel.Validate()
}

// ProbeDay parses the proxy probe date.
func (p ProxyConfig) ProbeDay() (time.Time, error) {
	day, err := time.Parse(harvest.DateLayout, p.ProbeDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse proxy.probe_date: %w", err)
	}
	return day, nil
}

// Per returns the rate limit period.
func (c CrawlConfig) Per() time.Duration {
	return time.Duration(c.PerSeconds) * time.Second
}

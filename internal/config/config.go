package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the full application configuration, loaded from a YAML file
// with environment variable overrides for the injected pieces (database
// DSN, port, webhook secret).
type Config struct {
	App      AppConfig      `yaml:"app"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Crawl    CrawlConfig    `yaml:"crawl"`
	Database DatabaseConfig `yaml:"database"`
	Sources  []SourceConfig `yaml:"sources"`
}

type AppConfig struct {
	Name string `yaml:"name"`
	Env  string `yaml:"env"`
	Port int    `yaml:"port"`
}

type WebhookConfig struct {
	Secret string `yaml:"secret"`
	// TitlePrefix is the fixed prefix in "Prefix | SourceName" titles.
	TitlePrefix string `yaml:"title_prefix"`
}

type ScheduleConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalMinutes int  `yaml:"interval_minutes"`
}

type CrawlConfig struct {
	MaxDurationMinutes int     `yaml:"max_duration_minutes"`
	MaxErrorRate       float64 `yaml:"max_error_rate"`
	RequestDelayMs     int     `yaml:"request_delay_ms"`
	MaxRetries         int     `yaml:"max_retries"`
	UserAgent          string  `yaml:"user_agent"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// SourceConfig describes one county site: where its paginated index lives
// and which selectors yield which raw fields. Raw field names here are the
// keys the mapping tables translate; selectors stay out of the normalizer.
type SourceConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Active   bool   `yaml:"active"`
	IDPrefix string `yaml:"id_prefix"`

	IndexURL  string           `yaml:"index_url"`
	PageParam string           `yaml:"page_param"` // empty = single page
	PageStart int              `yaml:"page_start"`
	MaxPages  int              `yaml:"max_pages"`
	RowSel    string           `yaml:"row_selector"`
	NativeID  SelectorConfig   `yaml:"native_id"`
	Fields    map[string]string `yaml:"fields"` // raw field name -> selector

	Detail *DetailConfig `yaml:"detail"`
}

// SelectorConfig extracts a single value from a row: the text of Selector,
// or attribute Attr of the row element (or of Selector when both set).
type SelectorConfig struct {
	Selector string `yaml:"selector"`
	Attr     string `yaml:"attr"`
}

// DetailConfig describes the optional per-listing detail page.
type DetailConfig struct {
	LinkSel string            `yaml:"link_selector"` // anchor in the index row
	Fields  map[string]string `yaml:"fields"`
}

// Defaults applied when the YAML omits a value.
const (
	defaultPort            = 8080
	defaultIntervalMinutes = 30
	defaultMaxDuration     = 45
	defaultMaxErrorRate    = 0.25
	defaultRequestDelayMs  = 1500
	defaultMaxRetries      = 3
)

// Load reads the YAML config at path and applies env overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Port == 0 {
		c.App.Port = defaultPort
	}
	if c.Schedule.IntervalMinutes <= 0 {
		c.Schedule.IntervalMinutes = defaultIntervalMinutes
	}
	if c.Crawl.MaxDurationMinutes <= 0 {
		c.Crawl.MaxDurationMinutes = defaultMaxDuration
	}
	if c.Crawl.MaxErrorRate <= 0 {
		c.Crawl.MaxErrorRate = defaultMaxErrorRate
	}
	if c.Crawl.RequestDelayMs <= 0 {
		c.Crawl.RequestDelayMs = defaultRequestDelayMs
	}
	if c.Crawl.MaxRetries <= 0 {
		c.Crawl.MaxRetries = defaultMaxRetries
	}
	for i := range c.Sources {
		if c.Sources[i].PageStart == 0 {
			c.Sources[i].PageStart = 1
		}
		if c.Sources[i].MaxPages == 0 {
			c.Sources[i].MaxPages = 50
		}
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("WEBHOOK_SECRET"); v != "" {
		c.Webhook.Secret = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.App.Port = p
		}
	}
}

func (c *Config) validate() error {
	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if s.ID == "" {
			return fmt.Errorf("source with empty id in config")
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate source id %q in config", s.ID)
		}
		seen[s.ID] = true
		if s.IndexURL == "" {
			return fmt.Errorf("source %s: index_url is required", s.ID)
		}
		if s.RowSel == "" {
			return fmt.Errorf("source %s: row_selector is required", s.ID)
		}
	}
	return nil
}

// MaxCrawlDuration returns the run timeout as a duration.
func (c *Config) MaxCrawlDuration() time.Duration {
	return time.Duration(c.Crawl.MaxDurationMinutes) * time.Minute
}

// ScheduleInterval returns the recurring trigger interval as a duration.
func (c *Config) ScheduleInterval() time.Duration {
	return time.Duration(c.Schedule.IntervalMinutes) * time.Minute
}

// RequestDelay returns the inter-request crawl delay as a duration.
func (c *Config) RequestDelay() time.Duration {
	return time.Duration(c.Crawl.RequestDelayMs) * time.Millisecond
}

// SourceByID returns the source config for id, or nil.
func (c *Config) SourceByID(id string) *SourceConfig {
	for i := range c.Sources {
		if c.Sources[i].ID == id {
			return &c.Sources[i]
		}
	}
	return nil
}

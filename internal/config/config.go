// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Portal  PortalConfig  `mapstructure:"portal"`
	Browser BrowserConfig `mapstructure:"browser"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	DB      DBConfig      `mapstructure:"db"`
	Export  ExportConfig  `mapstructure:"export"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port              int `mapstructure:"port"`
	RequestTimeoutSec int `mapstructure:"request_timeout_seconds"`
}

// RequestTimeout returns how long a single HTTP request may run.
func (c ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// PortalConfig identifies the public procurement search portal.
type PortalConfig struct {
	URL       string `mapstructure:"url"`
	UserAgent string `mapstructure:"user_agent"`
}

// BrowserConfig governs the headless browser sessions.
type BrowserConfig struct {
	Headless          bool `mapstructure:"headless"`
	NavTimeoutSec     int  `mapstructure:"nav_timeout_seconds"`
	StepTimeoutSec    int  `mapstructure:"step_timeout_seconds"`
	ResultsTimeoutSec int  `mapstructure:"results_timeout_seconds"`
	SettleDelayMs     int  `mapstructure:"settle_delay_ms"`
}

// IngestConfig governs worker fan-out and extraction bounds.
type IngestConfig struct {
	Workers    int `mapstructure:"workers"`
	QueueDepth int `mapstructure:"queue_depth"`
	MaxPages   int `mapstructure:"max_pages"`
}

// DBConfig controls access to the relational database. An empty DSN
// selects the in-memory stores.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	ProcessTable string `mapstructure:"process_table"`
	RunLogTable  string `mapstructure:"runlog_table"`
	MaxConns     int32  `mapstructure:"max_conns"`
	MinConns     int32  `mapstructure:"min_conns"`
}

// ExportConfig sets the destination for per-job artifact files.
type ExportConfig struct {
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// PubSubConfig holds metadata for completion event notifications.
type PubSubConfig struct {
	ProjectID      string `mapstructure:"project_id"`
	CompletedTopic string `mapstructure:"completed_topic"`
	FailedTopic    string `mapstructure:"failed_topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SEACE")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("portal.url", "https://prod2.seace.gob.pe/seacebus-uiwd-pub/buscadorPublico/buscadorPublico.xhtml")
	v.SetDefault("portal.user_agent", "seace-ingest/1.0")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("browser.step_timeout_seconds", 20)
	v.SetDefault("browser.results_timeout_seconds", 60)
	v.SetDefault("browser.settle_delay_ms", 750)
	v.SetDefault("ingest.workers", 2)
	v.SetDefault("ingest.queue_depth", 64)
	v.SetDefault("ingest.max_pages", 200)
	v.SetDefault("db.process_table", "procurement_processes")
	v.SetDefault("db.runlog_table", "extraction_runs")
	v.SetDefault("export.dir", "exports")
	v.SetDefault("pubsub.completed_topic", "seace-jobs-completed")
	v.SetDefault("pubsub.failed_topic", "seace-jobs-failed")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Portal.URL == "" {
		return fmt.Errorf("portal.url is required")
	}
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest.workers must be > 0")
	}
	if c.Ingest.QueueDepth <= 0 {
		return fmt.Errorf("ingest.queue_depth must be > 0")
	}
	if c.Browser.ResultsTimeoutSec <= 0 {
		return fmt.Errorf("browser.results_timeout_seconds must be > 0")
	}
	if c.Export.Dir == "" {
		return fmt.Errorf("export.dir is required")
	}
	return nil
}

// NavTimeout returns the browser navigation budget.
func (c BrowserConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSec) * time.Second
}

// StepTimeout returns the per-step interaction budget.
func (c BrowserConfig) StepTimeout() time.Duration {
	return time.Duration(c.StepTimeoutSec) * time.Second
}

// ResultsTimeout returns how long to wait for the results table.
func (c BrowserConfig) ResultsTimeout() time.Duration {
	return time.Duration(c.ResultsTimeoutSec) * time.Second
}

// SettleDelay returns the post-interaction settle pause.
func (c BrowserConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMs) * time.Millisecond
}

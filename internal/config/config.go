// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/sam-opportunity-harvester/internal/harvest"
)

// Storage backends.
const (
	StorageMemory = "memory"
	StorageLocal  = "local"
	StorageGCS    = "gcs"
)

// Sink backends.
const (
	SinkFile     = "file"
	SinkPostgres = "postgres"
	SinkPubSub   = "pubsub"
	SinkMemory   = "memory"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Harvest  HarvestConfig  `mapstructure:"harvest"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Sink     SinkConfig     `mapstructure:"sink"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
}

// HarvestConfig is the run's search filter and enrichment toggles.
type HarvestConfig struct {
	Keywords                   string   `mapstructure:"keywords"`
	NAICSCodes                 []string `mapstructure:"naics_codes"`
	PostedWithinDays           int      `mapstructure:"posted_within_days"`
	SetAsideTypes              []string `mapstructure:"set_aside_types"`
	States                     []string `mapstructure:"states"`
	OpportunityTypes           []string `mapstructure:"opportunity_types"`
	DownloadAttachments        bool     `mapstructure:"download_attachments"`
	ExtractText                bool     `mapstructure:"extract_text"`
	MaxOpportunities           int      `mapstructure:"max_opportunities"`
	PageSize                   int      `mapstructure:"page_size"`
	PageDelayMs                int      `mapstructure:"page_delay_ms"`
	Concurrency                int      `mapstructure:"concurrency"`
	MaxConsecutiveSinkFailures int      `mapstructure:"max_consecutive_sink_failures"`
}

// UpstreamConfig overrides the SAM.gov endpoints.
type UpstreamConfig struct {
	SearchURL          string `mapstructure:"search_url"`
	DetailURL          string `mapstructure:"detail_url"`
	ResourcesURL       string `mapstructure:"resources_url"`
	DownloadURL        string `mapstructure:"download_url"`
	OpportunityPageURL string `mapstructure:"opportunity_page_url"`
	UserAgent          string `mapstructure:"user_agent"`
}

// HTTPConfig configures the JSON client and direct downloads.
type HTTPConfig struct {
	TimeoutSeconds         int   `mapstructure:"timeout_seconds"`
	MaxRetries             int   `mapstructure:"max_retries"`
	BackoffInitialMs       int   `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs           int   `mapstructure:"backoff_max_ms"`
	DownloadTimeoutSeconds int   `mapstructure:"download_timeout_seconds"`
	MaxDownloadBytes       int64 `mapstructure:"max_download_bytes"`
}

// HeadlessConfig configures the browser-session download strategy.
type HeadlessConfig struct {
	Enabled                bool   `mapstructure:"enabled"`
	MaxParallel            int    `mapstructure:"max_parallel"`
	NavTimeoutSeconds      int    `mapstructure:"nav_timeout_seconds"`
	DownloadTimeoutSeconds int    `mapstructure:"download_timeout_seconds"`
	SettleMs               int    `mapstructure:"settle_ms"`
	DownloadDir            string `mapstructure:"download_dir"`
}

// StorageConfig selects the attachment blob store.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// SinkConfig selects where records are delivered.
type SinkConfig struct {
	Backends []string `mapstructure:"backends"`
	FilePath string   `mapstructure:"file_path"`
}

// DBConfig controls access to the Postgres sink.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	RunTable string `mapstructure:"run_table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig identifies the record topic.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ServerConfig controls the ops HTTP server. Port 0 disables it.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
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
	v.SetDefault("harvest.keywords", "")
	v.SetDefault("harvest.naics_codes", []string{})
	v.SetDefault("harvest.posted_within_days", 30)
	v.SetDefault("harvest.set_aside_types", []string{})
	v.SetDefault("harvest.states", []string{})
	v.SetDefault("harvest.opportunity_types", []string{})
	v.SetDefault("harvest.download_attachments", true)
	v.SetDefault("harvest.extract_text", false)
	v.SetDefault("harvest.max_opportunities", 100)
	v.SetDefault("harvest.page_size", 25)
	v.SetDefault("harvest.page_delay_ms", 500)
	v.SetDefault("harvest.concurrency", 4)
	v.SetDefault("harvest.max_consecutive_sink_failures", 5)
	v.SetDefault("upstream.search_url", "")
	v.SetDefault("upstream.detail_url", "")
	v.SetDefault("upstream.resources_url", "")
	v.SetDefault("upstream.download_url", "")
	v.SetDefault("upstream.opportunity_page_url", "")
	v.SetDefault("upstream.user_agent", "")
	v.SetDefault("http.timeout_seconds", 90)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 2000)
	v.SetDefault("http.download_timeout_seconds", 120)
	v.SetDefault("http.max_download_bytes", int64(200<<20))
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 30)
	v.SetDefault("headless.download_timeout_seconds", 60)
	v.SetDefault("headless.settle_ms", 1000)
	v.SetDefault("headless.download_dir", "")
	v.SetDefault("storage.backend", StorageLocal)
	v.SetDefault("storage.base_dir", "./data/attachments")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "attachments")
	v.SetDefault("sink.backends", []string{SinkFile})
	v.SetDefault("sink.file_path", "./data/opportunities.jsonl")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "opportunity_records")
	v.SetDefault("db.run_table", "harvest_runs")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("server.port", 0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Harvest.MaxOpportunities < 0 {
		return fmt.Errorf("harvest.max_opportunities must be >= 0")
	}
	if c.Harvest.PageSize <= 0 {
		return fmt.Errorf("harvest.page_size must be > 0")
	}
	if c.Harvest.Concurrency <= 0 {
		return fmt.Errorf("harvest.concurrency must be > 0")
	}
	if c.Harvest.PageDelayMs < 0 {
		return fmt.Errorf("harvest.page_delay_ms must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Server.Port < 0 {
		return fmt.Errorf("server.port must be >= 0")
	}
	switch c.Storage.Backend {
	case StorageMemory:
		if c.Harvest.DownloadAttachments && c.hasDurableSink() {
			return fmt.Errorf("storage.backend %q would lose attachments referenced by durable sinks", StorageMemory)
		}
	case StorageLocal:
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir is required for the local backend")
		}
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	if len(c.Sink.Backends) == 0 {
		return fmt.Errorf("sink.backends must name at least one sink")
	}
	for _, backend := range c.Sink.Backends {
		switch backend {
		case SinkMemory:
		case SinkFile:
			if c.Sink.FilePath == "" {
				return fmt.Errorf("sink.file_path is required for the file sink")
			}
		case SinkPostgres:
			if c.DB.DSN == "" {
				return fmt.Errorf("db.dsn is required for the postgres sink")
			}
		case SinkPubSub:
			if c.PubSub.ProjectID == "" || c.PubSub.TopicName == "" {
				return fmt.Errorf("pubsub.project_id and pubsub.topic_name are required for the pubsub sink")
			}
		default:
			return fmt.Errorf("sink backend %q is not supported", backend)
		}
	}
	return nil
}

// Filter converts the harvest section into a search filter.
func (c Config) Filter() harvest.SearchFilter {
	return harvest.SearchFilter{
		Keywords:         c.Harvest.Keywords,
		NAICSCodes:       append([]string(nil), c.Harvest.NAICSCodes...),
		PostedWithinDays: c.Harvest.PostedWithinDays,
		SetAsideTypes:    append([]string(nil), c.Harvest.SetAsideTypes...),
		States:           append([]string(nil), c.Harvest.States...),
		OpportunityTypes: append([]string(nil), c.Harvest.OpportunityTypes...),
		PageSize:         c.Harvest.PageSize,
		MaxRecords:       c.Harvest.MaxOpportunities,
	}
}

// HarvestRun converts the harvest section into orchestrator settings.
func (c Config) HarvestRun(linkFormat string) harvest.Config {
	return harvest.Config{
		Filter:                     c.Filter(),
		DownloadAttachments:        c.Harvest.DownloadAttachments,
		ExtractText:                c.Harvest.ExtractText,
		PageDelay:                  time.Duration(c.Harvest.PageDelayMs) * time.Millisecond,
		Concurrency:                c.Harvest.Concurrency,
		MaxConsecutiveSinkFailures: c.Harvest.MaxConsecutiveSinkFailures,
		LinkFormat:                 linkFormat,
	}
}

// RequestTimeout is the per-request budget of the JSON client.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// DownloadTimeout is the per-attempt budget of a direct download.
func (c Config) DownloadTimeout() time.Duration {
	return time.Duration(c.HTTP.DownloadTimeoutSeconds) * time.Second
}

// hasDurableSink reports whether any configured sink outlives the process.
func (c Config) hasDurableSink() bool {
	for _, backend := range c.Sink.Backends {
		if backend != SinkMemory {
			return true
		}
	}
	return false
}

// HasSink reports whether backend is among the configured sinks.
func (c Config) HasSink(backend string) bool {
	for _, b := range c.Sink.Backends {
		if b == backend {
			return true
		}
	}
	return false
}

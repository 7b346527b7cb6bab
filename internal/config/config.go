// Package config loads mitonet configuration from defaults, an optional YAML
// file, and MITONET_ environment variables.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"mitonet/internal/identity"
	"mitonet/internal/sources"
	"mitonet/pkg/domain"
)

// Sentinel validation errors.
var (
	ErrInvalidStoreDriver  = errors.New("invalid store driver")
	ErrInvalidSourceDriver = errors.New("invalid source location driver")
	ErrInvalidChunkSize    = errors.New("chunk size must not be negative")
	ErrInvalidMemoryBudget = errors.New("invalid memory budget")
	ErrInvalidLogLevel     = errors.New("invalid log level")
	ErrInvalidLogFormat    = errors.New("invalid log format")
	ErrInvalidCategory     = errors.New("unknown priority category")
	ErrMissingBucket       = errors.New("s3 source location requires a bucket")
	ErrInvalidExporter     = errors.New("invalid exporter")
)

// Default configuration values.
const (
	defaultStoreDriver  = "sqlite"
	defaultSQLitePath   = "mitonet.db"
	defaultPostgresDSN  = "postgres://localhost:5432/mitonet?sslmode=disable"
	defaultSourceDriver = "fs"
	defaultSourceRoot   = "./data"
	defaultChunkSize    = 10000
	defaultLogLevel     = "info"
	defaultLogFormat    = "text"
)

// Config holds all configuration for mitonet.
type Config struct {
	Store    StoreConfig           `mapstructure:"store"`
	Sources  SourcesConfig         `mapstructure:"sources"`
	Ingest   IngestConfig          `mapstructure:"ingest"`
	Priority map[string][]string   `mapstructure:"priority"`
	Logging  LoggingConfig         `mapstructure:"logging"`
	Metrics  MetricsConfig         `mapstructure:"metrics"`
	Tracing  TracingConfig         `mapstructure:"tracing"`
	Catalog  []sources.Declaration `mapstructure:"catalog"`
}

// StoreConfig selects the relational store.
type StoreConfig struct {
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// SourcesConfig selects where raw source files are read from.
type SourcesConfig struct {
	Driver string `mapstructure:"driver"`
	Root   string `mapstructure:"root"`

	// S3 settings.
	S3Bucket    string `mapstructure:"s3_bucket"`
	S3Region    string `mapstructure:"s3_region"`
	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3Prefix    string `mapstructure:"s3_prefix"`
	S3PathStyle bool   `mapstructure:"s3_path_style"`

	// AWS credentials (optional).
	AWSAccessKeyID     string `mapstructure:"aws_access_key_id"`
	AWSSecretAccessKey string `mapstructure:"aws_secret_access_key"`
}

// IngestConfig controls chunking and version retirement.
type IngestConfig struct {
	ChunkSize        int    `mapstructure:"chunk_size"`
	MemoryBudget     string `mapstructure:"memory_budget"`
	RetireSuperseded bool   `mapstructure:"retire_superseded"`
	CacheSize        int    `mapstructure:"cache_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig enables ingestion metrics. Exporter is prometheus or expvar;
// after each command the collected values are written to Textfile when set.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Exporter string `mapstructure:"exporter"`
	Textfile string `mapstructure:"textfile"`
}

// TracingConfig enables spans. Exporter is otel (trace ids in logs) or json
// (one JSON line per span written to File, stderr when empty).
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Exporter    string  `mapstructure:"exporter"`
	File        string  `mapstructure:"file"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load reads configuration from path (or ./mitonet.yaml when empty) and the
// environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("mitonet")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("MITONET")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", defaultStoreDriver)
	v.SetDefault("store.sqlite_path", defaultSQLitePath)
	v.SetDefault("store.postgres_dsn", defaultPostgresDSN)

	v.SetDefault("sources.driver", defaultSourceDriver)
	v.SetDefault("sources.root", defaultSourceRoot)
	v.SetDefault("sources.s3_bucket", "")
	v.SetDefault("sources.s3_region", "us-east-1")
	v.SetDefault("sources.s3_endpoint", "")
	v.SetDefault("sources.s3_prefix", "")
	v.SetDefault("sources.s3_path_style", false)
	v.SetDefault("sources.aws_access_key_id", "")
	v.SetDefault("sources.aws_secret_access_key", "")

	v.SetDefault("ingest.chunk_size", defaultChunkSize)
	v.SetDefault("ingest.memory_budget", "")
	v.SetDefault("ingest.retire_superseded", true)
	v.SetDefault("ingest.cache_size", identity.DefaultCacheSize)

	v.SetDefault("logging.level", defaultLogLevel)
	v.SetDefault("logging.format", defaultLogFormat)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.exporter", "prometheus")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "otel")
	v.SetDefault("tracing.file", "")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if !slices.Contains([]string{"memory", "sqlite", "postgres"}, c.Store.Driver) {
		return fmt.Errorf("%w: %q", ErrInvalidStoreDriver, c.Store.Driver)
	}
	if !slices.Contains([]string{"fs", "s3", "memory"}, c.Sources.Driver) {
		return fmt.Errorf("%w: %q", ErrInvalidSourceDriver, c.Sources.Driver)
	}
	if c.Sources.Driver == "s3" && c.Sources.S3Bucket == "" {
		return ErrMissingBucket
	}
	if c.Ingest.ChunkSize < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidChunkSize, c.Ingest.ChunkSize)
	}
	if c.Ingest.MemoryBudget != "" {
		if _, err := humanize.ParseBytes(c.Ingest.MemoryBudget); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidMemoryBudget, c.Ingest.MemoryBudget)
		}
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Logging.Level)) {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}
	if !slices.Contains([]string{"text", "json"}, strings.ToLower(c.Logging.Format)) {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Logging.Format)
	}
	if !slices.Contains([]string{"prometheus", "expvar"}, c.Metrics.Exporter) {
		return fmt.Errorf("%w: metrics %q", ErrInvalidExporter, c.Metrics.Exporter)
	}
	if !slices.Contains([]string{"otel", "json"}, c.Tracing.Exporter) {
		return fmt.Errorf("%w: tracing %q", ErrInvalidExporter, c.Tracing.Exporter)
	}
	for cat := range c.Priority {
		if !slices.Contains(domain.Categories(), domain.Category(cat)) {
			return fmt.Errorf("%w: %q", ErrInvalidCategory, cat)
		}
	}
	if _, err := c.SourceCatalog(); err != nil {
		return err
	}
	return nil
}

// Priorities returns the default priority order with configured categories replaced.
func (c *Config) Priorities() identity.Priorities {
	prio := identity.DefaultPriorities()
	for cat, order := range c.Priority {
		prio[domain.Category(cat)] = slices.Clone(order)
	}
	return prio
}

// SourceCatalog returns the built-in catalog with configured entries merged
// in. An entry naming a built-in source without a kind only overrides the
// fields it sets.
func (c *Config) SourceCatalog() (*sources.Catalog, error) {
	base := sources.DefaultCatalog()
	if len(c.Catalog) == 0 {
		return base, nil
	}
	overrides := make([]sources.Declaration, 0, len(c.Catalog))
	for _, d := range c.Catalog {
		if builtin, err := base.Lookup(d.Name); err == nil && d.Kind == "" {
			d.Kind = builtin.Kind
			d.Stage = builtin.Stage
			d.CreateMissing = d.CreateMissing || builtin.CreateMissing
			if d.Path == "" {
				d.Path = builtin.Path
			}
			if d.VersionPattern == "" {
				d.VersionPattern = builtin.VersionPattern
			}
			if d.InteractionType == "" {
				d.InteractionType = builtin.InteractionType
			}
		}
		overrides = append(overrides, d)
	}
	return base.Merge(overrides...)
}

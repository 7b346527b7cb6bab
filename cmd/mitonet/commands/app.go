// Package commands implements the mitonet operator commands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"mitonet/internal/blob"
	"mitonet/internal/config"
	"mitonet/internal/core"
	"mitonet/internal/infra/blob/s3"
	"mitonet/internal/ingest"
	"mitonet/internal/observability"
)

// Options are the flags shared by every command.
type Options struct {
	ConfigPath string
	LogLevel   string
}

// app holds the resources one command invocation works with.
type app struct {
	cfg     *config.Config
	service *core.Service
	closers []func() error
}

// openApp loads configuration and opens the store, the source location, and
// the observability hooks.
func openApp(ctx context.Context, cmd *cobra.Command, opts *Options) (a *app, err error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	a = &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	logger := observability.NewLogger(cmd.ErrOrStderr(), observability.LoggerConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	chunk, err := ingest.PlanChunkSize(cfg.Ingest.ChunkSize, cfg.Ingest.MemoryBudget)
	if err != nil {
		return nil, err
	}
	catalog, err := cfg.SourceCatalog()
	if err != nil {
		return nil, err
	}
	store, err := core.OpenPersistentStore(ctx, core.StorageOptions{
		Driver:      cfg.Store.Driver,
		SQLitePath:  cfg.Store.SQLitePath,
		PostgresDSN: cfg.Store.PostgresDSN,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)

	files, err := blob.Open(ctx, blob.Options{
		Driver: cfg.Sources.Driver,
		Root:   cfg.Sources.Root,
		S3: s3.Config{
			Region:          cfg.Sources.S3Region,
			Bucket:          cfg.Sources.S3Bucket,
			Prefix:          cfg.Sources.S3Prefix,
			Endpoint:        cfg.Sources.S3Endpoint,
			AccessKeyID:     cfg.Sources.AWSAccessKeyID,
			SecretAccessKey: cfg.Sources.AWSSecretAccessKey,
			PathStyle:       cfg.Sources.S3PathStyle,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open source location: %w", err)
	}

	ingestOpts := ingest.Options{
		ChunkSize:        chunk,
		RetireSuperseded: cfg.Ingest.RetireSuperseded,
		Priorities:       cfg.Priorities(),
		CacheSize:        cfg.Ingest.CacheSize,
		Logger:           logger,
	}
	if ingestOpts.Metrics, err = a.metrics(cfg.Metrics); err != nil {
		return nil, err
	}
	if ingestOpts.Tracer, err = a.tracer(cfg.Tracing, cmd.ErrOrStderr()); err != nil {
		return nil, err
	}
	a.service = core.NewService(store, files, catalog,
		core.WithLogger(logger),
		core.WithIngestOptions(ingestOpts))
	return a, nil
}

func (a *app) metrics(cfg config.MetricsConfig) (ingest.Metrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Exporter == "expvar" {
		rec := core.NewExpvarMetrics("")
		if cfg.Textfile != "" {
			a.closers = append(a.closers, func() error { return writeFile(cfg.Textfile, rec) })
		}
		return rec, nil
	}
	reg := prometheus.NewRegistry()
	m, err := observability.NewIngestMetrics(reg)
	if err != nil {
		return nil, err
	}
	if cfg.Textfile != "" {
		a.closers = append(a.closers, func() error { return prometheus.WriteToTextfile(cfg.Textfile, reg) })
	}
	return m, nil
}

func (a *app) tracer(cfg config.TracingConfig, stderr io.Writer) (ingest.Tracer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Exporter == "json" {
		w := stderr
		if cfg.File != "" {
			f, err := os.Create(cfg.File)
			if err != nil {
				return nil, fmt.Errorf("open trace file: %w", err)
			}
			a.closers = append(a.closers, f.Close)
			w = f
		}
		return core.NewJSONTracer(w), nil
	}
	t := observability.NewTracer(observability.TracerConfig{SampleRatio: cfg.SampleRatio})
	a.closers = append(a.closers, func() error { return t.Shutdown(context.Background()) })
	return t, nil
}

func writeFile(path string, w io.WriterTo) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := w.WriteTo(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// withApp runs fn with an opened app and closes it afterwards.
func withApp(cmd *cobra.Command, opts *Options, fn func(context.Context, *app) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, cmd, opts)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, a.Close())
	}()
	return fn(ctx, a)
}

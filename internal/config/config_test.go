package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mitonet/internal/config"
	"mitonet/pkg/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mitonet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "mitonet.db", cfg.Store.SQLitePath)
	assert.Equal(t, "fs", cfg.Sources.Driver)
	assert.Equal(t, 10000, cfg.Ingest.ChunkSize)
	assert.True(t, cfg.Ingest.RetireSuperseded)
	assert.Equal(t, "info", cfg.Logging.Level)

	catalog, err := cfg.SourceCatalog()
	require.NoError(t, err)
	assert.Len(t, catalog.Names(), 7)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
store:
  driver: postgres
  postgres_dsn: postgres://db/mitonet
sources:
  driver: s3
  s3_bucket: raw-sources
  s3_prefix: releases/
ingest:
  chunk_size: 0
  memory_budget: 512MB
priority:
  muscle: [HPA_muscle, GTEx]
catalog:
  - name: HPA_muscle
    path: hpa/v23/proteinatlas.tsv.gz
  - name: BioGRID_mito
    kind: biogrid
    path: biogrid/mito.tab3.txt
    stage: 3
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://db/mitonet", cfg.Store.PostgresDSN)
	assert.Equal(t, "raw-sources", cfg.Sources.S3Bucket)
	assert.Equal(t, "512MB", cfg.Ingest.MemoryBudget)
	assert.Equal(t, []string{"HPA_muscle", "GTEx"}, cfg.Priorities()[domain.CategoryMuscle])
	assert.Equal(t, []string{"MitoCarta", "HPA_muscle"}, cfg.Priorities()[domain.CategoryMitochondrial])

	catalog, err := cfg.SourceCatalog()
	require.NoError(t, err)
	hpa, err := catalog.Lookup("HPA_muscle")
	require.NoError(t, err)
	assert.Equal(t, "hpa/v23/proteinatlas.tsv.gz", hpa.Path)
	assert.EqualValues(t, "hpa", hpa.Kind)
	mito, err := catalog.Lookup("BioGRID_mito")
	require.NoError(t, err)
	assert.Equal(t, 3, mito.Stage)
	assert.Len(t, catalog.Stages(), 4)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MITONET_STORE_DRIVER", "memory")
	t.Setenv("MITONET_INGEST_CHUNK_SIZE", "250")
	t.Setenv("MITONET_LOGGING_FORMAT", "json")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 250, cfg.Ingest.ChunkSize)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]struct {
		content string
		want    error
	}{
		"store driver":  {"store:\n  driver: mysql\n", config.ErrInvalidStoreDriver},
		"source driver": {"sources:\n  driver: ftp\n", config.ErrInvalidSourceDriver},
		"bucket":        {"sources:\n  driver: s3\n", config.ErrMissingBucket},
		"chunk size":    {"ingest:\n  chunk_size: -1\n", config.ErrInvalidChunkSize},
		"budget":        {"ingest:\n  memory_budget: plenty\n", config.ErrInvalidMemoryBudget},
		"log level":     {"logging:\n  level: loud\n", config.ErrInvalidLogLevel},
		"category":      {"priority:\n  colour: [x]\n", config.ErrInvalidCategory},
		"metrics":       {"metrics:\n  exporter: statsd\n", config.ErrInvalidExporter},
		"tracing":       {"tracing:\n  exporter: zipkin\n", config.ErrInvalidExporter},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tc.content))
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestLoadRejectsBadCatalogEntry(t *testing.T) {
	_, err := config.Load(writeConfig(t, "catalog:\n  - name: Reactome\n    kind: reactome\n    path: r.txt\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown kind")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

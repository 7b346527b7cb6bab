package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mitonet/internal/stats"
)

const (
	aliasesPath = "string/9606.protein.aliases.v12.0.txt.gz"
	aliasRows   = "#string_protein_id\talias\tsource\n" +
		"9606.ENSP1\tP11111\tUniProt_AC\n" +
		"9606.ENSP1\tGENE1\tUniProt_GN_Name\n" +
		"9606.ENSP2\tP22222\tUniProt_AC\n"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

type workspace struct {
	dir    string
	config string
}

func newWorkspace(t *testing.T, extra string) workspace {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "string"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, aliasesPath), []byte(aliasRows), 0o600))

	cfg := "store:\n  driver: sqlite\n  sqlite_path: " + filepath.Join(dir, "mitonet.db") + "\n" +
		"sources:\n  driver: fs\n  root: " + root + "\n" +
		"logging:\n  level: error\n" + extra
	path := filepath.Join(dir, "mitonet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return workspace{dir: dir, config: path}
}

func (w workspace) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", w.config}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInitListsSourceFiles(t *testing.T) {
	ws := newWorkspace(t, "")

	out, err := ws.run(t, "init")
	require.NoError(t, err)

	assert.Contains(t, out, "store ready (sqlite)")
	assert.Contains(t, out, "STRING_aliases")
	assert.Contains(t, out, "1 of 7 present")
	assert.FileExists(t, filepath.Join(ws.dir, "mitonet.db"))
}

func TestUpdateStatusAndCheckpoints(t *testing.T) {
	ws := newWorkspace(t, "")

	out, err := ws.run(t, "update", "--source", "STRING_aliases")
	require.NoError(t, err)
	assert.Contains(t, out, "STRING_aliases")
	assert.Contains(t, out, "completed")

	out, err = ws.run(t, "update", "--source", "STRING_aliases")
	require.NoError(t, err)
	assert.Contains(t, out, "skipped")

	out, err = ws.run(t, "status", "--json")
	require.NoError(t, err)
	var summary stats.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, int64(2), summary.Proteins)
	assert.Equal(t, int64(1), summary.Sources)

	out, err = ws.run(t, "checkpoints", "--phase", "aliases")
	require.NoError(t, err)
	assert.Contains(t, out, "STRING_aliases:aliases")
	assert.Contains(t, out, "completed")

	out, err = ws.run(t, "checkpoints", "--phase", "interactions")
	require.NoError(t, err)
	assert.Equal(t, "no checkpoints\n", out)
}

func TestUpdateUnknownSourceIsFatal(t *testing.T) {
	ws := newWorkspace(t, "")

	_, err := ws.run(t, "update", "--source", "Reactome")
	require.Error(t, err)
	assert.Equal(t, 2, ExitCode(err))
	assert.Contains(t, err.Error(), "STRING_aliases")
}

func TestAddGenes(t *testing.T) {
	ws := newWorkspace(t, "")

	_, err := ws.run(t, "add-genes")
	require.Error(t, err)

	out, err := ws.run(t, "add-genes", "--genes", "NDUFA1,NDUFA2", "--uniprots", "P11111")
	require.NoError(t, err)
	assert.Contains(t, out, "added 3: P11111, NDUFA1, NDUFA2")

	out, err = ws.run(t, "add-genes", "--genes", "NDUFA1")
	require.NoError(t, err)
	assert.Contains(t, out, "already present 1: NDUFA1")
}

func TestStatusRendersTables(t *testing.T) {
	ws := newWorkspace(t, "")
	_, err := ws.run(t, "update")
	require.NoError(t, err)

	out, err := ws.run(t, "status")
	require.NoError(t, err)
	for _, want := range []string{"Proteins", "Confidence", "highest", "[0.9, 1.0]"} {
		assert.Contains(t, out, want)
	}
}

func TestMetricsTextfile(t *testing.T) {
	prom := filepath.Join(t.TempDir(), "ingest.prom")
	ws := newWorkspace(t, "metrics:\n  enabled: true\n  textfile: "+prom+"\n")

	_, err := ws.run(t, "update", "--source", "STRING_aliases")
	require.NoError(t, err)

	data, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(data), `mitonet_ingest_records_total{outcome="applied",source="STRING_aliases"} 3`)
}

func TestExpvarMetricsAndJSONTraces(t *testing.T) {
	dir := t.TempDir()
	metrics := filepath.Join(dir, "metrics.json")
	traces := filepath.Join(dir, "spans.jsonl")
	ws := newWorkspace(t, "metrics:\n  enabled: true\n  exporter: expvar\n  textfile: "+metrics+"\n"+
		"tracing:\n  enabled: true\n  exporter: json\n  file: "+traces+"\n")

	_, err := ws.run(t, "update", "--source", "STRING_aliases")
	require.NoError(t, err)

	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"records"`)
	assert.Contains(t, string(data), `"STRING_aliases"`)

	spans, err := os.ReadFile(traces)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(spans), `"operation":"ingest.STRING_aliases"`))
}

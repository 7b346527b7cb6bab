package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"mitonet/internal/blob"
	"mitonet/internal/checkpoint"
	"mitonet/internal/fingerprint"
	"mitonet/internal/infra/blob/memory"
	"mitonet/internal/infra/persistence/sqlite"
	"mitonet/internal/sources"
	"mitonet/pkg/domain"
)

var errBoom = errors.New("boom: device unplugged")

// countingStore counts write transactions.
type countingStore struct {
	domain.PersistentStore
	writes int
}

func (s *countingStore) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) error {
	s.writes++
	return s.PersistentStore.RunInTransaction(ctx, fn)
}

// flakyFiles truncates the reader returned by one Get call with errBoom.
type flakyFiles struct {
	*memory.Store
	gets      int
	failOnGet int
	failAfter int64
}

func (f *flakyFiles) Get(ctx context.Context, key string) (blob.Info, io.ReadCloser, error) {
	info, rc, err := f.Store.Get(ctx, key)
	if err != nil {
		return info, nil, err
	}
	f.gets++
	if f.gets == f.failOnGet {
		return info, &failingReader{r: io.LimitReader(rc, f.failAfter), c: rc}, nil
	}
	return info, rc, nil
}

type failingReader struct {
	r io.Reader
	c io.Closer
}

func (f *failingReader) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if errors.Is(err, io.EOF) {
		return n, errBoom
	}
	return n, err
}

func (f *failingReader) Close() error { return f.c.Close() }

func newStore(t *testing.T) domain.PersistentStore {
	t.Helper()
	store, err := sqlite.NewMemoryStore(context.Background())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func linksDecl(name, path string) sources.Declaration {
	return sources.Declaration{Name: name, Kind: sources.KindStringLinks, Path: path, CreateMissing: true, InteractionType: "functional"}
}

const linksHeader = "protein1 protein2 combined_score\n"

// chain returns n rows linking P000-P001, P001-P002, ... with the given score.
func chain(n, score int) []string {
	rows := make([]string, n)
	for i := range rows {
		rows[i] = fmt.Sprintf("P%03d P%03d %d\n", i, i+1, score)
	}
	return rows
}

func counts(t *testing.T, store domain.PersistentStore) (proteins, interactions, aliases int64) {
	t.Helper()
	err := store.View(context.Background(), func(r domain.Reader) error {
		var err error
		if proteins, err = r.CountProteins(domain.ProteinFlags{}); err != nil {
			return err
		}
		if interactions, err = r.CountInteractions(); err != nil {
			return err
		}
		aliases, err = r.CountAliases()
		return err
	})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return proteins, interactions, aliases
}

func loadCheckpoint(t *testing.T, store domain.PersistentStore, decl sources.Declaration) domain.ProcessingCheckpoint {
	t.Helper()
	var cp domain.ProcessingCheckpoint
	err := store.View(context.Background(), func(r domain.Reader) error {
		var ok bool
		var err error
		cp, ok, err = r.FindCheckpoint(checkpoint.Name(decl.Name, decl.Phase()))
		if err == nil && !ok {
			err = fmt.Errorf("checkpoint %s missing", decl.Name)
		}
		return err
	})
	if err != nil {
		t.Fatalf("load checkpoint: %v", err)
	}
	return cp
}

func TestRunIngestsAndSkipsUnchangedFile(t *testing.T) {
	ctx := context.Background()
	base := newStore(t)
	store := &countingStore{PersistentStore: base}
	files := memory.New()
	decl := linksDecl("A", "a/links.txt")
	files.Put(decl.Path, []byte(linksHeader+strings.Join(chain(10, 700), "")))
	mgr := NewManager(store, files, Options{ChunkSize: 4})

	rep, err := mgr.Run(ctx, decl, RunOptions{})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if rep.Outcome != OutcomeCompleted || rep.Decision != fingerprint.Unseen || rep.Chunks != 3 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if rep.Counters.Processed != 10 || rep.Counters.Applied != 10 {
		t.Fatalf("unexpected counters %+v", rep.Counters)
	}
	p1, i1, a1 := counts(t, base)
	if p1 != 11 || i1 != 10 {
		t.Fatalf("expected 11 proteins and 10 interactions, got %d/%d", p1, i1)
	}
	first := loadCheckpoint(t, base, decl)

	store.writes = 0
	rep, err = mgr.Run(ctx, decl, RunOptions{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if rep.Outcome != OutcomeSkipped || rep.Decision != fingerprint.Unchanged {
		t.Fatalf("expected skip, got %+v", rep)
	}
	if store.writes != 0 {
		t.Fatalf("unchanged run wrote %d transactions", store.writes)
	}
	p2, i2, a2 := counts(t, base)
	if p1 != p2 || i1 != i2 || a1 != a2 {
		t.Fatalf("counts changed: %d/%d/%d -> %d/%d/%d", p1, i1, a1, p2, i2, a2)
	}
	second := loadCheckpoint(t, base, decl)
	if second.Status != domain.CheckpointCompleted || !second.CompletedAt.Equal(*first.CompletedAt) {
		t.Fatalf("checkpoint changed: %+v", second)
	}
}

func TestForcedRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	files := memory.New()
	decl := linksDecl("A", "a/links.txt")
	files.Put(decl.Path, []byte(linksHeader+strings.Join(chain(25, 500), "")))
	mgr := NewManager(store, files, Options{ChunkSize: 10})

	if _, err := mgr.Run(ctx, decl, RunOptions{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	p1, i1, a1 := counts(t, store)
	rep, err := mgr.Run(ctx, decl, RunOptions{Force: true})
	if err != nil {
		t.Fatalf("forced run: %v", err)
	}
	if rep.Outcome != OutcomeCompleted || rep.Decision != fingerprint.Unchanged {
		t.Fatalf("unexpected forced report %+v", rep)
	}
	p2, i2, a2 := counts(t, store)
	if p1 != p2 || i1 != i2 || a1 != a2 {
		t.Fatalf("forced run changed counts: %d/%d/%d -> %d/%d/%d", p1, i1, a1, p2, i2, a2)
	}
}

func findEdge(t *testing.T, store domain.PersistentStore, a, b, source string) []domain.Interaction {
	t.Helper()
	var out []domain.Interaction
	err := store.View(context.Background(), func(r domain.Reader) error {
		pa, ok, err := r.FindProteinByKey(a)
		if err != nil || !ok {
			return fmt.Errorf("protein %s: %v", a, err)
		}
		pb, ok, err := r.FindProteinByKey(b)
		if err != nil || !ok {
			return fmt.Errorf("protein %s: %v", b, err)
		}
		ds, ok, err := r.LatestSource(source)
		if err != nil || !ok {
			return fmt.Errorf("source %s: %v", source, err)
		}
		all, err := r.ListInteractions(pa.ID)
		if err != nil {
			return err
		}
		for _, in := range all {
			if in.SourceID == ds.ID && (in.Protein1ID == pb.ID || in.Protein2ID == pb.ID) {
				out = append(out, in)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("find edge: %v", err)
	}
	return out
}

func TestReingestReplacesOwnContribution(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	files := memory.New()
	decl := linksDecl("A", "a/links.txt")
	mgr := NewManager(store, files, Options{ChunkSize: 50})

	files.Put(decl.Path, []byte(linksHeader+"P1 P2 600\n"))
	if _, err := mgr.Run(ctx, decl, RunOptions{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	files.Put(decl.Path, []byte(linksHeader+"P2 P1 900\n"))
	rep, err := mgr.Run(ctx, decl, RunOptions{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if rep.Decision != fingerprint.NewVersion {
		t.Fatalf("expected new version, got %s", rep.Decision)
	}
	rows := findEdge(t, store, "TEMP_STRING_P1", "TEMP_STRING_P2", "A")
	if len(rows) != 1 || rows[0].Confidence != 0.9 {
		t.Fatalf("expected one row at 0.9, got %+v", rows)
	}
	if rows[0].Protein1ID >= rows[0].Protein2ID {
		t.Fatalf("pair not canonical: %+v", rows[0])
	}
}

func TestSourcesKeepSeparateRows(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	files := memory.New()
	a := linksDecl("A", "a/links.txt")
	b := linksDecl("B", "b/links.txt")
	files.Put(a.Path, []byte(linksHeader+"P1 P2 600\n"))
	files.Put(b.Path, []byte(linksHeader+"P2 P1 400\n"))
	mgr := NewManager(store, files, Options{})
	for _, d := range []sources.Declaration{a, b} {
		if _, err := mgr.Run(ctx, d, RunOptions{}); err != nil {
			t.Fatalf("run %s: %v", d.Name, err)
		}
	}
	if rows := findEdge(t, store, "TEMP_STRING_P1", "TEMP_STRING_P2", "A"); len(rows) != 1 || rows[0].Confidence != 0.6 {
		t.Fatalf("source A rows: %+v", rows)
	}
	if rows := findEdge(t, store, "TEMP_STRING_P1", "TEMP_STRING_P2", "B"); len(rows) != 1 || rows[0].Confidence != 0.4 {
		t.Fatalf("source B rows: %+v", rows)
	}
	if _, interactions, _ := counts(t, store); interactions != 2 {
		t.Fatalf("expected two rows, got %d", interactions)
	}
}

func TestDuplicatePairsWithinChunkKeepMaximum(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	files := memory.New()
	decl := linksDecl("A", "a/links.txt")
	files.Put(decl.Path, []byte(linksHeader+"P1 P2 300\nP2 P1 800\nP1 P2 500\nP1 P1 900\nP3 P4 2000\n"))
	rep, err := NewManager(store, files, Options{}).Run(ctx, decl, RunOptions{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Counters.Applied != 3 || rep.Counters.Skipped != 2 {
		t.Fatalf("unexpected counters %+v", rep.Counters)
	}
	rows := findEdge(t, store, "TEMP_STRING_P1", "TEMP_STRING_P2", "A")
	if len(rows) != 1 || rows[0].Confidence != 0.8 {
		t.Fatalf("expected max confidence 0.8, got %+v", rows)
	}
}

func TestResumeAfterCrashMatchesCleanRun(t *testing.T) {
	ctx := context.Background()
	rows := chain(120, 750)
	content := linksHeader + strings.Join(rows, "")
	// Cut inside record 101 so chunks one and two commit and chunk three fails.
	cut := int64(len(linksHeader) + len(strings.Join(rows[:100], "")) + 3)

	store := newStore(t)
	files := &flakyFiles{Store: memory.New(), failOnGet: 2, failAfter: cut}
	decl := linksDecl("A", "a/links.txt")
	files.Put(decl.Path, []byte(content))
	mgr := NewManager(store, files, Options{ChunkSize: 50})

	rep, err := mgr.Run(ctx, decl, RunOptions{})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected crash, got %v", err)
	}
	var phaseErr *domain.PhaseError
	if !errors.As(err, &phaseErr) || phaseErr.Phase != "interactions" {
		t.Fatalf("expected phase error, got %T", err)
	}
	if rep.Outcome != OutcomeFailed || rep.Chunks != 2 {
		t.Fatalf("unexpected failed report %+v", rep)
	}
	cp := loadCheckpoint(t, store, decl)
	if cp.Status != domain.CheckpointFailed || cp.Data.Offset != 100 || !strings.Contains(cp.ErrorMessage, "boom") {
		t.Fatalf("unexpected checkpoint %+v", cp)
	}
	if _, interactions, _ := counts(t, store); interactions != 100 {
		t.Fatalf("expected 100 committed rows, got %d", interactions)
	}

	rep, err = mgr.Run(ctx, decl, RunOptions{})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !rep.Resumed || rep.ResumedFrom != 100 || rep.Counters.Processed != 20 || rep.RunID != cp.Data.RunID {
		t.Fatalf("unexpected resume report %+v", rep)
	}
	cp = loadCheckpoint(t, store, decl)
	if cp.Status != domain.CheckpointCompleted || cp.Data.Offset != 120 || cp.Data.Counters.Processed != 120 {
		t.Fatalf("unexpected final checkpoint %+v", cp)
	}

	clean := newStore(t)
	cleanFiles := memory.New()
	cleanFiles.Put(decl.Path, []byte(content))
	if _, err := NewManager(clean, cleanFiles, Options{ChunkSize: 50}).Run(ctx, decl, RunOptions{}); err != nil {
		t.Fatalf("clean run: %v", err)
	}
	p1, i1, a1 := counts(t, store)
	p2, i2, a2 := counts(t, clean)
	if p1 != p2 || i1 != i2 || a1 != a2 || i1 != 120 {
		t.Fatalf("resumed %d/%d/%d differs from clean %d/%d/%d", p1, i1, a1, p2, i2, a2)
	}
}

func TestChangedFileDoesNotResumeStaleCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	files := &flakyFiles{Store: memory.New(), failOnGet: 2, failAfter: int64(len(linksHeader) + 20)}
	decl := linksDecl("A", "a/links.txt")
	files.Put(decl.Path, []byte(linksHeader+strings.Join(chain(10, 500), "")))
	mgr := NewManager(store, files, Options{ChunkSize: 1})
	if _, err := mgr.Run(ctx, decl, RunOptions{}); err == nil {
		t.Fatalf("expected failure")
	}
	files.Put(decl.Path, []byte(linksHeader+strings.Join(chain(5, 900), "")))
	rep, err := mgr.Run(ctx, decl, RunOptions{})
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if rep.Resumed || rep.Counters.Processed != 5 {
		t.Fatalf("stale checkpoint resumed: %+v", rep)
	}
}

func TestRetireSupersededVersion(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	files := memory.New()
	v1 := linksDecl("A", "a/links.v1.txt")
	v1.VersionPattern = `\.v(\d+)\.`
	v2 := v1
	v2.Path = "a/links.v2.txt"
	files.Put(v1.Path, []byte(linksHeader+"P1 P2 600\nP2 P3 600\n"))
	files.Put(v2.Path, []byte(linksHeader+"P1 P2 700\n"))
	mgr := NewManager(store, files, Options{RetireSuperseded: true})

	if rep, err := mgr.Run(ctx, v1, RunOptions{}); err != nil || rep.Version != "1" {
		t.Fatalf("v1: %+v %v", rep, err)
	}
	rep, err := mgr.Run(ctx, v2, RunOptions{})
	if err != nil {
		t.Fatalf("v2: %v", err)
	}
	if rep.Version != "2" || rep.Retired != 2 || rep.Decision != fingerprint.NewVersion {
		t.Fatalf("unexpected v2 report %+v", rep)
	}
	if _, interactions, _ := counts(t, store); interactions != 1 {
		t.Fatalf("expected only the v2 row, got %d", interactions)
	}
}

func TestMissingSourceFile(t *testing.T) {
	store := newStore(t)
	rep, err := NewManager(store, memory.New(), Options{}).Run(context.Background(), linksDecl("A", "nope.txt"), RunOptions{})
	if !errors.Is(err, domain.ErrSourceMissing) || rep.Outcome != OutcomeMissing {
		t.Fatalf("expected missing source, got %+v %v", rep, err)
	}
}

func TestCorruptCheckpointIsFatal(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	files := memory.New()
	decl := linksDecl("A", "a/links.txt")
	files.Put(decl.Path, []byte(linksHeader+"P1 P2 600\n"))
	db := store.(interface{ DB() *sql.DB }).DB()
	_, err := db.ExecContext(ctx, `INSERT INTO processing_checkpoints (checkpoint_name, phase, status, created_at, data)
		VALUES (?, ?, 'failed', '2026-01-01 00:00:00+00:00', '{not json')`, checkpoint.Name("A", decl.Phase()), decl.Phase())
	if err != nil {
		t.Fatalf("seed corrupt checkpoint: %v", err)
	}
	_, err = NewManager(store, files, Options{}).Run(ctx, decl, RunOptions{})
	if !errors.Is(err, domain.ErrCorruptCheckpoint) || !domain.IsFatal(err) {
		t.Fatalf("expected fatal corrupt checkpoint, got %v", err)
	}
}

func TestPlanChunkSize(t *testing.T) {
	cases := []struct {
		size   int
		budget string
		want   int
	}{
		{250, "1GB", 250},
		{0, "", DefaultChunkSize},
		{0, "64MB", 64_000_000 / RecordFootprint},
		{0, "10KB", MinChunkSize},
		{0, "100GB", MaxChunkSize},
	}
	for _, tc := range cases {
		got, err := PlanChunkSize(tc.size, tc.budget)
		if err != nil || got != tc.want {
			t.Errorf("PlanChunkSize(%d, %q) = %d, %v; want %d", tc.size, tc.budget, got, err, tc.want)
		}
	}
	if _, err := PlanChunkSize(0, "lots"); err == nil {
		t.Fatalf("expected parse error")
	}
}

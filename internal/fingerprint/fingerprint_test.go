package fingerprint

import (
	"context"
	"strings"
	"testing"
	"time"

	"mitonet/internal/infra/blob/memory"
	"mitonet/internal/infra/persistence/sqlite"
	"mitonet/pkg/domain"
)

func TestComputeIsStable(t *testing.T) {
	a, err := Compute(strings.NewReader("9606.ENSP1\t9606.ENSP2\t900\n"))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	b, _ := Compute(strings.NewReader("9606.ENSP1\t9606.ENSP2\t900\n"))
	c, _ := Compute(strings.NewReader("9606.ENSP1\t9606.ENSP2\t901\n"))
	if !a.Equal(b) {
		t.Fatal("expected identical content to fingerprint equally")
	}
	if a.Equal(c) {
		t.Fatal("expected changed content to differ")
	}
	if a.Size != 26 || len(a.Hash) != 64 {
		t.Fatalf("unexpected fingerprint %+v", a)
	}
}

func TestCompare(t *testing.T) {
	size := int64(10)
	committed := domain.DataSource{FileSize: &size, FileHash: "abc"}
	cases := []struct {
		name  string
		prev  domain.DataSource
		found bool
		cur   Fingerprint
		want  Decision
	}{
		{"no record", domain.DataSource{}, false, Fingerprint{Size: 10, Hash: "abc"}, Unseen},
		{"record never committed", domain.DataSource{Name: "x"}, true, Fingerprint{Size: 10, Hash: "abc"}, Unseen},
		{"same", committed, true, Fingerprint{Size: 10, Hash: "abc"}, Unchanged},
		{"hash differs", committed, true, Fingerprint{Size: 10, Hash: "abd"}, NewVersion},
		{"size differs", committed, true, Fingerprint{Size: 11, Hash: "abc"}, NewVersion},
	}
	for _, tc := range cases {
		if got := Compare(tc.prev, tc.found, tc.cur); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestDetectAndCommit(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.NewMemoryStore(ctx)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	files := memory.New()
	files.Put("mito/Human.MitoCarta3.0.tsv", []byte("Symbol\tMCARTA3.0_LIST\nNDUFS1\tyes\n"))
	fp, info, err := Of(ctx, files, "mito/Human.MitoCarta3.0.tsv")
	if err != nil {
		t.Fatalf("Of: %v", err)
	}
	if info.Size != fp.Size {
		t.Fatalf("expected blob size %d to match fingerprint size %d", info.Size, fp.Size)
	}

	fps := NewStore(db)
	check, err := fps.Detect(ctx, "MitoCarta", fp, false)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if check.Decision != Unseen || check.Skip() {
		t.Fatalf("expected unseen, got %+v", check)
	}

	if err := db.RunInTransaction(ctx, func(tx domain.Transaction) error {
		ds, err := tx.EnsureSource(domain.DataSource{Name: "MitoCarta", Version: "3.0", FilePath: "mito/Human.MitoCarta3.0.tsv"})
		if err != nil {
			return err
		}
		return Commit(tx, ds.ID, fp, time.Now())
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	check, err = fps.Detect(ctx, "MitoCarta", fp, false)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if check.Decision != Unchanged || !check.Skip() || check.Previous.Version != "3.0" {
		t.Fatalf("expected unchanged skip, got %+v", check)
	}
	forced, _ := fps.Detect(ctx, "MitoCarta", fp, true)
	if forced.Skip() {
		t.Fatal("expected force to bypass the unchanged short-circuit")
	}
	changed, _ := fps.Detect(ctx, "MitoCarta", Fingerprint{Size: fp.Size, Hash: "different"}, false)
	if changed.Decision != NewVersion {
		t.Fatalf("expected new-version, got %s", changed.Decision)
	}
}

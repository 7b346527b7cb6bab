package merge

import (
	"context"
	"errors"
	"testing"

	"mitonet/internal/infra/persistence/sqlite"
	"mitonet/pkg/domain"
	"mitonet/pkg/domain/extension"
)

type fixture struct {
	store  domain.PersistentStore
	p1, p2 int64
	srcA   int64
	srcB   int64
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.NewMemoryStore(ctx)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	f := fixture{store: store}
	err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		a, err := tx.EnsureProtein("P1")
		if err != nil {
			return err
		}
		b, err := tx.EnsureProtein("P2")
		if err != nil {
			return err
		}
		sa, err := tx.EnsureSource(domain.DataSource{Name: "A", Version: "1", FilePath: "a"})
		if err != nil {
			return err
		}
		sb, err := tx.EnsureSource(domain.DataSource{Name: "B", Version: "1", FilePath: "b"})
		if err != nil {
			return err
		}
		f.p1, f.p2, f.srcA, f.srcB = a.ID, b.ID, sa.ID, sb.ID
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return f
}

func (f fixture) tx(t *testing.T, fn func(domain.Transaction) error) {
	t.Helper()
	if err := f.store.RunInTransaction(context.Background(), fn); err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func (f fixture) rows(t *testing.T) []domain.Interaction {
	t.Helper()
	var out []domain.Interaction
	_ = f.store.View(context.Background(), func(r domain.Reader) error {
		var err error
		out, err = r.ListInteractions(f.p1)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		return nil
	})
	return out
}

func TestCanonical(t *testing.T) {
	if a, b := Canonical(9, 3); a != 3 || b != 9 {
		t.Fatalf("expected (3, 9), got (%d, %d)", a, b)
	}
	if a, b := Canonical(3, 9); a != 3 || b != 9 {
		t.Fatalf("expected (3, 9), got (%d, %d)", a, b)
	}
}

func TestMergeOrderIndependent(t *testing.T) {
	f := newFixture(t)
	var first, second domain.Interaction
	f.tx(t, func(tx domain.Transaction) error {
		var err error
		first, err = Merge(tx, Edge{ProteinA: f.p2, ProteinB: f.p1, SourceID: f.srcA, Confidence: 0.5})
		if err != nil {
			return err
		}
		second, err = Merge(tx, Edge{ProteinA: f.p1, ProteinB: f.p2, SourceID: f.srcA, Confidence: 0.5})
		return err
	})
	if first.ID != second.ID || first.Protein1ID != f.p1 || first.Protein2ID != f.p2 {
		t.Fatalf("expected a single canonically ordered row, got %+v and %+v", first, second)
	}
}

func TestReingestReplacesOwnRow(t *testing.T) {
	f := newFixture(t)
	f.tx(t, func(tx domain.Transaction) error {
		_, err := Merge(tx, Edge{ProteinA: f.p1, ProteinB: f.p2, SourceID: f.srcA, Confidence: 0.6, EvidenceType: "database"})
		return err
	})
	f.tx(t, func(tx domain.Transaction) error {
		_, err := Merge(tx, Edge{ProteinA: f.p1, ProteinB: f.p2, SourceID: f.srcA, Confidence: 0.9, EvidenceType: "experimental"})
		return err
	})
	rows := f.rows(t)
	if len(rows) != 1 || rows[0].Confidence != 0.9 || rows[0].EvidenceType != "experimental" {
		t.Fatalf("expected one replaced row, got %+v", rows)
	}
}

func TestCrossSourceRowsArePreserved(t *testing.T) {
	f := newFixture(t)
	f.tx(t, func(tx domain.Transaction) error {
		if _, err := Merge(tx, Edge{ProteinA: f.p1, ProteinB: f.p2, SourceID: f.srcA, Confidence: 0.4}); err != nil {
			return err
		}
		_, err := Merge(tx, Edge{ProteinA: f.p2, ProteinB: f.p1, SourceID: f.srcB, Confidence: 1})
		return err
	})
	rows := f.rows(t)
	if len(rows) != 2 {
		t.Fatalf("expected one row per source, got %+v", rows)
	}
	if rows[0].SourceID != f.srcB || rows[1].SourceID != f.srcA {
		t.Fatalf("expected both sources retrievable, got %+v", rows)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		edge Edge
		want error
	}{
		{Edge{ProteinA: 1, ProteinB: 1, SourceID: 1, Confidence: 0.5}, domain.ErrSelfInteraction},
		{Edge{ProteinA: 1, ProteinB: 2, SourceID: 1, Confidence: 1.5}, domain.ErrInvalidRecord},
		{Edge{ProteinA: 1, ProteinB: 2, SourceID: 1, Confidence: -0.1}, domain.ErrInvalidRecord},
	}
	for _, tc := range cases {
		if err := tc.edge.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("expected %v for %+v, got %v", tc.want, tc.edge, err)
		}
	}
	if err := (Edge{ProteinA: 1, ProteinB: 2, SourceID: 1, Confidence: 0}).Validate(); err != nil {
		t.Fatalf("expected zero confidence to be valid: %v", err)
	}
}

func TestBatchMaxWinsFirstOnTie(t *testing.T) {
	f := newFixture(t)
	b := NewBatch(4)
	edges := []Edge{
		{ProteinA: f.p1, ProteinB: f.p2, SourceID: f.srcA, Confidence: 0.7, SourceSpecificID: "first"},
		{ProteinA: f.p2, ProteinB: f.p1, SourceID: f.srcA, Confidence: 0.7, SourceSpecificID: "tie"},
		{ProteinA: f.p1, ProteinB: f.p2, SourceID: f.srcA, Confidence: 0.3, SourceSpecificID: "lower"},
		{ProteinA: f.p1, ProteinB: f.p2, SourceID: f.srcB, Confidence: 0.2, SourceSpecificID: "other-source"},
	}
	for _, e := range edges {
		if err := b.Add(e); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if b.Len() != 2 || b.Duplicates != 2 {
		t.Fatalf("expected 2 keys and 2 duplicates, got %d / %d", b.Len(), b.Duplicates)
	}
	f.tx(t, func(tx domain.Transaction) error {
		n, err := b.Flush(tx)
		if n != 2 {
			t.Fatalf("expected 2 applied edges, got %d", n)
		}
		return err
	})
	rows := f.rows(t)
	if len(rows) != 2 || rows[0].SourceSpecificID != "first" || rows[0].Confidence != 0.7 {
		t.Fatalf("expected first occurrence to win the tie, got %+v", rows)
	}
	if b.Len() != 0 {
		t.Fatal("expected flush to reset the batch")
	}

	higher := NewBatch(2)
	_ = higher.Add(Edge{ProteinA: f.p1, ProteinB: f.p2, SourceID: f.srcA, Confidence: 0.1, Detail: extension.Detail{"k": 1.0}})
	_ = higher.Add(Edge{ProteinA: f.p1, ProteinB: f.p2, SourceID: f.srcA, Confidence: 0.95, SourceSpecificID: "max"})
	f.tx(t, func(tx domain.Transaction) error {
		_, err := higher.Flush(tx)
		return err
	})
	for _, row := range f.rows(t) {
		if row.SourceID == f.srcA && (row.Confidence != 0.95 || row.SourceSpecificID != "max") {
			t.Fatalf("expected higher confidence to win, got %+v", row)
		}
	}
}

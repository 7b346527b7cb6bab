// Package stats aggregates read-only store statistics.
package stats

import (
	"context"

	"mitonet/pkg/domain"
)

// Band is a half-open confidence interval [Lo, Hi). The last band is closed.
type Band struct {
	Label string  `json:"label"`
	Lo    float64 `json:"lo"`
	Hi    float64 `json:"hi"`
	Count int64   `json:"count"`
}

// DefaultBands are the reported confidence bands.
func DefaultBands() []Band {
	return []Band{
		{Label: "low", Lo: 0, Hi: 0.4},
		{Label: "medium", Lo: 0.4, Hi: 0.7},
		{Label: "high", Lo: 0.7, Hi: 0.9},
		{Label: "highest", Lo: 0.9, Hi: 1.0},
	}
}

// SourceEdges is the interaction count owned by one source version.
type SourceEdges struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Edges   int64  `json:"edges"`
}

// Summary is a snapshot of store contents.
type Summary struct {
	Proteins        int64         `json:"proteins"`
	Mitochondrial   int64         `json:"mitochondrial"`
	MuscleExpressed int64         `json:"muscle_expressed"`
	MitoAndMuscle   int64         `json:"mito_and_muscle"`
	Interactions    int64         `json:"interactions"`
	Aliases         int64         `json:"aliases"`
	Sources         int64         `json:"sources"`
	EdgesBySource   []SourceEdges `json:"edges_by_source"`
	Confidence      []Band        `json:"confidence"`
}

// Collect reads a Summary in one read-only view. Store and reader errors are
// returned verbatim.
func Collect(ctx context.Context, store domain.PersistentStore) (Summary, error) {
	var s Summary
	err := store.View(ctx, func(r domain.Reader) error {
		return collect(r, &s)
	})
	if err != nil {
		return Summary{}, err
	}
	return s, nil
}

func collect(r domain.Reader, s *Summary) error {
	yes := true
	counts := []struct {
		dst   *int64
		flags domain.ProteinFlags
	}{
		{&s.Proteins, domain.ProteinFlags{}},
		{&s.Mitochondrial, domain.ProteinFlags{Mitochondrial: &yes}},
		{&s.MuscleExpressed, domain.ProteinFlags{MuscleExpressed: &yes}},
		{&s.MitoAndMuscle, domain.ProteinFlags{Mitochondrial: &yes, MuscleExpressed: &yes}},
	}
	for _, c := range counts {
		n, err := r.CountProteins(c.flags)
		if err != nil {
			return err
		}
		*c.dst = n
	}
	var err error
	if s.Interactions, err = r.CountInteractions(); err != nil {
		return err
	}
	if s.Aliases, err = r.CountAliases(); err != nil {
		return err
	}
	if s.Sources, err = r.CountSources(); err != nil {
		return err
	}
	edges, err := r.EdgeCountsBySource()
	if err != nil {
		return err
	}
	s.EdgesBySource = make([]SourceEdges, 0, len(edges))
	for _, e := range edges {
		s.EdgesBySource = append(s.EdgesBySource, SourceEdges{Name: e.Source.Name, Version: e.Source.Version, Edges: e.Edges})
	}
	s.Confidence = DefaultBands()
	for i := range s.Confidence {
		b := &s.Confidence[i]
		hi := b.Hi
		if i == len(s.Confidence)-1 {
			// Close the top band so confidence 1.0 is counted.
			hi = 1.0 + 1e-9
		}
		if b.Count, err = r.CountInteractionsInRange(b.Lo, hi); err != nil {
			return err
		}
	}
	return nil
}

// Package core wires the relational store, the source location, and the
// ingestion manager into the operations behind the operator commands.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mitonet/internal/blob"
	"mitonet/internal/identity"
	"mitonet/internal/ingest"
	"mitonet/internal/sources"
	"mitonet/internal/stats"
	"mitonet/pkg/domain"
)

// ManualSource names attribute and alias contributions made by operators.
const ManualSource = "manual"

// CheckpointListLimit bounds Checkpoints.
const CheckpointListLimit = 20

// Clock supplies time to the service.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Service exposes the operator commands over one store and source location.
type Service struct {
	store   domain.PersistentStore
	files   blob.Store
	catalog *sources.Catalog
	manager *ingest.Manager
	ingest  ingest.Options
	clock   Clock
	logger  *slog.Logger
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithClock overrides the service clock.
func WithClock(c Clock) ServiceOption {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the logger used by the service and its ingestion manager.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithIngestOptions configures the ingestion manager.
func WithIngestOptions(opts ingest.Options) ServiceOption {
	return func(s *Service) { s.ingest = opts }
}

// NewService constructs a service. A nil catalog selects the built-in one.
func NewService(store domain.PersistentStore, files blob.Store, catalog *sources.Catalog, opts ...ServiceOption) *Service {
	if catalog == nil {
		catalog = sources.DefaultCatalog()
	}
	s := &Service{
		store:   store,
		files:   files,
		catalog: catalog,
		clock:   systemClock{},
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ingest.Logger == nil {
		s.ingest.Logger = s.logger
	}
	if s.ingest.Now == nil {
		s.ingest.Now = s.clock.Now
	}
	s.manager = ingest.NewManager(store, files, s.ingest)
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore { return s.store }

// Catalog returns the source catalog.
func (s *Service) Catalog() *sources.Catalog { return s.catalog }

// SourceFile reports whether a declared source file is present.
type SourceFile struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Present bool      `json:"present"`
	Size    int64     `json:"size_bytes,omitempty"`
	ETag    string    `json:"etag,omitempty"`
	Updated time.Time `json:"last_modified,omitzero"`
}

// Init verifies the store is usable and reports which declared source files
// the source location holds.
func (s *Service) Init(ctx context.Context) ([]SourceFile, error) {
	if err := s.store.View(ctx, func(r domain.Reader) error {
		_, err := r.CountSources()
		return err
	}); err != nil {
		return nil, fmt.Errorf("check store: %w", err)
	}
	var out []SourceFile
	for _, d := range s.catalog.All() {
		f := SourceFile{Name: d.Name, Path: d.Path}
		info, err := s.files.Head(ctx, d.Path)
		switch {
		case err == nil:
			f.Present, f.Size, f.ETag, f.Updated = true, info.Size, info.ETag, info.LastModified
		case !errors.Is(err, blob.ErrNotFound):
			return nil, fmt.Errorf("inspect %s: %w", d.Name, err)
		}
		out = append(out, f)
	}
	s.logger.InfoContext(ctx, "store initialised", "driver", s.store.Driver(), "sources", len(out))
	return out, nil
}

// Update ingests every catalog source, or only names when given.
func (s *Service) Update(ctx context.Context, names []string, force bool) ([]ingest.Report, error) {
	opts := ingest.RunOptions{Force: force}
	if len(names) == 0 {
		return s.manager.RunAll(ctx, s.catalog, opts)
	}
	return s.manager.RunNamed(ctx, s.catalog, names, opts)
}

// AddResult lists the identifiers AddProteins created and those already known.
type AddResult struct {
	Added    []string `json:"added"`
	Existing []string `json:"existing"`
}

// AddProteins registers proteins by gene symbol and UniProt accession. An
// unknown accession becomes a canonical key; an unknown symbol gets a
// placeholder key bound through a symbol alias. Accessions are upper-cased,
// symbols keep their case.
func (s *Service) AddProteins(ctx context.Context, genes, accessions []string) (AddResult, error) {
	var out AddResult
	res, err := identity.NewResolver(s.priorities(), 0)
	if err != nil {
		return out, err
	}
	err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		out = AddResult{}
		hint := identity.Hint{Source: ManualSource, Create: true}
		for _, acc := range normalise(accessions, strings.ToUpper) {
			r, err := res.Resolve(tx, domain.AliasUniProt, acc, hint)
			if err != nil {
				return fmt.Errorf("add %s: %w", acc, err)
			}
			out.record(acc, r.Created)
		}
		for _, gene := range normalise(genes, nil) {
			r, err := res.Resolve(tx, domain.AliasSymbol, gene, hint)
			if err != nil {
				return fmt.Errorf("add %s: %w", gene, err)
			}
			if r.Created {
				symbol := gene
				if _, err := res.MergeAttributes(tx, r.ProteinID, domain.AttributePatch{GeneSymbol: &symbol}, ManualSource); err != nil {
					return fmt.Errorf("add %s: %w", gene, err)
				}
			}
			out.record(gene, r.Created)
		}
		return nil
	})
	if err != nil {
		return AddResult{}, err
	}
	s.logger.InfoContext(ctx, "proteins added", "added", len(out.Added), "existing", len(out.Existing))
	return out, nil
}

func (r *AddResult) record(id string, created bool) {
	if created {
		r.Added = append(r.Added, id)
		return
	}
	r.Existing = append(r.Existing, id)
}

func (s *Service) priorities() identity.Priorities {
	if s.ingest.Priorities != nil {
		return s.ingest.Priorities
	}
	return identity.DefaultPriorities()
}

// normalise trims, canonicalises, and de-duplicates ids keeping first order.
func normalise(ids []string, canon func(string) string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if canon != nil {
			id = canon(id)
		}
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Status summarises the store.
func (s *Service) Status(ctx context.Context) (stats.Summary, error) {
	return stats.Collect(ctx, s.store)
}

// Checkpoints returns the most recent checkpoints, optionally for one phase.
func (s *Service) Checkpoints(ctx context.Context, phase string) ([]domain.ProcessingCheckpoint, error) {
	var out []domain.ProcessingCheckpoint
	err := s.store.View(ctx, func(r domain.Reader) error {
		var err error
		out, err = r.ListCheckpoints(phase, CheckpointListLimit)
		return err
	})
	return out, err
}

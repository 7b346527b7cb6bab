package domain

import (
	"context"
	"time"
)

// ProteinFlags selects proteins by classification for counting.
type ProteinFlags struct {
	Mitochondrial   *bool
	MuscleExpressed *bool
}

// SourceEdgeCount is the number of interaction rows owned by one data source.
type SourceEdgeCount struct {
	Source DataSource
	Edges  int64
}

// Reader exposes the read-only queries used by statistics and listings.
type Reader interface {
	GetProtein(id int64) (Protein, error)
	FindProteinByKey(key string) (Protein, bool, error)
	FindAlias(kind AliasKind, value string) (ProteinAlias, bool, error)
	FindInteraction(protein1ID, protein2ID, sourceID int64) (Interaction, bool, error)
	ListInteractions(proteinID int64) ([]Interaction, error)
	LatestSource(name string) (DataSource, bool, error)
	ListSources() ([]DataSource, error)
	FindCheckpoint(name string) (ProcessingCheckpoint, bool, error)
	ListCheckpoints(phase string, limit int) ([]ProcessingCheckpoint, error)

	CountProteins(flags ProteinFlags) (int64, error)
	CountAliases() (int64, error)
	CountInteractions() (int64, error)
	CountSources() (int64, error)
	EdgeCountsBySource() ([]SourceEdgeCount, error)
	// CountInteractionsInRange counts rows with lo <= confidence < hi.
	CountInteractionsInRange(lo, hi float64) (int64, error)
}

// Transaction exposes the mutations a store must support within one atomic
// scope. Every method guarded by a uniqueness invariant is an atomic upsert.
type Transaction interface {
	Reader

	// GetProteinForUpdate re-reads a protein and locks it for the rest of the transaction.
	GetProteinForUpdate(id int64) (Protein, error)
	// EnsureProtein inserts a protein with the canonical key if absent and returns the stored row.
	EnsureProtein(key string) (Protein, error)
	// SaveProtein writes attribute, provenance, and extension columns of an existing protein.
	SaveProtein(p Protein) error
	// BindAlias binds (kind, value) to the protein unless already bound and returns the stored binding.
	BindAlias(alias ProteinAlias) (ProteinAlias, error)
	// UpsertInteraction inserts or replaces the row keyed by (pair, source).
	UpsertInteraction(in Interaction) (Interaction, error)
	// DeleteInteractionsBySources removes every row owned by the given sources.
	DeleteInteractionsBySources(sourceIDs []int64) (int64, error)
	// EnsureSource inserts the (name, version) row if absent, refreshing path and metadata.
	EnsureSource(ds DataSource) (DataSource, error)
	// CommitFingerprint records the size and hash of a completed ingestion.
	CommitFingerprint(sourceID int64, size int64, hash string, at time.Time) error
	// SourcesByName lists every version recorded for a source family.
	SourcesByName(name string) ([]DataSource, error)
	// SaveCheckpoint upserts a checkpoint keyed by name.
	SaveCheckpoint(cp ProcessingCheckpoint) (ProcessingCheckpoint, error)
}

// PersistentStore is the relational store shared by all components. Handles
// are opened explicitly and must be closed at shutdown.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) error
	View(ctx context.Context, fn func(Reader) error) error
	Driver() string
	Close() error
}

// Package domain defines the persistent entities, value types, and store
// contracts shared by the mitonet ingestion engine.
package domain

import (
	"time"

	"mitonet/pkg/domain/extension"
)

// AliasKind identifies the namespace an external identifier belongs to.
type AliasKind string

// Recognised alias kinds.
const (
	// AliasUniProt is a UniProt accession; values of this kind double as canonical keys.
	AliasUniProt AliasKind = "uniprot"
	// AliasString is a STRING protein identifier (e.g. 9606.ENSP00000000233).
	AliasString AliasKind = "string"
	// AliasSymbol is an HGNC-style gene symbol.
	AliasSymbol  AliasKind = "symbol"
	AliasEnsembl AliasKind = "ensembl"
	AliasEntrez  AliasKind = "entrez"
)

// CheckpointStatus is the lifecycle state of a processing checkpoint.
type CheckpointStatus string

// Checkpoint lifecycle states.
const (
	CheckpointInProgress CheckpointStatus = "in_progress"
	CheckpointCompleted  CheckpointStatus = "completed"
	CheckpointFailed     CheckpointStatus = "failed"
)

// Resumable reports whether a checkpoint in this state is a resumption point.
func (s CheckpointStatus) Resumable() bool {
	return s == CheckpointInProgress || s == CheckpointFailed
}

// Category groups protein attribute fields that share one source-priority order.
type Category string

// Attribute categories used by the enrichment priority policy.
const (
	// CategoryIdentity covers gene symbol and description.
	CategoryIdentity Category = "identity"
	// CategoryMitochondrial covers the mitochondrial classification fields.
	CategoryMitochondrial Category = "mitochondrial"
	// CategoryMuscle covers the muscle expression fields.
	CategoryMuscle Category = "muscle"
)

// Categories lists every attribute category in a stable order.
func Categories() []Category {
	return []Category{CategoryIdentity, CategoryMitochondrial, CategoryMuscle}
}

// DataSource records one version of a named source family together with the
// content fingerprint committed by its last successful ingestion.
type DataSource struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Version  string `json:"version"`
	FilePath string `json:"file_path"`
	// FileSize and FileHash stay empty until an ingestion of this version completes.
	FileSize    *int64            `json:"file_size,omitempty"`
	FileHash    string            `json:"file_hash,omitempty"`
	LastUpdated time.Time         `json:"last_updated"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Committed reports whether a completed ingestion recorded a fingerprint for the source.
func (d DataSource) Committed() bool {
	return d.FileHash != "" && d.FileSize != nil
}

// Label renders the source as "name vversion".
func (d DataSource) Label() string {
	return d.Name + " v" + d.Version
}

// MitochondrialAttrs holds MitoCarta-style classification fields. Nil means unknown.
type MitochondrialAttrs struct {
	IsMitochondrial *bool    `json:"is_mitochondrial,omitempty"`
	List            *string  `json:"list,omitempty"`
	Evidence        *string  `json:"evidence,omitempty"`
	SubLocalization *string  `json:"sub_localization,omitempty"`
	Pathways        []string `json:"pathways,omitempty"`
}

// MuscleAttrs holds skeletal-muscle expression fields. Nil means unknown.
type MuscleAttrs struct {
	IsExpressed   *bool    `json:"is_expressed,omitempty"`
	TPM           *float64 `json:"tpm,omitempty"`
	EvidenceLevel *string  `json:"evidence_level,omitempty"`
	Localization  *string  `json:"localization,omitempty"`
}

// Protein is the canonical record every alias resolves to.
type Protein struct {
	ID            int64              `json:"id"`
	CanonicalKey  string             `json:"canonical_key"`
	GeneSymbol    *string            `json:"gene_symbol,omitempty"`
	Description   *string            `json:"description,omitempty"`
	Mitochondrial MitochondrialAttrs `json:"mitochondrial"`
	Muscle        MuscleAttrs        `json:"muscle"`
	PriorityScore *float64           `json:"priority_score,omitempty"`
	// Provenance maps each attribute category to the source that last wrote it.
	Provenance map[Category]string  `json:"provenance,omitempty"`
	Extensions extension.Attributes `json:"extensions,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// ProteinAlias binds (Kind, Value) to exactly one protein.
type ProteinAlias struct {
	ID        int64     `json:"id"`
	ProteinID int64     `json:"protein_id"`
	Kind      AliasKind `json:"alias_type"`
	Value     string    `json:"alias_value"`
	SourceID  *int64    `json:"source_id,omitempty"`
}

// Interaction is one source's contribution for an unordered protein pair,
// stored with Protein1ID < Protein2ID.
type Interaction struct {
	ID               int64            `json:"id"`
	Protein1ID       int64            `json:"protein1_id"`
	Protein2ID       int64            `json:"protein2_id"`
	Confidence       float64          `json:"confidence_score"`
	EvidenceType     string           `json:"evidence_type,omitempty"`
	InteractionType  string           `json:"interaction_type,omitempty"`
	SourceID         int64            `json:"source_id"`
	SourceSpecificID string           `json:"source_specific_id,omitempty"`
	Detail           extension.Detail `json:"detail,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// Counters accumulates per-run record outcomes.
type Counters struct {
	Processed  int64 `json:"processed"`
	Applied    int64 `json:"applied"`
	Skipped    int64 `json:"skipped"`
	Unresolved int64 `json:"unresolved"`
	Conflicts  int64 `json:"conflicts"`
}

// Add returns the element-wise sum of two counter sets.
func (c Counters) Add(o Counters) Counters {
	return Counters{
		Processed:  c.Processed + o.Processed,
		Applied:    c.Applied + o.Applied,
		Skipped:    c.Skipped + o.Skipped,
		Unresolved: c.Unresolved + o.Unresolved,
		Conflicts:  c.Conflicts + o.Conflicts,
	}
}

// Progress is the resumption state persisted with a checkpoint.
type Progress struct {
	RunID       string `json:"run_id"`
	Version     string `json:"version"`
	Fingerprint string `json:"fingerprint"`
	// Offset counts source records consumed by committed chunks.
	Offset   int64    `json:"offset"`
	Chunks   int      `json:"chunks"`
	Counters Counters `json:"counters"`
}

// ProcessingCheckpoint is the persisted progress marker for one (source, phase).
type ProcessingCheckpoint struct {
	ID           int64            `json:"id"`
	Name         string           `json:"checkpoint_name"`
	Phase        string           `json:"phase"`
	Status       CheckpointStatus `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	Data         Progress         `json:"data"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// AttributePatch carries attribute values contributed by one source row. Nil
// fields are not contributed.
type AttributePatch struct {
	GeneSymbol    *string
	Description   *string
	Mitochondrial *MitochondrialAttrs
	Muscle        *MuscleAttrs
	Extensions    extension.Attributes
}

// Empty reports whether the patch contributes nothing.
func (p AttributePatch) Empty() bool {
	return p.GeneSymbol == nil && p.Description == nil && p.Mitochondrial == nil &&
		p.Muscle == nil && len(p.Extensions) == 0
}

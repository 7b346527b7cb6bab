package sources

import (
	"errors"

	"mitonet/pkg/domain"
	"mitonet/pkg/domain/extension"
)

// ErrFiltered marks a well-formed row the source's rules exclude (for
// example a non-human BioGRID pair). It is counted as skipped.
var ErrFiltered = errors.New("record filtered")

// Record is one normalised row produced by a Parser.
type Record interface {
	record()
}

// AliasRecord binds an external identifier to the protein behind a STRING id.
// With Kind uniprot the accession is also the protein's canonical key.
type AliasRecord struct {
	StringID string
	Kind     domain.AliasKind
	Value    string
}

// InfoRecord carries STRING's preferred name and annotation for a protein.
type InfoRecord struct {
	StringID      string
	PreferredName string
	Annotation    string
}

// InteractionRecord is one pair of identifiers with its scores.
type InteractionRecord struct {
	IDKind           domain.AliasKind
	A, B             string
	Confidence       float64
	EvidenceType     string
	InteractionType  string
	SourceSpecificID string
	Detail           extension.Detail
}

// AttributeRecord contributes attribute values to the protein behind Identifier.
type AttributeRecord struct {
	IDKind     domain.AliasKind
	Identifier string
	// CanonicalKey is an accession the source associates with the identifier, if any.
	CanonicalKey string
	Patch        domain.AttributePatch
}

func (AliasRecord) record()       {}
func (InfoRecord) record()        {}
func (InteractionRecord) record() {}
func (AttributeRecord) record()   {}

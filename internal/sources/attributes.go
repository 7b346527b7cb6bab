package sources

import (
	"fmt"
	"strconv"
	"strings"

	"mitonet/pkg/domain"
	"mitonet/pkg/domain/extension"
)

func optional(v string) *string {
	if v == "" || v == "-" {
		return nil
	}
	return &v
}

func setOptional(attrs extension.Attributes, k extension.Key, v string) {
	if v == "" || v == "-" {
		return
	}
	_ = attrs.Set(k, v)
}

// --- MitoCarta ---

// mitoCartaColumns resolves the release-specific column names once.
type mitoCartaColumns struct {
	list, evidence, subLoc, pathways string
}

type mitoCartaParser struct {
	t    *table
	cols mitoCartaColumns
}

func newMitoCartaParser(t *table) (Parser, error) {
	if err := requireColumns(t, "Symbol"); err != nil {
		return nil, err
	}
	cols := mitoCartaColumns{
		list:     t.find("MitoCarta", "_List"),
		evidence: t.find("MitoCarta", "_Evidence"),
		subLoc:   t.find("MitoCarta", "_SubMitoLocalization"),
		pathways: t.find("MitoCarta", "_MitoPathways"),
	}
	return &mitoCartaParser{t: t, cols: cols}, nil
}

func (p *mitoCartaParser) Next() (Record, error) {
	r, err := readRow(p.t)
	if err != nil {
		return nil, err
	}
	symbol := r.get("Symbol")
	if symbol == "" {
		return nil, domain.InvalidRecordf("line %d: missing symbol", r.line)
	}
	yes := true
	mito := &domain.MitochondrialAttrs{
		IsMitochondrial: &yes,
		List:            optional(r.get(p.cols.list)),
		Evidence:        optional(r.get(p.cols.evidence)),
		SubLocalization: optional(r.get(p.cols.subLoc)),
		Pathways:        SplitPathways(r.get(p.cols.pathways)),
	}
	ext := extension.Attributes{}
	setOptional(ext, extension.KeyMitoCartaGeneID, r.get("HumanGeneID"))
	setOptional(ext, extension.KeyMitoCartaSynonym, r.get("Synonyms"))
	return AttributeRecord{
		IDKind:     domain.AliasSymbol,
		Identifier: symbol,
		Patch: domain.AttributePatch{
			Description:   optional(r.get("Description")),
			Mitochondrial: mito,
			Extensions:    ext,
		},
	}, nil
}

// SplitPathways splits a pipe-separated pathway list, dropping blanks.
func SplitPathways(raw string) []string {
	if raw == "" || raw == "0" || raw == "-" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, "|") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// --- HPA skeletal muscle ---

const (
	colHPAGene        = "Gene"
	colHPAUniprot     = "Uniprot"
	colHPAMuscleTPM   = "Tissue RNA - skeletal muscle [nTPM]"
	colHPAEvidence    = "Evidence"
	colHPALocation    = "Subcellular main location"
	colHPADescription = "Gene description"
	colHPASpecificity = "RNA tissue specificity"
	colHPASpecScore   = "RNA tissue specificity score"
	colHPAAdditional  = "Subcellular additional location"
	colHPAInteraction = "Interactions"
)

type hpaParser struct{ t *table }

func newHPAParser(t *table) (Parser, error) {
	if err := requireColumns(t, colHPAGene, colHPAMuscleTPM); err != nil {
		return nil, err
	}
	return &hpaParser{t: t}, nil
}

func (p *hpaParser) Next() (Record, error) {
	r, err := readRow(p.t)
	if err != nil {
		return nil, err
	}
	gene := r.get(colHPAGene)
	if gene == "" {
		return nil, domain.InvalidRecordf("line %d: missing gene", r.line)
	}
	raw := r.get(colHPAMuscleTPM)
	if raw == "" {
		return nil, fmt.Errorf("%w: line %d: no muscle expression", ErrFiltered, r.line)
	}
	tpm, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, domain.InvalidRecordf("line %d: bad nTPM %q", r.line, raw)
	}
	if tpm <= 0 {
		return nil, fmt.Errorf("%w: line %d: not expressed in muscle", ErrFiltered, r.line)
	}
	yes := true
	muscle := &domain.MuscleAttrs{
		IsExpressed:   &yes,
		TPM:           &tpm,
		EvidenceLevel: optional(r.get(colHPAEvidence)),
		Localization:  optional(r.get(colHPALocation)),
	}
	ext := extension.Attributes{}
	setOptional(ext, extension.KeyHPASpecificity, r.get(colHPASpecificity))
	setOptional(ext, extension.KeyHPASpecificityScore, r.get(colHPASpecScore))
	setOptional(ext, extension.KeyHPAAdditionalLocation, r.get(colHPAAdditional))
	setOptional(ext, extension.KeyHPAInteractions, r.get(colHPAInteraction))

	// The HPA Uniprot column may list several accessions; the first is canonical.
	var key string
	if acc := r.get(colHPAUniprot); acc != "" && acc != "-" {
		key = strings.TrimSpace(strings.Split(acc, ",")[0])
	}
	return AttributeRecord{
		IDKind:       domain.AliasSymbol,
		Identifier:   gene,
		CanonicalKey: key,
		Patch: domain.AttributePatch{
			GeneSymbol:  &gene,
			Description: optional(r.get(colHPADescription)),
			Muscle:      muscle,
			Extensions:  ext,
		},
	}, nil
}

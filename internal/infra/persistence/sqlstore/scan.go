package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"mitonet/pkg/domain"
	"mitonet/pkg/domain/extension"
)

type rowScanner interface {
	Scan(dest ...any) error
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// nullTime scans timestamps that engines hand back as time.Time, text, or bytes.
type nullTime struct {
	Time  time.Time
	Valid bool
}

func (n *nullTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		n.Time, n.Valid = time.Time{}, false
		return nil
	case time.Time:
		n.Time, n.Valid = v.UTC(), true
		return nil
	case string:
		return n.parse(v)
	case []byte:
		return n.parse(string(v))
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (n *nullTime) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		n.Time, n.Valid = time.Time{}, false
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			n.Time, n.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}

func (n nullTime) ptr() *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func boolPtr(nb sql.NullBool) *bool {
	if !nb.Valid {
		return nil
	}
	v := nb.Bool
	return &v
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}

func int64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// encodeJSON renders a JSON column value; empty containers are stored as NULL.
func encodeJSON(v any, empty bool) (any, error) {
	if empty {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decodeJSON(ns sql.NullString, target any) error {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), target)
}

const proteinColumns = `id, canonical_key, gene_symbol, gene_description,
	is_mitochondrial, mitocarta_list, mitocarta_evidence, mitocarta_sub_localization, mitocarta_pathways,
	is_muscle_expressed, muscle_tpm, protein_evidence_level, main_localization,
	priority_score, attribute_provenance, extra_attributes, created_at, updated_at`

func scanProtein(row rowScanner) (domain.Protein, error) {
	var (
		p                                      domain.Protein
		symbol, desc, list, evidence, subloc   sql.NullString
		pathways, evidenceLevel, loc, prov, ext sql.NullString
		isMito, isMuscle                       sql.NullBool
		tpm, score                             sql.NullFloat64
		created, updated                       nullTime
	)
	if err := row.Scan(&p.ID, &p.CanonicalKey, &symbol, &desc,
		&isMito, &list, &evidence, &subloc, &pathways,
		&isMuscle, &tpm, &evidenceLevel, &loc,
		&score, &prov, &ext, &created, &updated); err != nil {
		return domain.Protein{}, err
	}
	p.GeneSymbol = stringPtr(symbol)
	p.Description = stringPtr(desc)
	p.Mitochondrial = domain.MitochondrialAttrs{
		IsMitochondrial: boolPtr(isMito),
		List:            stringPtr(list),
		Evidence:        stringPtr(evidence),
		SubLocalization: stringPtr(subloc),
	}
	if err := decodeJSON(pathways, &p.Mitochondrial.Pathways); err != nil {
		return domain.Protein{}, fmt.Errorf("decode pathways for protein %d: %w", p.ID, err)
	}
	p.Muscle = domain.MuscleAttrs{
		IsExpressed:   boolPtr(isMuscle),
		TPM:           floatPtr(tpm),
		EvidenceLevel: stringPtr(evidenceLevel),
		Localization:  stringPtr(loc),
	}
	p.PriorityScore = floatPtr(score)
	if err := decodeJSON(prov, &p.Provenance); err != nil {
		return domain.Protein{}, fmt.Errorf("decode provenance for protein %d: %w", p.ID, err)
	}
	if err := decodeJSON(ext, &p.Extensions); err != nil {
		return domain.Protein{}, fmt.Errorf("decode extensions for protein %d: %w", p.ID, err)
	}
	p.CreatedAt = created.Time
	p.UpdatedAt = updated.Time
	return p, nil
}

const aliasColumns = `id, protein_id, alias_type, alias_value, source_id`

func scanAlias(row rowScanner) (domain.ProteinAlias, error) {
	var (
		a      domain.ProteinAlias
		kind   string
		source sql.NullInt64
	)
	if err := row.Scan(&a.ID, &a.ProteinID, &kind, &a.Value, &source); err != nil {
		return domain.ProteinAlias{}, err
	}
	a.Kind = domain.AliasKind(kind)
	a.SourceID = int64Ptr(source)
	return a, nil
}

const interactionColumns = `id, protein1_id, protein2_id, confidence_score, evidence_type,
	interaction_type, source_id, source_specific_id, source_scores, created_at`

func scanInteraction(row rowScanner) (domain.Interaction, error) {
	var (
		in                       domain.Interaction
		evidence, kind, specific sql.NullString
		scores                   sql.NullString
		created                  nullTime
	)
	if err := row.Scan(&in.ID, &in.Protein1ID, &in.Protein2ID, &in.Confidence, &evidence,
		&kind, &in.SourceID, &specific, &scores, &created); err != nil {
		return domain.Interaction{}, err
	}
	in.EvidenceType = evidence.String
	in.InteractionType = kind.String
	in.SourceSpecificID = specific.String
	if err := decodeJSON(scores, &in.Detail); err != nil {
		return domain.Interaction{}, fmt.Errorf("decode scores for interaction %d: %w", in.ID, err)
	}
	in.CreatedAt = created.Time
	return in, nil
}

const sourceColumns = `id, name, version, file_path, file_size, file_hash, last_updated, metadata`

func scanSource(row rowScanner) (domain.DataSource, error) {
	var (
		ds      domain.DataSource
		size    sql.NullInt64
		hash    sql.NullString
		meta    sql.NullString
		updated nullTime
	)
	if err := row.Scan(&ds.ID, &ds.Name, &ds.Version, &ds.FilePath, &size, &hash, &updated, &meta); err != nil {
		return domain.DataSource{}, err
	}
	ds.FileSize = int64Ptr(size)
	ds.FileHash = hash.String
	ds.LastUpdated = updated.Time
	if err := decodeJSON(meta, &ds.Metadata); err != nil {
		return domain.DataSource{}, fmt.Errorf("decode metadata for source %s: %w", ds.Label(), err)
	}
	return ds, nil
}

const checkpointColumns = `id, checkpoint_name, phase, status, created_at, completed_at, data, error_message`

// scanCheckpoint wraps undecodable progress in ErrCorruptCheckpoint.
func scanCheckpoint(row rowScanner) (domain.ProcessingCheckpoint, error) {
	var (
		cp            domain.ProcessingCheckpoint
		status        string
		created, done nullTime
		data, message sql.NullString
	)
	if err := row.Scan(&cp.ID, &cp.Name, &cp.Phase, &status, &created, &done, &data, &message); err != nil {
		return domain.ProcessingCheckpoint{}, err
	}
	cp.Status = domain.CheckpointStatus(status)
	cp.CreatedAt = created.Time
	cp.CompletedAt = done.ptr()
	cp.ErrorMessage = message.String
	if err := decodeJSON(data, &cp.Data); err != nil {
		return cp, fmt.Errorf("%w: checkpoint %s: %v", domain.ErrCorruptCheckpoint, cp.Name, err)
	}
	return cp, nil
}

func emptyAttrs(a extension.Attributes) bool { return len(a) == 0 }

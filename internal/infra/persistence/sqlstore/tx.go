package sqlstore

import (
	"fmt"
	"strconv"
	"time"

	"mitonet/pkg/domain"
)

func (t *txn) GetProteinForUpdate(id int64) (domain.Protein, error) {
	p, err := scanProtein(t.queryRow(`SELECT `+proteinColumns+` FROM proteins WHERE id = ?`+t.d.LockSuffix, id))
	if err != nil {
		return domain.Protein{}, notFound(err, "protein", strconv.FormatInt(id, 10))
	}
	return p, nil
}

// EnsureProtein inserts the canonical key unless present; concurrent callers
// converge on the same row.
func (t *txn) EnsureProtein(key string) (domain.Protein, error) {
	if key == "" {
		return domain.Protein{}, fmt.Errorf("ensure protein: empty canonical key")
	}
	now := t.stamp()
	if _, err := t.exec(`INSERT INTO proteins (canonical_key, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (canonical_key) DO NOTHING`, key, now, now); err != nil {
		return domain.Protein{}, fmt.Errorf("insert protein %s: %w", key, err)
	}
	p, ok, err := t.FindProteinByKey(key)
	if err != nil {
		return domain.Protein{}, err
	}
	if !ok {
		return domain.Protein{}, domain.ErrEntityNotFound{Entity: "protein", Key: key}
	}
	return p, nil
}

func (t *txn) SaveProtein(p domain.Protein) error {
	pathways, err := encodeJSON(p.Mitochondrial.Pathways, len(p.Mitochondrial.Pathways) == 0)
	if err != nil {
		return fmt.Errorf("encode pathways: %w", err)
	}
	prov, err := encodeJSON(p.Provenance, len(p.Provenance) == 0)
	if err != nil {
		return fmt.Errorf("encode provenance: %w", err)
	}
	ext, err := encodeJSON(p.Extensions, emptyAttrs(p.Extensions))
	if err != nil {
		return fmt.Errorf("encode extensions: %w", err)
	}
	res, err := t.exec(`UPDATE proteins SET
		gene_symbol = ?, gene_description = ?,
		is_mitochondrial = ?, mitocarta_list = ?, mitocarta_evidence = ?, mitocarta_sub_localization = ?, mitocarta_pathways = ?,
		is_muscle_expressed = ?, muscle_tpm = ?, protein_evidence_level = ?, main_localization = ?,
		priority_score = ?, attribute_provenance = ?, extra_attributes = ?, updated_at = ?
		WHERE id = ?`,
		nullable(p.GeneSymbol), nullable(p.Description),
		nullable(p.Mitochondrial.IsMitochondrial), nullable(p.Mitochondrial.List), nullable(p.Mitochondrial.Evidence),
		nullable(p.Mitochondrial.SubLocalization), pathways,
		nullable(p.Muscle.IsExpressed), nullable(p.Muscle.TPM), nullable(p.Muscle.EvidenceLevel), nullable(p.Muscle.Localization),
		nullable(p.PriorityScore), prov, ext, t.stamp(), p.ID)
	if err != nil {
		return fmt.Errorf("update protein %d: %w", p.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrEntityNotFound{Entity: "protein", Key: strconv.FormatInt(p.ID, 10)}
	}
	return nil
}

// BindAlias keeps the first binding of (kind, value); the stored row is
// returned whether or not it belongs to alias.ProteinID.
func (t *txn) BindAlias(alias domain.ProteinAlias) (domain.ProteinAlias, error) {
	if _, err := t.exec(`INSERT INTO protein_aliases (protein_id, alias_type, alias_value, source_id) VALUES (?, ?, ?, ?)
		ON CONFLICT (alias_type, alias_value) DO NOTHING`,
		alias.ProteinID, string(alias.Kind), alias.Value, nullable(alias.SourceID)); err != nil {
		return domain.ProteinAlias{}, fmt.Errorf("bind alias %s:%s: %w", alias.Kind, alias.Value, err)
	}
	stored, ok, err := t.FindAlias(alias.Kind, alias.Value)
	if err != nil {
		return domain.ProteinAlias{}, err
	}
	if !ok {
		return domain.ProteinAlias{}, domain.ErrEntityNotFound{Entity: "alias", Key: string(alias.Kind) + ":" + alias.Value}
	}
	return stored, nil
}

func (t *txn) UpsertInteraction(in domain.Interaction) (domain.Interaction, error) {
	if in.Protein1ID >= in.Protein2ID {
		return domain.Interaction{}, fmt.Errorf("upsert interaction: pair (%d, %d) is not canonically ordered", in.Protein1ID, in.Protein2ID)
	}
	scores, err := encodeJSON(in.Detail, len(in.Detail) == 0)
	if err != nil {
		return domain.Interaction{}, fmt.Errorf("encode scores: %w", err)
	}
	if _, err := t.exec(`INSERT INTO interactions
		(protein1_id, protein2_id, confidence_score, evidence_type, interaction_type, source_id, source_specific_id, source_scores, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (protein1_id, protein2_id, source_id) DO UPDATE SET
			confidence_score = excluded.confidence_score,
			evidence_type = excluded.evidence_type,
			interaction_type = excluded.interaction_type,
			source_specific_id = excluded.source_specific_id,
			source_scores = excluded.source_scores`,
		in.Protein1ID, in.Protein2ID, in.Confidence, nullableString(in.EvidenceType), nullableString(in.InteractionType),
		in.SourceID, nullableString(in.SourceSpecificID), scores, t.stamp()); err != nil {
		return domain.Interaction{}, fmt.Errorf("upsert interaction (%d, %d): %w", in.Protein1ID, in.Protein2ID, err)
	}
	stored, ok, err := t.FindInteraction(in.Protein1ID, in.Protein2ID, in.SourceID)
	if err != nil {
		return domain.Interaction{}, err
	}
	if !ok {
		return domain.Interaction{}, domain.ErrEntityNotFound{Entity: "interaction", Key: fmt.Sprintf("%d-%d@%d", in.Protein1ID, in.Protein2ID, in.SourceID)}
	}
	return stored, nil
}

func (t *txn) DeleteInteractionsBySources(sourceIDs []int64) (int64, error) {
	if len(sourceIDs) == 0 {
		return 0, nil
	}
	args := make([]any, len(sourceIDs))
	for i, id := range sourceIDs {
		args[i] = id
	}
	res, err := t.exec(`DELETE FROM interactions WHERE source_id IN (`+placeholders(len(args))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("delete interactions: %w", err)
	}
	return res.RowsAffected()
}

// EnsureSource registers (name, version), refreshing its path and metadata.
// The committed fingerprint is left untouched.
func (t *txn) EnsureSource(ds domain.DataSource) (domain.DataSource, error) {
	meta, err := encodeJSON(ds.Metadata, len(ds.Metadata) == 0)
	if err != nil {
		return domain.DataSource{}, fmt.Errorf("encode metadata: %w", err)
	}
	if _, err := t.exec(`INSERT INTO data_sources (name, version, file_path, last_updated, metadata) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name, version) DO UPDATE SET file_path = excluded.file_path, metadata = excluded.metadata`,
		ds.Name, ds.Version, ds.FilePath, t.stamp(), meta); err != nil {
		return domain.DataSource{}, fmt.Errorf("ensure source %s: %w", ds.Label(), err)
	}
	stored, err := scanSource(t.queryRow(`SELECT `+sourceColumns+` FROM data_sources WHERE name = ? AND version = ?`, ds.Name, ds.Version))
	if err != nil {
		return domain.DataSource{}, notFound(err, "data source", ds.Label())
	}
	return stored, nil
}

func (t *txn) CommitFingerprint(sourceID int64, size int64, hash string, at time.Time) error {
	res, err := t.exec(`UPDATE data_sources SET file_size = ?, file_hash = ?, last_updated = ? WHERE id = ?`,
		size, hash, at.UTC(), sourceID)
	if err != nil {
		return fmt.Errorf("commit fingerprint: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrEntityNotFound{Entity: "data source", Key: strconv.FormatInt(sourceID, 10)}
	}
	return nil
}

// SaveCheckpoint upserts by checkpoint name. A zero CreatedAt is stamped with
// the current time.
func (t *txn) SaveCheckpoint(cp domain.ProcessingCheckpoint) (domain.ProcessingCheckpoint, error) {
	if cp.Name == "" {
		return domain.ProcessingCheckpoint{}, fmt.Errorf("save checkpoint: empty name")
	}
	data, err := encodeJSON(cp.Data, false)
	if err != nil {
		return domain.ProcessingCheckpoint{}, fmt.Errorf("encode checkpoint data: %w", err)
	}
	var completed any
	if cp.CompletedAt != nil {
		completed = cp.CompletedAt.UTC()
	}
	created := cp.CreatedAt
	if created.IsZero() {
		created = t.stamp()
	}
	if _, err := t.exec(`INSERT INTO processing_checkpoints
		(checkpoint_name, phase, status, created_at, completed_at, data, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (checkpoint_name) DO UPDATE SET
			phase = excluded.phase,
			created_at = excluded.created_at,
			status = excluded.status,
			completed_at = excluded.completed_at,
			data = excluded.data,
			error_message = excluded.error_message`,
		cp.Name, cp.Phase, string(cp.Status), created.UTC(), completed, data, nullableString(cp.ErrorMessage)); err != nil {
		return domain.ProcessingCheckpoint{}, fmt.Errorf("save checkpoint %s: %w", cp.Name, err)
	}
	stored, _, err := t.FindCheckpoint(cp.Name)
	return stored, err
}

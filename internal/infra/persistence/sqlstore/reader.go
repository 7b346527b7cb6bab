package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"mitonet/pkg/domain"
)

func (t *txn) GetProtein(id int64) (domain.Protein, error) {
	p, err := scanProtein(t.queryRow(`SELECT `+proteinColumns+` FROM proteins WHERE id = ?`, id))
	if err != nil {
		return domain.Protein{}, notFound(err, "protein", strconv.FormatInt(id, 10))
	}
	return p, nil
}

func (t *txn) FindProteinByKey(key string) (domain.Protein, bool, error) {
	p, err := scanProtein(t.queryRow(`SELECT `+proteinColumns+` FROM proteins WHERE canonical_key = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Protein{}, false, nil
	}
	if err != nil {
		return domain.Protein{}, false, err
	}
	return p, true, nil
}

func (t *txn) FindAlias(kind domain.AliasKind, value string) (domain.ProteinAlias, bool, error) {
	a, err := scanAlias(t.queryRow(`SELECT `+aliasColumns+` FROM protein_aliases WHERE alias_type = ? AND alias_value = ?`, string(kind), value))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProteinAlias{}, false, nil
	}
	if err != nil {
		return domain.ProteinAlias{}, false, err
	}
	return a, true, nil
}

func (t *txn) FindInteraction(protein1ID, protein2ID, sourceID int64) (domain.Interaction, bool, error) {
	in, err := scanInteraction(t.queryRow(`SELECT `+interactionColumns+` FROM interactions
		WHERE protein1_id = ? AND protein2_id = ? AND source_id = ?`, protein1ID, protein2ID, sourceID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Interaction{}, false, nil
	}
	if err != nil {
		return domain.Interaction{}, false, err
	}
	return in, true, nil
}

func (t *txn) ListInteractions(proteinID int64) ([]domain.Interaction, error) {
	rows, err := t.query(`SELECT `+interactionColumns+` FROM interactions
		WHERE protein1_id = ? OR protein2_id = ?
		ORDER BY confidence_score DESC, id`, proteinID, proteinID)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	return collect(rows, scanInteraction)
}

// LatestSource returns the most recently committed version of a source family.
// Versions whose ingestion never completed are ignored.
func (t *txn) LatestSource(name string) (domain.DataSource, bool, error) {
	ds, err := scanSource(t.queryRow(`SELECT `+sourceColumns+` FROM data_sources
		WHERE name = ? AND file_hash IS NOT NULL
		ORDER BY last_updated DESC, id DESC LIMIT 1`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DataSource{}, false, nil
	}
	if err != nil {
		return domain.DataSource{}, false, err
	}
	return ds, true, nil
}

func (t *txn) ListSources() ([]domain.DataSource, error) {
	rows, err := t.query(`SELECT ` + sourceColumns + ` FROM data_sources ORDER BY name, last_updated DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return collect(rows, scanSource)
}

func (t *txn) SourcesByName(name string) ([]domain.DataSource, error) {
	rows, err := t.query(`SELECT `+sourceColumns+` FROM data_sources WHERE name = ? ORDER BY id`, name)
	if err != nil {
		return nil, fmt.Errorf("list sources %s: %w", name, err)
	}
	return collect(rows, scanSource)
}

func (t *txn) FindCheckpoint(name string) (domain.ProcessingCheckpoint, bool, error) {
	cp, err := scanCheckpoint(t.queryRow(`SELECT `+checkpointColumns+` FROM processing_checkpoints WHERE checkpoint_name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProcessingCheckpoint{}, false, nil
	}
	if err != nil {
		return cp, true, err
	}
	return cp, true, nil
}

// ListCheckpoints returns checkpoints newest first. An empty phase matches
// every phase and a non-positive limit returns all rows.
func (t *txn) ListCheckpoints(phase string, limit int) ([]domain.ProcessingCheckpoint, error) {
	var (
		b    strings.Builder
		args []any
	)
	b.WriteString(`SELECT ` + checkpointColumns + ` FROM processing_checkpoints`)
	if phase != "" {
		b.WriteString(` WHERE phase = ?`)
		args = append(args, phase)
	}
	b.WriteString(` ORDER BY created_at DESC, id DESC`)
	if limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, limit)
	}
	rows, err := t.query(b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	return collect(rows, scanCheckpoint)
}

func (t *txn) CountProteins(flags domain.ProteinFlags) (int64, error) {
	var (
		where []string
		args  []any
	)
	if flags.Mitochondrial != nil {
		where = append(where, `is_mitochondrial = ?`)
		args = append(args, *flags.Mitochondrial)
	}
	if flags.MuscleExpressed != nil {
		where = append(where, `is_muscle_expressed = ?`)
		args = append(args, *flags.MuscleExpressed)
	}
	q := `SELECT COUNT(*) FROM proteins`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	return t.count(q, args...)
}

func (t *txn) CountAliases() (int64, error) {
	return t.count(`SELECT COUNT(*) FROM protein_aliases`)
}

func (t *txn) CountInteractions() (int64, error) {
	return t.count(`SELECT COUNT(*) FROM interactions`)
}

func (t *txn) CountSources() (int64, error) {
	return t.count(`SELECT COUNT(*) FROM data_sources`)
}

func (t *txn) CountInteractionsInRange(lo, hi float64) (int64, error) {
	return t.count(`SELECT COUNT(*) FROM interactions WHERE confidence_score >= ? AND confidence_score < ?`, lo, hi)
}

func (t *txn) EdgeCountsBySource() ([]domain.SourceEdgeCount, error) {
	rows, err := t.query(`SELECT ds.id, ds.name, ds.version, ds.file_path, ds.file_size, ds.file_hash,
			ds.last_updated, ds.metadata, COUNT(i.id)
		FROM data_sources ds
		JOIN interactions i ON i.source_id = ds.id
		GROUP BY ds.id, ds.name, ds.version, ds.file_path, ds.file_size, ds.file_hash, ds.last_updated, ds.metadata
		ORDER BY COUNT(i.id) DESC, ds.name`)
	if err != nil {
		return nil, fmt.Errorf("edge counts: %w", err)
	}
	return collect(rows, func(r rowScanner) (domain.SourceEdgeCount, error) {
		var out domain.SourceEdgeCount
		ds, err := scanSource(edgeRow{r, &out.Edges})
		out.Source = ds
		return out, err
	})
}

// edgeRow appends the count destination to a data source scan.
type edgeRow struct {
	rowScanner
	edges *int64
}

func (e edgeRow) Scan(dest ...any) error {
	return e.rowScanner.Scan(append(dest, e.edges)...)
}

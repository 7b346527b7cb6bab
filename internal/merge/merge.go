// Package merge canonicalises protein pairs and upserts one interaction row
// per (pair, source).
package merge

import (
	"fmt"
	"math"

	"mitonet/pkg/domain"
	"mitonet/pkg/domain/extension"
)

// Edge is one interaction contributed by a source.
type Edge struct {
	ProteinA         int64
	ProteinB         int64
	SourceID         int64
	Confidence       float64
	EvidenceType     string
	InteractionType  string
	SourceSpecificID string
	Detail           extension.Detail
}

// Canonical orders a pair so the smaller internal id comes first.
func Canonical(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}

// Validate rejects self pairs and confidences outside [0, 1].
func (e Edge) Validate() error {
	if e.ProteinA == e.ProteinB {
		return fmt.Errorf("%w: protein %d", domain.ErrSelfInteraction, e.ProteinA)
	}
	if math.IsNaN(e.Confidence) || e.Confidence < 0 || e.Confidence > 1 {
		return domain.InvalidRecordf("confidence %v outside [0, 1]", e.Confidence)
	}
	if e.SourceID == 0 {
		return fmt.Errorf("edge without source")
	}
	return nil
}

func (e Edge) key() pairKey {
	lo, hi := Canonical(e.ProteinA, e.ProteinB)
	return pairKey{lo: lo, hi: hi, source: e.SourceID}
}

// Merge upserts e keyed by (canonical pair, source). A source re-ingesting a
// pair replaces its own prior row.
func Merge(tx domain.Transaction, e Edge) (domain.Interaction, error) {
	if err := e.Validate(); err != nil {
		return domain.Interaction{}, err
	}
	lo, hi := Canonical(e.ProteinA, e.ProteinB)
	return tx.UpsertInteraction(domain.Interaction{
		Protein1ID:       lo,
		Protein2ID:       hi,
		Confidence:       e.Confidence,
		EvidenceType:     e.EvidenceType,
		InteractionType:  e.InteractionType,
		SourceID:         e.SourceID,
		SourceSpecificID: e.SourceSpecificID,
		Detail:           e.Detail.Clone(),
	})
}

type pairKey struct {
	lo, hi, source int64
}

// Batch deduplicates the edges of one chunk before they reach the store. For
// a repeated (pair, source) the higher confidence wins and ties keep the
// first occurrence.
type Batch struct {
	order []pairKey
	edges map[pairKey]Edge
	// Duplicates counts edges folded into an earlier occurrence.
	Duplicates int
}

// NewBatch returns an empty batch sized for n edges.
func NewBatch(n int) *Batch {
	return &Batch{edges: make(map[pairKey]Edge, n)}
}

// Add validates e and folds it into the batch.
func (b *Batch) Add(e Edge) error {
	if err := e.Validate(); err != nil {
		return err
	}
	k := e.key()
	prev, ok := b.edges[k]
	if !ok {
		b.order = append(b.order, k)
		b.edges[k] = e
		return nil
	}
	b.Duplicates++
	if e.Confidence > prev.Confidence {
		b.edges[k] = e
	}
	return nil
}

// Len returns the number of distinct (pair, source) keys.
func (b *Batch) Len() int { return len(b.order) }

// Flush merges every buffered edge in first-seen order and resets the batch.
func (b *Batch) Flush(tx domain.Transaction) (int, error) {
	applied := 0
	for _, k := range b.order {
		if _, err := Merge(tx, b.edges[k]); err != nil {
			return applied, err
		}
		applied++
	}
	b.order = b.order[:0]
	clear(b.edges)
	b.Duplicates = 0
	return applied, nil
}

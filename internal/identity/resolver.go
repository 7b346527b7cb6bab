// Package identity maps external identifiers to canonical proteins and merges
// attribute contributions under the configured source priorities.
package identity

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"mitonet/pkg/domain"
	"mitonet/pkg/domain/extension"
)

// DefaultCacheSize bounds the per-chunk alias cache.
const DefaultCacheSize = 65536

// Hint carries the source context of a resolution.
type Hint struct {
	// CanonicalKey is the key the source believes the alias belongs to.
	CanonicalKey string
	Source       string
	SourceID     *int64
	// Create allows a new protein to be created when nothing matches.
	Create bool
}

// Resolution reports which protein an identifier resolved to.
type Resolution struct {
	ProteinID    int64
	CanonicalKey string
	Created      bool
	// Conflict is set when the hint disagreed with an existing binding.
	Conflict bool
}

type aliasKey struct {
	kind  domain.AliasKind
	value string
}

type cached struct {
	id  int64
	key string
}

// Resolver implements alias lookup, protein creation, and attribute merging.
// A Resolver belongs to one ingestion pipeline; its cache only holds ids
// committed or written by the current chunk and must be purged at every
// chunk boundary.
type Resolver struct {
	prio  Priorities
	cache *lru.Cache[aliasKey, cached]
}

// NewResolver returns a resolver with a cache of cacheSize entries
// (DefaultCacheSize when non-positive).
func NewResolver(prio Priorities, cacheSize int) (*Resolver, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[aliasKey, cached](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("alias cache: %w", err)
	}
	if prio == nil {
		prio = DefaultPriorities()
	}
	return &Resolver{prio: prio, cache: cache}, nil
}

// Purge drops every cached binding.
func (r *Resolver) Purge() { r.cache.Purge() }

// DeriveKey builds the canonical key used when creating a protein for an
// identifier that has no accession hint.
func DeriveKey(kind domain.AliasKind, value string) string {
	switch kind {
	case domain.AliasUniProt:
		return value
	case domain.AliasSymbol:
		return "TEMP_" + strings.ToUpper(value)
	default:
		return "TEMP_" + strings.ToUpper(string(kind)) + "_" + value
	}
}

// Resolve maps (kind, value) to a protein: an existing alias binding wins,
// then a protein whose canonical key equals value, then (with hint.Create) a
// new protein keyed by the hint or a derived key. Without Create an unknown
// identifier yields domain.ErrNotFound.
func (r *Resolver) Resolve(tx domain.Transaction, kind domain.AliasKind, value string, hint Hint) (Resolution, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Resolution{}, domain.InvalidRecordf("empty %s identifier", kind)
	}
	k := aliasKey{kind: kind, value: value}
	if c, ok := r.cache.Get(k); ok {
		return r.settle(tx, k, c, hint, false)
	}

	alias, ok, err := tx.FindAlias(kind, value)
	if err != nil {
		return Resolution{}, fmt.Errorf("find alias %s:%s: %w", kind, value, err)
	}
	if ok {
		p, err := tx.GetProtein(alias.ProteinID)
		if err != nil {
			return Resolution{}, err
		}
		return r.settle(tx, k, cached{id: p.ID, key: p.CanonicalKey}, hint, false)
	}

	if p, ok, err := tx.FindProteinByKey(value); err != nil {
		return Resolution{}, err
	} else if ok {
		return r.bind(tx, k, p, hint, false)
	}

	if !hint.Create {
		return Resolution{}, domain.ErrEntityNotFound{Entity: "alias", Key: string(kind) + ":" + value}
	}
	key := hint.CanonicalKey
	if key == "" {
		key = DeriveKey(kind, value)
	}
	_, existed, err := tx.FindProteinByKey(key)
	if err != nil {
		return Resolution{}, err
	}
	p, err := tx.EnsureProtein(key)
	if err != nil {
		return Resolution{}, err
	}
	return r.bind(tx, k, p, hint, !existed)
}

// ResolveProtein resolves and returns a fresh copy of the protein.
func (r *Resolver) ResolveProtein(tx domain.Transaction, kind domain.AliasKind, value string, hint Hint) (domain.Protein, Resolution, error) {
	res, err := r.Resolve(tx, kind, value, hint)
	if err != nil {
		return domain.Protein{}, res, err
	}
	p, err := tx.GetProtein(res.ProteinID)
	return p, res, err
}

// bind attaches the alias to p. When another pipeline bound it first the
// stored owner wins.
func (r *Resolver) bind(tx domain.Transaction, k aliasKey, p domain.Protein, hint Hint, created bool) (Resolution, error) {
	stored, err := tx.BindAlias(domain.ProteinAlias{ProteinID: p.ID, Kind: k.kind, Value: k.value, SourceID: hint.SourceID})
	if err != nil {
		return Resolution{}, err
	}
	owner := cached{id: p.ID, key: p.CanonicalKey}
	if stored.ProteinID != p.ID {
		bound, err := tx.GetProtein(stored.ProteinID)
		if err != nil {
			return Resolution{}, err
		}
		owner = cached{id: bound.ID, key: bound.CanonicalKey}
		if hint.CanonicalKey == "" {
			hint.CanonicalKey = p.CanonicalKey
		}
	}
	return r.settle(tx, k, owner, hint, created && stored.ProteinID == p.ID)
}

// settle caches the binding and records a disagreeing hint on the owner.
func (r *Resolver) settle(tx domain.Transaction, k aliasKey, owner cached, hint Hint, created bool) (Resolution, error) {
	r.cache.Add(k, owner)
	res := Resolution{ProteinID: owner.id, CanonicalKey: owner.key, Created: created}
	if hint.CanonicalKey == "" || hint.CanonicalKey == owner.key {
		return res, nil
	}
	res.Conflict = true
	if err := r.recordConflict(tx, owner.id, extension.AliasConflict{
		Kind:   string(k.kind),
		Value:  k.value,
		Hint:   hint.CanonicalKey,
		Source: hint.Source,
	}); err != nil {
		return Resolution{}, err
	}
	return res, nil
}

func (r *Resolver) recordConflict(tx domain.Transaction, proteinID int64, c extension.AliasConflict) error {
	p, err := tx.GetProteinForUpdate(proteinID)
	if err != nil {
		return err
	}
	if p.Extensions == nil {
		p.Extensions = extension.Attributes{}
	}
	if !p.Extensions.AddConflict(c) {
		return nil
	}
	if err := tx.SaveProtein(p); err != nil {
		return fmt.Errorf("record alias conflict on %s: %w", p.CanonicalKey, err)
	}
	return nil
}

// MergeAttributes applies patch from source to the protein. The protein is
// re-read inside tx; within each category a populated field is overwritten
// only when source outranks the category's recorded provenance, otherwise
// only empty fields are filled. It reports whether anything changed.
func (r *Resolver) MergeAttributes(tx domain.Transaction, proteinID int64, patch domain.AttributePatch, source string) (bool, error) {
	if patch.Empty() {
		return false, nil
	}
	p, err := tx.GetProteinForUpdate(proteinID)
	if err != nil {
		return false, err
	}
	if p.Provenance == nil {
		p.Provenance = map[domain.Category]string{}
	}
	changed := false

	if patch.GeneSymbol != nil || patch.Description != nil {
		m := r.merger(&p, domain.CategoryIdentity, source)
		m.str(&p.GeneSymbol, patch.GeneSymbol)
		m.str(&p.Description, patch.Description)
		changed = m.finish() || changed
	}
	if in := patch.Mitochondrial; in != nil {
		m := r.merger(&p, domain.CategoryMitochondrial, source)
		m.boolean(&p.Mitochondrial.IsMitochondrial, in.IsMitochondrial)
		m.str(&p.Mitochondrial.List, in.List)
		m.str(&p.Mitochondrial.Evidence, in.Evidence)
		m.str(&p.Mitochondrial.SubLocalization, in.SubLocalization)
		if len(in.Pathways) > 0 && (len(p.Mitochondrial.Pathways) == 0 || m.overwrite) &&
			!reflect.DeepEqual(p.Mitochondrial.Pathways, in.Pathways) {
			p.Mitochondrial.Pathways = append([]string(nil), in.Pathways...)
			m.wrote = true
		}
		changed = m.finish() || changed
	}
	if in := patch.Muscle; in != nil {
		m := r.merger(&p, domain.CategoryMuscle, source)
		m.boolean(&p.Muscle.IsExpressed, in.IsExpressed)
		m.float(&p.Muscle.TPM, in.TPM)
		m.str(&p.Muscle.EvidenceLevel, in.EvidenceLevel)
		m.str(&p.Muscle.Localization, in.Localization)
		changed = m.finish() || changed
	}
	if len(patch.Extensions) > 0 {
		if p.Extensions == nil {
			p.Extensions = extension.Attributes{}
		}
		changed = p.Extensions.Fill(patch.Extensions, true) || changed
	}

	score := PriorityScore(p)
	if !equalFloat(score, p.PriorityScore) {
		p.PriorityScore = score
		changed = true
	}
	if !changed {
		return false, nil
	}
	if err := tx.SaveProtein(p); err != nil {
		return false, err
	}
	return true, nil
}

type fieldMerger struct {
	p         *domain.Protein
	cat       domain.Category
	source    string
	overwrite bool
	wrote     bool
}

func (r *Resolver) merger(p *domain.Protein, cat domain.Category, source string) *fieldMerger {
	return &fieldMerger{p: p, cat: cat, source: source, overwrite: r.prio.Overrides(cat, source, p.Provenance[cat])}
}

func (m *fieldMerger) str(dst **string, in *string) {
	if in == nil || (*dst != nil && (!m.overwrite || **dst == *in)) {
		return
	}
	v := *in
	*dst = &v
	m.wrote = true
}

func (m *fieldMerger) boolean(dst **bool, in *bool) {
	if in == nil || (*dst != nil && (!m.overwrite || **dst == *in)) {
		return
	}
	v := *in
	*dst = &v
	m.wrote = true
}

func (m *fieldMerger) float(dst **float64, in *float64) {
	if in == nil || (*dst != nil && (!m.overwrite || **dst == *in)) {
		return
	}
	v := *in
	*dst = &v
	m.wrote = true
}

// finish records provenance when the source owns the category.
func (m *fieldMerger) finish() bool {
	if !m.wrote {
		return false
	}
	if m.overwrite {
		m.p.Provenance[m.cat] = m.source
	}
	return true
}

func equalFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// IsUnresolved reports whether err means the identifier matched nothing.
func IsUnresolved(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

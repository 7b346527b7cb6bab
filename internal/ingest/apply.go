package ingest

import (
	"errors"
	"fmt"

	"mitonet/internal/identity"
	"mitonet/internal/merge"
	"mitonet/internal/sources"
	"mitonet/pkg/domain"
	"mitonet/pkg/domain/extension"
)

// apply routes one record. Format errors, self pairs, and unresolved
// identifiers are counted; any other error aborts the chunk.
func (a *applier) apply(rec sources.Record, c *domain.Counters) error {
	var err error
	switch rec := rec.(type) {
	case sources.AliasRecord:
		err = a.alias(rec, c)
	case sources.InfoRecord:
		err = a.info(rec, c)
	case sources.InteractionRecord:
		err = a.interaction(rec, c)
	case sources.AttributeRecord:
		err = a.attributes(rec, c)
	default:
		return fmt.Errorf("unsupported record %T", rec)
	}
	switch {
	case err == nil:
		c.Applied++
		return nil
	case identity.IsUnresolved(err):
		c.Unresolved++
		return nil
	case errors.Is(err, domain.ErrInvalidRecord), errors.Is(err, domain.ErrSelfInteraction):
		c.Skipped++
		return nil
	}
	return err
}

func (a *applier) hint(key string, create bool) identity.Hint {
	id := a.source.ID
	return identity.Hint{CanonicalKey: key, Source: a.decl.Name, SourceID: &id, Create: create}
}

func (a *applier) resolve(kind domain.AliasKind, value string, h identity.Hint, c *domain.Counters) (identity.Resolution, error) {
	res, err := a.resolver.Resolve(a.tx, kind, value, h)
	if err != nil {
		return res, err
	}
	if res.Conflict {
		c.Conflicts++
	}
	return res, nil
}

// alias handles STRING alias rows. UniProt accessions establish the protein
// behind a STRING id; other kinds attach to an already established one.
func (a *applier) alias(rec sources.AliasRecord, c *domain.Counters) error {
	if rec.Kind == domain.AliasUniProt {
		owner, err := a.resolve(domain.AliasUniProt, rec.Value, a.hint("", a.decl.CreateMissing), c)
		if err != nil {
			return err
		}
		_, err = a.resolve(domain.AliasString, rec.StringID, a.hint(owner.CanonicalKey, true), c)
		return err
	}
	owner, err := a.resolve(domain.AliasString, rec.StringID, a.hint("", false), c)
	if err != nil {
		return err
	}
	if _, err := a.resolve(rec.Kind, rec.Value, a.hint(owner.CanonicalKey, true), c); err != nil {
		return err
	}
	if rec.Kind != domain.AliasSymbol {
		return nil
	}
	p, err := a.tx.GetProtein(owner.ProteinID)
	if err != nil {
		return err
	}
	if p.GeneSymbol != nil {
		return nil
	}
	symbol := rec.Value
	_, err = a.resolver.MergeAttributes(a.tx, p.ID, domain.AttributePatch{GeneSymbol: &symbol}, a.decl.Name)
	return err
}

// info fills the identity fields from STRING info rows and binds the
// preferred name as a symbol alias.
func (a *applier) info(rec sources.InfoRecord, c *domain.Counters) error {
	owner, err := a.resolve(domain.AliasString, rec.StringID, a.hint("", a.decl.CreateMissing), c)
	if err != nil {
		return err
	}
	var patch domain.AttributePatch
	if rec.PreferredName != "" {
		name := rec.PreferredName
		patch.GeneSymbol = &name
		if _, err := a.resolve(domain.AliasSymbol, name, a.hint(owner.CanonicalKey, true), c); err != nil {
			return err
		}
		p, err := a.tx.GetProtein(owner.ProteinID)
		if err != nil {
			return err
		}
		if p.GeneSymbol != nil && *p.GeneSymbol != name {
			patch.Extensions = extension.Attributes{}
			_ = patch.Extensions.Set(extension.KeyStringPreferredName, name)
		}
	}
	if rec.Annotation != "" {
		desc := rec.Annotation
		patch.Description = &desc
	}
	_, err = a.resolver.MergeAttributes(a.tx, owner.ProteinID, patch, a.decl.Name)
	return err
}

// interaction resolves both ends and buffers the edge for the chunk flush.
func (a *applier) interaction(rec sources.InteractionRecord, c *domain.Counters) error {
	h := a.hint("", a.decl.CreateMissing)
	left, err := a.resolve(rec.IDKind, rec.A, h, c)
	if err != nil {
		return err
	}
	right, err := a.resolve(rec.IDKind, rec.B, h, c)
	if err != nil {
		return err
	}
	return a.batch.Add(merge.Edge{
		ProteinA:         left.ProteinID,
		ProteinB:         right.ProteinID,
		SourceID:         a.source.ID,
		Confidence:       rec.Confidence,
		EvidenceType:     rec.EvidenceType,
		InteractionType:  rec.InteractionType,
		SourceSpecificID: rec.SourceSpecificID,
		Detail:           rec.Detail,
	})
}

// attributes merges an attribute row. When the identifier is unknown but the
// row names an accession that already exists, the identifier is bound to it.
func (a *applier) attributes(rec sources.AttributeRecord, c *domain.Counters) error {
	res, err := a.resolve(rec.IDKind, rec.Identifier, a.hint(rec.CanonicalKey, a.decl.CreateMissing), c)
	if identity.IsUnresolved(err) && rec.CanonicalKey != "" {
		_, ok, ferr := a.tx.FindProteinByKey(rec.CanonicalKey)
		if ferr != nil {
			return ferr
		}
		if ok {
			res, err = a.resolve(rec.IDKind, rec.Identifier, a.hint(rec.CanonicalKey, true), c)
		}
	}
	if err != nil {
		return err
	}
	_, err = a.resolver.MergeAttributes(a.tx, res.ProteinID, rec.Patch, a.decl.Name)
	return err
}

package identity

import (
	"math"
	"slices"

	"mitonet/pkg/domain"
)

// Priorities declares, per attribute category, source names from most to least
// trusted. Sources not listed rank below every listed source.
type Priorities map[domain.Category][]string

// DefaultPriorities is used when no order is configured.
func DefaultPriorities() Priorities {
	return Priorities{
		domain.CategoryIdentity:      {"manual", "STRING_info", "STRING_aliases", "MitoCarta", "HPA_muscle", "BioGRID"},
		domain.CategoryMitochondrial: {"MitoCarta", "HPA_muscle"},
		domain.CategoryMuscle:        {"HPA_muscle"},
	}
}

// Rank returns the position of source in the category order.
func (p Priorities) Rank(cat domain.Category, source string) int {
	order := p[cat]
	if i := slices.Index(order, source); i >= 0 {
		return i
	}
	return len(order)
}

// Overrides reports whether incoming may overwrite values written by current.
func (p Priorities) Overrides(cat domain.Category, incoming, current string) bool {
	if current == "" || incoming == current {
		return true
	}
	return p.Rank(cat, incoming) < p.Rank(cat, current)
}

// Clone returns a deep copy.
func (p Priorities) Clone() Priorities {
	out := make(Priorities, len(p))
	for k, v := range p {
		out[k] = slices.Clone(v)
	}
	return out
}

// PriorityScore ranks proteins for network focus: one point for a
// mitochondrial classification plus ln(1 + muscle TPM). It is nil while both
// inputs are unknown.
func PriorityScore(p domain.Protein) *float64 {
	mito := p.Mitochondrial.IsMitochondrial
	tpm := p.Muscle.TPM
	if mito == nil && tpm == nil {
		return nil
	}
	score := 0.0
	if mito != nil && *mito {
		score += 1.0
	}
	if tpm != nil && *tpm > 0 {
		score += math.Log1p(*tpm)
	}
	return &score
}

// Package extension provides typed containers for the JSON extension columns
// on proteins and interactions. Attributes that have not been promoted to
// first-class protein fields live here under registered keys; each key
// documents the source family that contributes it so the column never turns
// into an open-ended bag.
package extension

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
)

// Key identifies a registered protein extension attribute.
type Key string

// Registered protein extension keys.
const (
	// KeyAliasConflicts records canonical-key hints that disagreed with an
	// existing alias binding during identifier resolution.
	KeyAliasConflicts Key = "alias_conflicts"
	// KeyStringPreferredName keeps the STRING preferred name when it differs from the gene symbol.
	KeyStringPreferredName Key = "string.preferred_name"
	// KeyMitoCartaGeneID is the NCBI gene id listed by MitoCarta.
	KeyMitoCartaGeneID  Key = "mitocarta.human_gene_id"
	KeyMitoCartaSynonym Key = "mitocarta.synonyms"
	// KeyHPASpecificity is the HPA "RNA tissue specificity" label.
	KeyHPASpecificity      Key = "hpa.rna_tissue_specificity"
	KeyHPASpecificityScore Key = "hpa.rna_tissue_specificity_score"
	// KeyHPAAdditionalLocation is the HPA "Subcellular additional location" column.
	KeyHPAAdditionalLocation Key = "hpa.additional_localization"
	KeyHPAInteractions       Key = "hpa.interactions"
)

// DataShape describes the top-level JSON shape expected for a key.
type DataShape string

const (
	// ShapeObject indicates the value is expected to be a JSON object.
	ShapeObject DataShape = "object"
	// ShapeArray indicates the value is expected to be a JSON array.
	ShapeArray DataShape = "array"
	// ShapeScalar indicates the value is expected to be a scalar JSON value.
	ShapeScalar DataShape = "scalar"
)

// KeySpec documents the contract of a registered key.
type KeySpec struct {
	Source      string
	Description string
	Shape       DataShape
}

var keyRegistry = map[Key]KeySpec{
	KeyAliasConflicts: {
		Source:      "identity resolver",
		Description: "Alias bindings whose canonical-key hint disagreed with the bound protein.",
		Shape:       ShapeArray,
	},
	KeyStringPreferredName: {
		Source:      "STRING_info",
		Description: "STRING preferred name when it differs from the resolved gene symbol.",
		Shape:       ShapeScalar,
	},
	KeyMitoCartaGeneID: {
		Source:      "MitoCarta",
		Description: "NCBI gene identifier from the MitoCarta HumanGeneID column.",
		Shape:       ShapeScalar,
	},
	KeyMitoCartaSynonym: {
		Source:      "MitoCarta",
		Description: "Pipe-separated synonyms listed by MitoCarta.",
		Shape:       ShapeScalar,
	},
	KeyHPASpecificity: {
		Source:      "HPA_muscle",
		Description: "RNA tissue specificity label.",
		Shape:       ShapeScalar,
	},
	KeyHPASpecificityScore: {
		Source:      "HPA_muscle",
		Description: "RNA tissue specificity score.",
		Shape:       ShapeScalar,
	},
	KeyHPAAdditionalLocation: {
		Source:      "HPA_muscle",
		Description: "Additional subcellular locations.",
		Shape:       ShapeScalar,
	},
	KeyHPAInteractions: {
		Source:      "HPA_muscle",
		Description: "Interaction count reported by HPA.",
		Shape:       ShapeScalar,
	},
}

// ErrUnknownKey indicates an attribute key that is not registered.
var ErrUnknownKey = errors.New("extension: unknown attribute key")

// ErrShapeMismatch indicates a value whose JSON shape does not match the key contract.
var ErrShapeMismatch = errors.New("extension: value shape mismatch")

// KnownKeys returns the sorted list of registered keys.
func KnownKeys() []Key {
	keys := slices.Collect(maps.Keys(keyRegistry))
	slices.Sort(keys)
	return keys
}

// IsKnownKey reports whether the key is registered.
func IsKnownKey(k Key) bool {
	_, ok := keyRegistry[k]
	return ok
}

// Spec returns metadata describing the key contract.
func Spec(k Key) (KeySpec, bool) {
	spec, ok := keyRegistry[k]
	return spec, ok
}

// Attributes stores extension values for a protein keyed by registered keys.
type Attributes map[Key]any

// Set validates and stores a deep copy of value under key.
func (a Attributes) Set(k Key, value any) error {
	spec, ok := keyRegistry[k]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, k)
	}
	if err := validateShape(spec.Shape, value); err != nil {
		return fmt.Errorf("%s: %w", k, err)
	}
	a[k] = cloneValue(value)
	return nil
}

// Get returns a deep copy of the value stored under key.
func (a Attributes) Get(k Key) (any, bool) {
	v, ok := a[k]
	if !ok {
		return nil, false
	}
	return cloneValue(v), true
}

// Clone returns a deep copy of the attribute set.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = cloneValue(v)
	}
	return out
}

// Fill copies keys from other that are absent in a and reports whether anything changed.
// With overwrite set, differing present values are replaced as well.
func (a Attributes) Fill(other Attributes, overwrite bool) bool {
	changed := false
	for k, v := range other {
		cur, ok := a[k]
		if ok && (!overwrite || reflect.DeepEqual(normalise(cur), normalise(v))) {
			continue
		}
		a[k] = cloneValue(v)
		changed = true
	}
	return changed
}

// AliasConflict is one entry of the KeyAliasConflicts list.
type AliasConflict struct {
	Kind   string `json:"kind"`
	Value  string `json:"value"`
	Hint   string `json:"hint"`
	Source string `json:"source,omitempty"`
}

// Conflicts decodes the alias conflict list regardless of whether it was set
// in-process or loaded from JSON.
func (a Attributes) Conflicts() []AliasConflict {
	raw, ok := a[KeyAliasConflicts]
	if !ok || raw == nil {
		return nil
	}
	if typed, ok := raw.([]AliasConflict); ok {
		return slices.Clone(typed)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var out []AliasConflict
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

// AddConflict appends a conflict unless an identical entry is already recorded.
func (a Attributes) AddConflict(c AliasConflict) bool {
	existing := a.Conflicts()
	for _, e := range existing {
		if e.Kind == c.Kind && e.Value == c.Value && e.Hint == c.Hint {
			return false
		}
	}
	a[KeyAliasConflicts] = append(existing, c)
	return true
}

// UnmarshalJSON tolerates keys written by older releases but keeps them untyped.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = nil
		return nil
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Attributes, len(raw))
	for k, v := range raw {
		out[Key(k)] = v
	}
	*a = out
	return nil
}

func validateShape(shape DataShape, value any) error {
	if value == nil {
		return nil
	}
	kind := reflect.ValueOf(value).Kind()
	switch shape {
	case ShapeObject:
		if kind != reflect.Map && kind != reflect.Struct {
			return fmt.Errorf("%w: want object, got %T", ErrShapeMismatch, value)
		}
	case ShapeArray:
		if kind != reflect.Slice && kind != reflect.Array {
			return fmt.Errorf("%w: want array, got %T", ErrShapeMismatch, value)
		}
	case ShapeScalar:
		switch kind {
		case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
			return fmt.Errorf("%w: want scalar, got %T", ErrShapeMismatch, value)
		}
	}
	return nil
}

// normalise round-trips through JSON so typed and decoded values compare equal.
func normalise(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

// cloneValue deep copies JSON-compatible values to avoid sharing references
// between callers.
func cloneValue(value any) any {
	if value == nil {
		return nil
	}
	switch typed := value.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		json.Number:
		return typed
	}

	source := reflect.ValueOf(value)

	switch source.Kind() {
	case reflect.Map:
		if source.IsNil() || source.Type().Key().Kind() != reflect.String {
			return value
		}
		clone := reflect.MakeMapWithSize(source.Type(), source.Len())
		iter := source.MapRange()
		for iter.Next() {
			clone.SetMapIndex(iter.Key(), cloneIntoType(iter.Value(), source.Type().Elem()))
		}
		return clone.Interface()
	case reflect.Slice:
		if source.IsNil() {
			return value
		}
		clone := reflect.MakeSlice(source.Type(), source.Len(), source.Len())
		for i := 0; i < source.Len(); i++ {
			clone.Index(i).Set(cloneIntoType(source.Index(i), source.Type().Elem()))
		}
		return clone.Interface()
	default:
		return value
	}
}

// cloneIntoType deep copies the provided value and converts it to the target type.
func cloneIntoType(value reflect.Value, target reflect.Type) reflect.Value {
	if !value.IsValid() || (value.Kind() == reflect.Interface && value.IsNil()) {
		return reflect.Zero(target)
	}
	cloned := cloneValue(value.Interface())
	if cloned == nil {
		return reflect.Zero(target)
	}
	clonedValue := reflect.ValueOf(cloned)
	if !clonedValue.Type().AssignableTo(target) {
		if clonedValue.Type().ConvertibleTo(target) {
			return clonedValue.Convert(target)
		}
		return value
	}
	return clonedValue
}

package extension

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestAttributesSetValidatesKeysAndShape(t *testing.T) {
	a := Attributes{}
	if err := a.Set(Key("colour"), "red"); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("expected unknown key, got %v", err)
	}
	if err := a.Set(KeyHPASpecificity, []string{"a"}); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected shape mismatch, got %v", err)
	}
	if err := a.Set(KeyAliasConflicts, "not a list"); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected shape mismatch for conflicts, got %v", err)
	}
	if err := a.Set(KeyMitoCartaGeneID, "4722"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, ok := a.Get(KeyMitoCartaGeneID); !ok || v != "4722" {
		t.Fatalf("unexpected value %v", v)
	}
}

func TestAttributesGetReturnsCopies(t *testing.T) {
	a := Attributes{KeyAliasConflicts: []AliasConflict{{Kind: "string", Value: "9606.ENSP1", Hint: "P1"}}}
	v, _ := a.Get(KeyAliasConflicts)
	v.([]AliasConflict)[0].Hint = "mutated"
	if a.Conflicts()[0].Hint != "P1" {
		t.Fatalf("stored value shared with caller")
	}
	clone := a.Clone()
	clone[KeyStringPreferredName] = "X"
	if _, ok := a[KeyStringPreferredName]; ok {
		t.Fatalf("clone shares map")
	}
}

func TestAttributesFill(t *testing.T) {
	a := Attributes{KeyHPASpecificity: "enriched"}
	if !a.Fill(Attributes{KeyHPASpecificity: "enhanced", KeyHPAInteractions: "12"}, false) {
		t.Fatalf("expected the missing key to be filled")
	}
	if a[KeyHPASpecificity] != "enriched" || a[KeyHPAInteractions] != "12" {
		t.Fatalf("unexpected fill result %v", a)
	}
	if a.Fill(Attributes{KeyHPAInteractions: "12"}, true) {
		t.Fatalf("equal values must not report a change")
	}
	if !a.Fill(Attributes{KeyHPASpecificity: "enhanced"}, true) || a[KeyHPASpecificity] != "enhanced" {
		t.Fatalf("overwrite not applied: %v", a)
	}
}

func TestAddConflictDeduplicatesAcrossJSON(t *testing.T) {
	a := Attributes{}
	c := AliasConflict{Kind: "symbol", Value: "ATP5A1", Hint: "P25705", Source: "STRING_aliases"}
	if !a.AddConflict(c) {
		t.Fatalf("first conflict not recorded")
	}
	b, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Attributes
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.AddConflict(c) {
		t.Fatalf("duplicate conflict recorded after round trip")
	}
	c.Hint = "Q00000"
	if !decoded.AddConflict(c) || len(decoded.Conflicts()) != 2 {
		t.Fatalf("distinct conflict not appended: %v", decoded.Conflicts())
	}
}

func TestKnownKeysAreSortedAndDocumented(t *testing.T) {
	keys := KnownKeys()
	for i, k := range keys {
		if i > 0 && keys[i-1] >= k {
			t.Fatalf("keys not sorted: %v", keys)
		}
		spec, ok := Spec(k)
		if !ok || spec.Source == "" || spec.Description == "" {
			t.Fatalf("key %s lacks a spec", k)
		}
	}
	if IsKnownKey("unregistered") {
		t.Fatalf("unexpected known key")
	}
}

func TestDetailAccessors(t *testing.T) {
	d := Detail{DetailExperimental: float64(900), DetailTextmining: 120, DetailPublication: "PUBMED:1"}
	if v, ok := d.Float(DetailExperimental); !ok || v != 900 {
		t.Fatalf("float64 detail %v %v", v, ok)
	}
	if v, ok := d.Float(DetailTextmining); !ok || v != 120 {
		t.Fatalf("int detail %v %v", v, ok)
	}
	if _, ok := d.Float(DetailPublication); ok {
		t.Fatalf("string detail read as number")
	}
	if !reflect.DeepEqual(d.Keys(), []string{DetailExperimental, DetailPublication, DetailTextmining}) {
		t.Fatalf("unexpected keys %v", d.Keys())
	}
	clone := d.Clone()
	clone[DetailDatabase] = 1.0
	if _, ok := d[DetailDatabase]; ok {
		t.Fatalf("clone shares map")
	}
}

// Package sources declares the known source families and turns their files
// into normalised records.
package sources

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"mitonet/pkg/domain"
)

// Kind selects the parser and record shape of a source.
type Kind string

// Supported source kinds.
const (
	KindStringAliases Kind = "string_aliases"
	KindStringInfo    Kind = "string_info"
	KindStringLinks   Kind = "string_links"
	KindBioGRID       Kind = "biogrid"
	KindMitoCarta     Kind = "mitocarta"
	KindHPA           Kind = "hpa"
)

// Kinds lists every supported kind.
func Kinds() []Kind {
	return []Kind{KindStringAliases, KindStringInfo, KindStringLinks, KindBioGRID, KindMitoCarta, KindHPA}
}

// Phase returns the checkpoint phase written for sources of this kind.
func (k Kind) Phase() string {
	switch k {
	case KindStringAliases:
		return "aliases"
	case KindStringInfo:
		return "info"
	case KindStringLinks, KindBioGRID:
		return "interactions"
	case KindMitoCarta, KindHPA:
		return "attributes"
	default:
		return string(k)
	}
}

// Declaration describes one source family.
type Declaration struct {
	Name string `mapstructure:"name"`
	Kind Kind   `mapstructure:"kind"`
	// Path is the location key inside the configured source store.
	Path string `mapstructure:"path"`
	// VersionPattern is a regular expression whose first group extracts the
	// version from the file name. Without a match the modification date is used.
	VersionPattern string `mapstructure:"version_pattern"`
	// Stage orders sources in an update of every source; equal stages run concurrently.
	Stage int `mapstructure:"stage"`
	// CreateMissing lets unresolved identifiers create new proteins.
	CreateMissing bool `mapstructure:"create_missing"`
	// InteractionType labels rows of interaction sources that carry no type of their own.
	InteractionType string `mapstructure:"interaction_type"`
}

// Phase returns the checkpoint phase of the declaration.
func (d Declaration) Phase() string { return d.Kind.Phase() }

// Validate checks the declaration is usable.
func (d Declaration) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("source declaration without name")
	}
	if !slices.Contains(Kinds(), d.Kind) {
		return fmt.Errorf("source %s: unknown kind %q", d.Name, d.Kind)
	}
	if strings.TrimSpace(d.Path) == "" {
		return fmt.Errorf("source %s: empty path", d.Name)
	}
	if d.VersionPattern != "" {
		if _, err := compileVersionPattern(d.VersionPattern); err != nil {
			return fmt.Errorf("source %s: %w", d.Name, err)
		}
	}
	return nil
}

// Default source families. STRING_info binds preferred-name symbol aliases
// that MitoCarta and BioGRID rows resolve against, so it has a stage of its own.
var defaultDeclarations = []Declaration{
	{Name: "STRING_aliases", Kind: KindStringAliases, Path: "string/9606.protein.aliases.v12.0.txt.gz",
		VersionPattern: `\.v(\d+(?:\.\d+)*)\.`, Stage: 0, CreateMissing: true},
	{Name: "STRING_info", Kind: KindStringInfo, Path: "string/9606.protein.info.v12.0.txt.gz",
		VersionPattern: `\.v(\d+(?:\.\d+)*)\.`, Stage: 1},
	{Name: "STRING_full", Kind: KindStringLinks, Path: "string/9606.protein.links.detailed.v12.0.txt.gz",
		VersionPattern: `\.v(\d+(?:\.\d+)*)\.`, Stage: 2, InteractionType: "functional"},
	{Name: "STRING_physical", Kind: KindStringLinks, Path: "string/9606.protein.physical.links.detailed.v12.0.txt.gz",
		VersionPattern: `\.v(\d+(?:\.\d+)*)\.`, Stage: 2, InteractionType: "physical"},
	{Name: "MitoCarta", Kind: KindMitoCarta, Path: "mitocarta/Human.MitoCarta3.0.tsv",
		VersionPattern: `MitoCarta(\d+(?:\.\d+)?)`, Stage: 2},
	{Name: "HPA_muscle", Kind: KindHPA, Path: "hpa/hpa_skm.tsv", Stage: 2},
	{Name: "BioGRID", Kind: KindBioGRID, Path: "biogrid/BIOGRID-ALL-4.4.246.tab3.txt",
		VersionPattern: `BIOGRID-ALL-(\d+(?:\.\d+)+)`, Stage: 2, InteractionType: "physical"},
}

// DefaultDeclarations returns a copy of the built-in source families.
func DefaultDeclarations() []Declaration {
	return slices.Clone(defaultDeclarations)
}

// Catalog is an immutable set of declarations keyed by name.
type Catalog struct {
	decls  []Declaration
	byName map[string]Declaration
}

// NewCatalog validates decls and rejects duplicate names.
func NewCatalog(decls ...Declaration) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]Declaration, len(decls))}
	for _, d := range decls {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate source declaration %s", d.Name)
		}
		c.byName[d.Name] = d
		c.decls = append(c.decls, d)
	}
	return c, nil
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(defaultDeclarations...)
	if err != nil {
		panic(err)
	}
	return c
}

// Merge returns a catalog where overrides replace same-named declarations
// and new names are appended.
func (c *Catalog) Merge(overrides ...Declaration) (*Catalog, error) {
	out := make([]Declaration, 0, len(c.decls)+len(overrides))
	replaced := make(map[string]Declaration, len(overrides))
	for _, o := range overrides {
		replaced[o.Name] = o
	}
	for _, d := range c.decls {
		if o, ok := replaced[d.Name]; ok {
			out = append(out, o)
			delete(replaced, d.Name)
			continue
		}
		out = append(out, d)
	}
	for _, o := range overrides {
		if _, ok := replaced[o.Name]; ok {
			out = append(out, o)
		}
	}
	return NewCatalog(out...)
}

// Lookup returns the declaration for name or a domain.ErrUnknownSource error
// naming the available sources.
func (c *Catalog) Lookup(name string) (Declaration, error) {
	d, ok := c.byName[name]
	if !ok {
		return Declaration{}, fmt.Errorf("%w: %s (available: %s)", domain.ErrUnknownSource, name, strings.Join(c.Names(), ", "))
	}
	return d, nil
}

// Names returns the declared names in declaration order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.decls))
	for i, d := range c.decls {
		names[i] = d.Name
	}
	return names
}

// All returns the declarations in declaration order.
func (c *Catalog) All() []Declaration {
	return slices.Clone(c.decls)
}

// Stages groups declarations by ascending stage.
func (c *Catalog) Stages() [][]Declaration {
	groups := map[int][]Declaration{}
	for _, d := range c.decls {
		groups[d.Stage] = append(groups[d.Stage], d)
	}
	stages := make([]int, 0, len(groups))
	for s := range groups {
		stages = append(stages, s)
	}
	sort.Ints(stages)
	out := make([][]Declaration, 0, len(stages))
	for _, s := range stages {
		out = append(out, groups[s])
	}
	return out
}

package sources

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"mitonet/pkg/domain"
	"mitonet/pkg/domain/extension"
)

// Open returns a parser for d over r. Gzip content is detected and
// decompressed. Closing the returned closer releases decompression state;
// the caller still owns r.
func Open(d Declaration, r io.Reader) (Parser, io.Closer, error) {
	plain, closer, err := decompress(r)
	if err != nil {
		return nil, nil, err
	}
	t, err := newTable(plain)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	var p Parser
	switch d.Kind {
	case KindStringAliases:
		p, err = newAliasParser(t)
	case KindStringInfo:
		p, err = newInfoParser(t)
	case KindStringLinks:
		p, err = newLinksParser(t, d)
	case KindBioGRID:
		p, err = newBioGRIDParser(t, d)
	case KindMitoCarta:
		p, err = newMitoCartaParser(t)
	case KindHPA:
		p, err = newHPAParser(t)
	default:
		err = fmt.Errorf("no parser for kind %q", d.Kind)
	}
	if err != nil {
		_ = closer.Close()
		return nil, nil, fmt.Errorf("%s: %w", d.Name, err)
	}
	return p, closer, nil
}

func requireColumns(t *table, cols ...string) error {
	var missing []string
	for _, c := range cols {
		if !t.has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

// readRow maps csv parse failures to skippable format errors.
func readRow(t *table) (row, error) {
	r, err := t.next()
	if err != nil {
		if isFormatError(err) {
			return row{}, domain.InvalidRecordf("%v", err)
		}
		return row{}, err
	}
	return r, nil
}

func parseScore(raw string) (float64, error) {
	if raw == "" {
		return 0, errors.New("empty score")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("bad score %q", raw)
	}
	return v, nil
}

// --- STRING aliases ---

type aliasParser struct{ t *table }

func newAliasParser(t *table) (Parser, error) {
	if err := requireColumns(t, "string_protein_id", "alias", "source"); err != nil {
		return nil, err
	}
	return &aliasParser{t: t}, nil
}

// aliasKindFor maps a STRING alias source label onto an alias kind.
func aliasKindFor(source string) (domain.AliasKind, bool) {
	switch {
	case source == "UniProt_AC":
		return domain.AliasUniProt, true
	case strings.Contains(source, "UniProt_GN"):
		return domain.AliasSymbol, true
	case source == "Ensembl_gene":
		return domain.AliasEnsembl, true
	case strings.Contains(strings.ToLower(source), "entrez"):
		return domain.AliasEntrez, true
	}
	return "", false
}

func (p *aliasParser) Next() (Record, error) {
	r, err := readRow(p.t)
	if err != nil {
		return nil, err
	}
	id, alias, source := r.get("string_protein_id"), r.get("alias"), r.get("source")
	if id == "" || alias == "" {
		return nil, domain.InvalidRecordf("line %d: missing string id or alias", r.line)
	}
	kind, ok := aliasKindFor(source)
	if !ok {
		return nil, fmt.Errorf("%w: alias source %s", ErrFiltered, source)
	}
	return AliasRecord{StringID: id, Kind: kind, Value: alias}, nil
}

// --- STRING info ---

type infoParser struct{ t *table }

func newInfoParser(t *table) (Parser, error) {
	if err := requireColumns(t, "string_protein_id", "preferred_name"); err != nil {
		return nil, err
	}
	return &infoParser{t: t}, nil
}

func (p *infoParser) Next() (Record, error) {
	r, err := readRow(p.t)
	if err != nil {
		return nil, err
	}
	id := r.get("string_protein_id")
	if id == "" {
		return nil, domain.InvalidRecordf("line %d: missing string id", r.line)
	}
	return InfoRecord{StringID: id, PreferredName: r.get("preferred_name"), Annotation: r.get("annotation")}, nil
}

// --- STRING links ---

type linksParser struct {
	t    *table
	kind string
}

func newLinksParser(t *table, d Declaration) (Parser, error) {
	if err := requireColumns(t, "protein1", "protein2", "combined_score"); err != nil {
		return nil, err
	}
	kind := d.InteractionType
	if kind == "" {
		kind = "functional"
		if strings.Contains(strings.ToLower(d.Name), "physical") {
			kind = "physical"
		}
	}
	return &linksParser{t: t, kind: kind}, nil
}

func (p *linksParser) Next() (Record, error) {
	r, err := readRow(p.t)
	if err != nil {
		return nil, err
	}
	a, b := r.get("protein1"), r.get("protein2")
	if a == "" || b == "" {
		return nil, domain.InvalidRecordf("line %d: missing protein id", r.line)
	}
	combined, err := parseScore(r.get("combined_score"))
	if err != nil {
		return nil, domain.InvalidRecordf("line %d: %v", r.line, err)
	}
	detail := extension.Detail{extension.DetailCombinedScore: combined}
	for _, ch := range extension.StringScoreChannels {
		if !p.t.has(ch) {
			continue
		}
		v, err := parseScore(r.get(ch))
		if err != nil {
			return nil, domain.InvalidRecordf("line %d: %s: %v", r.line, ch, err)
		}
		detail[ch] = v
	}
	return InteractionRecord{
		IDKind:           domain.AliasString,
		A:                a,
		B:                b,
		Confidence:       combined / 1000.0,
		EvidenceType:     ClassifyStringEvidence(detail),
		InteractionType:  p.kind,
		SourceSpecificID: a + "___" + b,
		Detail:           detail,
	}, nil
}

// ClassifyStringEvidence labels a STRING pair by its dominant evidence channel.
func ClassifyStringEvidence(d extension.Detail) string {
	exp, _ := d.Float(extension.DetailExperimental)
	db, _ := d.Float(extension.DetailDatabase)
	tm, _ := d.Float(extension.DetailTextmining)
	switch {
	case exp > math.Max(db, tm):
		return "experimental"
	case db > tm:
		return "database"
	default:
		return "text_mining"
	}
}

// --- BioGRID tab3 ---

const (
	colBioGRIDID      = "BioGRID Interaction ID"
	colSymbolA        = "Official Symbol Interactor A"
	colSymbolB        = "Official Symbol Interactor B"
	colSystem         = "Experimental System"
	colSystemType     = "Experimental System Type"
	colPublication    = "Publication Source"
	colThroughput     = "Throughput"
	colOrgIDA         = "Organism ID Interactor A"
	colOrgIDB         = "Organism ID Interactor B"
	colOrgNameA       = "Organism Name Interactor A"
	colOrgNameB       = "Organism Name Interactor B"
	humanTaxon        = "9606"
	humanOrganismName = "Homo sapiens"
)

type biogridParser struct {
	t           *table
	defaultKind string
}

func newBioGRIDParser(t *table, d Declaration) (Parser, error) {
	if err := requireColumns(t, colSymbolA, colSymbolB); err != nil {
		return nil, err
	}
	kind := d.InteractionType
	if kind == "" {
		kind = "physical"
	}
	return &biogridParser{t: t, defaultKind: kind}, nil
}

func (p *biogridParser) human(r row) bool {
	switch {
	case p.t.has(colOrgIDA) && p.t.has(colOrgIDB):
		return r.get(colOrgIDA) == humanTaxon && r.get(colOrgIDB) == humanTaxon
	case p.t.has(colOrgNameA) && p.t.has(colOrgNameB):
		return r.get(colOrgNameA) == humanOrganismName && r.get(colOrgNameB) == humanOrganismName
	}
	return true
}

func (p *biogridParser) Next() (Record, error) {
	r, err := readRow(p.t)
	if err != nil {
		return nil, err
	}
	a, b := r.get(colSymbolA), r.get(colSymbolB)
	if a == "" || b == "" || a == "-" || b == "-" {
		return nil, domain.InvalidRecordf("line %d: missing interactor symbol", r.line)
	}
	if !p.human(r) {
		return nil, fmt.Errorf("%w: line %d: non-human pair", ErrFiltered, r.line)
	}
	system, systemType := r.get(colSystem), r.get(colSystemType)
	detail := extension.Detail{}
	for key, val := range map[string]string{
		extension.DetailExperimentalSystem:     system,
		extension.DetailExperimentalSystemType: systemType,
		extension.DetailPublication:            r.get(colPublication),
		extension.DetailThroughput:             r.get(colThroughput),
	} {
		if val != "" && val != "-" {
			detail[key] = val
		}
	}
	return InteractionRecord{
		IDKind:           domain.AliasSymbol,
		A:                a,
		B:                b,
		Confidence:       1.0,
		EvidenceType:     "experimental",
		InteractionType:  ClassifyBioGRIDType(system, systemType, p.defaultKind),
		SourceSpecificID: r.get(colBioGRIDID),
		Detail:           detail,
	}, nil
}

// ClassifyBioGRIDType derives physical or genetic from the experimental system.
func ClassifyBioGRIDType(system, systemType, fallback string) string {
	s := strings.ToLower(system)
	for _, term := range []string{"physical", "binding", "immunoprecipitation", "pull down"} {
		if strings.Contains(s, term) {
			return "physical"
		}
	}
	for _, term := range []string{"genetic", "epistatic", "synthetic"} {
		if strings.Contains(s, term) {
			return "genetic"
		}
	}
	switch strings.ToLower(systemType) {
	case "physical":
		return "physical"
	case "genetic":
		return "genetic"
	}
	return fallback
}

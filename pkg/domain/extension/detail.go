package extension

import "slices"

// Recognised interaction detail keys. STRING keys carry the per-channel
// sub-scores (0-1000 as published); BioGRID keys carry curation metadata.
const (
	DetailNeighborhood  = "neighborhood"
	DetailFusion        = "fusion"
	DetailCooccurence   = "cooccurence"
	DetailCoexpression  = "coexpression"
	DetailExperimental  = "experimental"
	DetailDatabase      = "database"
	DetailTextmining    = "textmining"
	DetailCombinedScore = "combined_score"

	DetailExperimentalSystem     = "experimental_system"
	DetailExperimentalSystemType = "experimental_system_type"
	DetailPublication            = "publication"
	DetailThroughput             = "throughput"
)

// StringScoreChannels lists STRING sub-score columns copied into the detail blob.
var StringScoreChannels = []string{
	DetailNeighborhood,
	DetailFusion,
	DetailCooccurence,
	DetailCoexpression,
	DetailExperimental,
	DetailDatabase,
	DetailTextmining,
}

// Detail holds source-specific sub-scores and metadata for one interaction row.
type Detail map[string]any

// Float returns the numeric value stored under key.
func (d Detail) Float(key string) (float64, bool) {
	switch v := d[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Clone returns a deep copy of the detail blob.
func (d Detail) Clone() Detail {
	if d == nil {
		return nil
	}
	out := make(Detail, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

// Keys returns the populated keys in sorted order.
func (d Detail) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

package core

// Observation is the unit of work Codify hands to Consolidate: a source_id,
// its summary Meta, and the list of candidate Engrams extracted from it.
type Observation struct {
	ID         string   `json:"id"`
	SourceID   string   `json:"source_id"`
	Meta       Meta     `json:"meta"`
	EngramList []Engram `json:"engram_list"`
}

// NewObservation constructs an Observation with a fresh opaque id.
func NewObservation(sourceID string, meta Meta, engrams []Engram) Observation {
	return Observation{
		ID:         NewID(),
		SourceID:   sourceID,
		Meta:       meta,
		EngramList: engrams,
	}
}

// MergeObservations combines two Observations about the same source: their
// engram lists are filtered by the given accuracy/relevancy floors and
// concatenated, and their meta locations/source_ids are unioned. Grounded on
// original_source's observation_system.py merge_observation.
//
// The result keeps a's id and summary text; b contributes only engrams and
// location/source_id union, matching the observed behavior of the original
// (the second observation is treated as supplementary detail, not a
// replacement summary).
func MergeObservations(a, b Observation, accuracyFilter, relevancyFilter int) Observation {
	merged := Observation{
		ID:       a.ID,
		SourceID: a.SourceID,
		Meta:     a.Meta,
	}

	merged.EngramList = append(merged.EngramList, filterEngrams(a.EngramList, accuracyFilter, relevancyFilter)...)
	merged.EngramList = append(merged.EngramList, filterEngrams(b.EngramList, accuracyFilter, relevancyFilter)...)

	merged.Meta.Locations = unionStrings(a.Meta.Locations, b.Meta.Locations)
	merged.Meta.SourceIDs = unionStrings(a.Meta.SourceIDs, b.Meta.SourceIDs)

	return merged
}

func filterEngrams(engrams []Engram, accuracyFilter, relevancyFilter int) []Engram {
	out := make([]Engram, 0, len(engrams))
	for _, e := range engrams {
		if e.Accuracy < accuracyFilter || e.Relevancy < relevancyFilter {
			continue
		}
		out = append(out, e)
	}
	return out
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

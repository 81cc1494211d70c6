package core

import (
	"fmt"
	"sort"
	"strings"
)

// Summary pairs a text with an (optionally absent) embedding. summary_full
// in spec.md §3 is this shape; summary_initial is the plain short text.
type Summary struct {
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// Meta is summary-side metadata for an Observation.
type Meta struct {
	ID             string   `json:"id"`
	SummaryInitial string   `json:"summary_initial"`
	SummaryFull    Summary  `json:"summary_full"`
	Keywords       []string `json:"keywords,omitempty"`
	Locations      []string `json:"locations,omitempty"`
	SourceIDs      []string `json:"source_ids,omitempty"`
}

// NewMeta constructs a Meta with a fresh opaque id.
func NewMeta(summaryInitial, summaryFullText string, keywords, locations, sourceIDs []string) Meta {
	return Meta{
		ID:             NewID(),
		SummaryInitial: summaryInitial,
		SummaryFull:    Summary{Text: summaryFullText},
		Keywords:       keywords,
		Locations:      locations,
		SourceIDs:      sourceIDs,
	}
}

// Render renders Meta as a "[meta]" TOML-ish block, grounded on
// original_source's core/meta.py Meta.render(). Used when building the
// domain-knowledge section of the index-generation prompt.
func (m Meta) Render() string {
	lines := []string{"[meta]"}
	lines = append(lines, tomlField("id", m.ID))
	lines = append(lines, tomlListField("locations", m.Locations))
	lines = append(lines, tomlListField("source_ids", m.SourceIDs))
	lines = append(lines, tomlListField("keywords", m.Keywords))
	if m.SummaryInitial != "" {
		lines = append(lines, tomlField("summary_initial", m.SummaryInitial))
	}
	if m.SummaryFull.Text != "" {
		lines = append(lines, tomlField("summary_full", m.SummaryFull.Text))
	}
	return strings.Join(lines, "\n")
}

func tomlField(key, value string) string {
	return fmt.Sprintf("%s = %q", key, value)
}

func tomlListField(key string, values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return fmt.Sprintf("%s = [%s]", key, strings.Join(quoted, ", "))
}

// SortedKeys returns a stable key order for a context map, used anywhere a
// deterministic rendering of a map[string]string is required (the index
// context prefix, Meta rendering inputs, etc).
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

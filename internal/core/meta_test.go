package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeta_Render_IncludesAllFields(t *testing.T) {
	m := NewMeta("short summary", "full summary", []string{"kw1", "kw2"}, []string{"loc-1"}, []string{"src-1"})

	rendered := m.Render()

	assert.Contains(t, rendered, "[meta]")
	assert.Contains(t, rendered, `id = "`+m.ID+`"`)
	assert.Contains(t, rendered, `locations = ["loc-1"]`)
	assert.Contains(t, rendered, `source_ids = ["src-1"]`)
	assert.Contains(t, rendered, `keywords = ["kw1", "kw2"]`)
	assert.Contains(t, rendered, `summary_initial = "short summary"`)
	assert.Contains(t, rendered, `summary_full = "full summary"`)
}

func TestMeta_Render_OmitsEmptySummaries(t *testing.T) {
	m := NewMeta("", "", nil, nil, nil)

	rendered := m.Render()

	assert.NotContains(t, rendered, "summary_initial")
	assert.NotContains(t, rendered, "summary_full")
}

func TestSortedKeys_Deterministic(t *testing.T) {
	m := map[string]string{"z": "1", "a": "2", "m": "3"}
	assert.Equal(t, []string{"a", "m", "z"}, SortedKeys(m))
}

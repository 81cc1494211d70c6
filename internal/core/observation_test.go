package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeObservations_FiltersByAccuracyAndRelevancy(t *testing.T) {
	a := NewObservation("src-1", NewMeta("s", "s", nil, []string{"loc-a"}, []string{"src-1"}), []Engram{
		NewEngram("src-1", "loc-a", "keep", true, nil, 5, 5),
		NewEngram("src-1", "loc-a", "drop-accuracy", true, nil, 1, 5),
	})
	b := NewObservation("src-1", NewMeta("s", "s", nil, []string{"loc-b"}, []string{"src-1"}), []Engram{
		NewEngram("src-1", "loc-b", "keep-too", true, nil, 5, 5),
		NewEngram("src-1", "loc-b", "drop-relevancy", true, nil, 5, 1),
	})

	merged := MergeObservations(a, b, 3, 3)

	require.Len(t, merged.EngramList, 2)
	assert.Equal(t, "keep", merged.EngramList[0].Content)
	assert.Equal(t, "keep-too", merged.EngramList[1].Content)
	assert.Equal(t, a.ID, merged.ID)
}

func TestMergeObservations_UnionsLocationsAndSourceIDs(t *testing.T) {
	a := NewObservation("src-1", NewMeta("s", "s", nil, []string{"loc-a", "shared"}, []string{"src-1"}), nil)
	b := NewObservation("src-1", NewMeta("s", "s", nil, []string{"loc-b", "shared"}, []string{"src-1", "src-2"}), nil)

	merged := MergeObservations(a, b, 0, 0)

	assert.ElementsMatch(t, []string{"loc-a", "shared", "loc-b"}, merged.Meta.Locations)
	assert.ElementsMatch(t, []string{"src-1", "src-2"}, merged.Meta.SourceIDs)
}

func TestMergeObservations_NoMatchesYieldsEmptyList(t *testing.T) {
	a := NewObservation("src-1", NewMeta("s", "s", nil, nil, nil), []Engram{
		NewEngram("src-1", "loc-a", "too-low", true, nil, 1, 1),
	})
	b := NewObservation("src-1", NewMeta("s", "s", nil, nil, nil), nil)

	merged := MergeObservations(a, b, 5, 5)

	assert.Empty(t, merged.EngramList)
}

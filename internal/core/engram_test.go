package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextString_SingleKey(t *testing.T) {
	context := map[string]string{"header": "Intro"}
	got := ContextString(context, SortedKeys(context))
	assert.Equal(t, "Context: header: Intro\n", got)
}

func TestContextString_SkipsNull(t *testing.T) {
	context := map[string]string{"header": "Intro", "section": "null"}
	got := ContextString(context, SortedKeys(context))
	assert.Equal(t, "Context: header: Intro\n", got)
}

func TestContextString_OrderedByCallerKeys(t *testing.T) {
	context := map[string]string{"a": "1", "b": "2"}
	got := ContextString(context, []string{"b", "a"})
	assert.Equal(t, "Context: b: 2\na: 1\n", got)
}

func TestNewEngram_AssignsFreshID(t *testing.T) {
	e1 := NewEngram("src-1", "loc-1", "content", true, nil, 5, 5)
	e2 := NewEngram("src-1", "loc-1", "content", true, nil, 5, 5)
	require.NotEmpty(t, e1.ID)
	assert.NotEqual(t, e1.ID, e2.ID)
}

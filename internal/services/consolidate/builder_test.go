package consolidate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EricP-Engramic/engramic/internal/core"
)

func TestBuilder_RegisterThenEvictEmptiesTheBuilder(t *testing.T) {
	t.Parallel()
	b := newBuilder()
	e := core.NewEngram("src", "loc", "content", true, nil, 10, 10)

	require.NoError(t, b.register([]core.Engram{e}))
	assert.False(t, b.empty())

	_, ok := b.evict(e.ID)
	assert.True(t, ok)
	assert.True(t, b.empty())
}

func TestBuilder_RegisterDetectsIDCollision(t *testing.T) {
	t.Parallel()
	b := newBuilder()
	e := core.NewEngram("src", "loc", "content", true, nil, 10, 10)
	dup := e

	err := b.register([]core.Engram{e, dup})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Engram ID Collision")
}

func TestBuilder_AttachIndicesUpdatesEngram(t *testing.T) {
	t.Parallel()
	b := newBuilder()
	e := core.NewEngram("src", "loc", "content", true, nil, 10, 10)
	require.NoError(t, b.register([]core.Engram{e}))

	indices := []core.Index{core.NewIndex("text", []float32{1})}
	b.attachIndices(e.ID, indices)

	got, ok := b.evict(e.ID)
	require.True(t, ok)
	assert.Equal(t, indices, got.Indices)
}

func TestBuilder_EvictUnknownIDReturnsFalse(t *testing.T) {
	t.Parallel()
	b := newBuilder()
	_, ok := b.evict("missing")
	assert.False(t, ok)
}

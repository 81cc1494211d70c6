package plugins

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripFence_RemovesLanguageTaggedFence(t *testing.T) {
	t.Parallel()
	in := "```toml\n[meta]\nid = \"abc\"\n```"
	assert.Equal(t, "[meta]\nid = \"abc\"", stripFence(in))
}

func TestStripFence_LeavesUnfencedTextUntouched(t *testing.T) {
	t.Parallel()
	in := "plain response, no fence"
	assert.Equal(t, in, stripFence(in))
}

func TestStripFence_HandlesBareFenceWithoutLanguageTag(t *testing.T) {
	t.Parallel()
	in := "```\n{\"a\": 1}\n```"
	assert.Equal(t, "{\"a\": 1}", stripFence(in))
}

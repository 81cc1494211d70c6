package pipeline

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContractError_IsDistinguishableViaErrorsAs(t *testing.T) {
	wrapped := fmt.Errorf("engram branch: %w", NewContractError("consolidate", "empty index_text_array for engram %s", "e1"))

	var ce *ContractError
	assert.True(t, errors.As(wrapped, &ce))
	assert.Equal(t, "consolidate", ce.Stage)
	assert.Contains(t, ce.Error(), "contract violation")
	assert.Contains(t, ce.Error(), "e1")
}

func TestContractError_PluginErrorIsNotAContractError(t *testing.T) {
	plain := errors.New("network hiccup")
	var ce *ContractError
	assert.False(t, errors.As(plain, &ce))
}

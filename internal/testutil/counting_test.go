package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flexstream/internal/dataset"
	"github.com/roach88/flexstream/internal/lazy"
)

func TestCountingHandle_CountsRootCallsOnly(t *testing.T) {
	h := NewCountingHandle(dataset.FromSlice([]lazy.Value{int64(1), int64(2)}))

	child, err := h.Filter(func(lazy.Value) (bool, error) { return true, nil })
	require.NoError(t, err)
	_, err = child.Count()
	require.NoError(t, err)

	_, err = h.Count()
	require.NoError(t, err)
	_, err = h.Invoke("collect", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, h.Calls(lazy.OpFilter))
	assert.Equal(t, 1, h.Calls(lazy.OpCount))
	assert.Equal(t, 1, h.Calls("collect"))
	assert.Equal(t, 0, h.Calls(lazy.OpMap))
	assert.Equal(t, 3, h.Total())
}

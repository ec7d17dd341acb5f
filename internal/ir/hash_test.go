package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallKey_Deterministic(t *testing.T) {
	args := IRArray{IRObject{"tag": IRString("contains"), "params": IRObject{"needle": IRString("cat")}}}

	k1, err := CallKey("filter", args, nil)
	require.NoError(t, err)
	k2, err := CallKey("filter", args, IRObject{})
	require.NoError(t, err)

	assert.Equal(t, k1, k2, "nil and empty kwargs encode identically")
	assert.Len(t, k1, 64, "hex-encoded SHA-256")
}

func TestCallKey_DistinguishesNameAndArgs(t *testing.T) {
	base := MustDigest(DomainCall, IRObject{"name": IRString("map"), "args": IRArray{}, "kwargs": IRObject{}})

	k, err := CallKey("map", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, base, k)

	other, err := CallKey("filter", nil, nil)
	require.NoError(t, err)
	assert.NotEqual(t, k, other)

	withArg, err := CallKey("map", IRArray{IRInt(1)}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, k, withArg)
}

func TestDigest_DomainSeparation(t *testing.T) {
	v := IRObject{"id": IRString("q")}
	assert.NotEqual(t, MustDigest(DomainCall, v), MustDigest(DomainQuery, v))
}

func TestDigest_Error(t *testing.T) {
	_, err := Digest(DomainCall, 3.14)
	assert.Error(t, err)
	assert.Panics(t, func() { MustDigest(DomainCall, 3.14) })
}
